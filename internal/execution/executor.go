package execution

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lofcz/minfold/internal/errors"
	"github.com/lofcz/minfold/internal/logging"
)

// Executor applies generated migration scripts against one connection. A
// script is split into batches around GO markers, so procedure creation,
// which the generator brackets with GO, runs as a batch of its own; every
// batch, procedure batches included, runs serially under a single top-level
// transaction. Cancellation is observed between batches; an abort rolls the transaction
// back and leaves the database in its prior state.
type Executor struct {
	logger *logging.Logger
}

// NewExecutor creates an executor with the default logger.
func NewExecutor() *Executor {
	return &Executor{logger: logging.NewDefaultLogger()}
}

// NewExecutorWithLogger creates an executor with an injected logger.
func NewExecutorWithLogger(logger *logging.Logger) *Executor {
	return &Executor{logger: logger}
}

// SplitBatches splits a script into batches around lines consisting solely
// of a GO marker. Empty batches are discarded.
func SplitBatches(script string) []string {
	var batches []string
	var current strings.Builder

	flush := func() {
		batch := strings.TrimSpace(current.String())
		if batch != "" {
			batches = append(batches, batch)
		}
		current.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		if strings.EqualFold(strings.TrimSpace(line), "GO") {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return batches
}

// Apply runs a script against the database. The first batch of a generated
// script carries SET XACT_ABORT ON, so any statement failure aborts the
// whole transaction server-side.
func (e *Executor) Apply(ctx context.Context, db *sql.DB, script string) (int, error) {
	if db == nil {
		return 0, errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	batches := SplitBatches(script)
	if len(batches) == 0 {
		return 0, nil
	}

	startTime := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.WrapError(err, "failed to begin transaction")
	}

	for i, batch := range batches {
		select {
		case <-ctx.Done():
			tx.Rollback()
			return i, errors.NewAppError(errors.ErrorTypeInterruption,
				fmt.Sprintf("canceled before batch %d of %d", i+1, len(batches)), ctx.Err())
		default:
		}

		if _, err := tx.ExecContext(ctx, batch); err != nil {
			tx.Rollback()
			return i, errors.WrapError(err,
				fmt.Sprintf("failed to execute batch %d of %d", i+1, len(batches)))
		}

		e.logger.WithFields(map[string]interface{}{
			"batch": i + 1,
			"total": len(batches),
		}).Debug("Batch executed")
	}

	if err := tx.Commit(); err != nil {
		return len(batches), errors.WrapError(err, "failed to commit transaction")
	}

	e.logger.WithFields(map[string]interface{}{
		"batches":  len(batches),
		"duration": time.Since(startTime).String(),
	}).Info("Script applied")

	return len(batches), nil
}
