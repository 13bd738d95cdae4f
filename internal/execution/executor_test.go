package execution

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofcz/minfold/internal/errors"
	"github.com/lofcz/minfold/internal/logging"
)

func TestSplitBatches(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected []string
	}{
		{
			name:     "no markers",
			script:   "SELECT 1;\nSELECT 2;",
			expected: []string{"SELECT 1;\nSELECT 2;"},
		},
		{
			name:     "single marker",
			script:   "SELECT 1;\nGO\nSELECT 2;",
			expected: []string{"SELECT 1;", "SELECT 2;"},
		},
		{
			name:     "marker case and padding",
			script:   "SELECT 1;\n  go  \nSELECT 2;",
			expected: []string{"SELECT 1;", "SELECT 2;"},
		},
		{
			name:     "empty batches dropped",
			script:   "GO\nGO\nSELECT 1;\nGO\n\nGO",
			expected: []string{"SELECT 1;"},
		},
		{
			name:     "go inside a statement is not a marker",
			script:   "SELECT 'GO TIME';",
			expected: []string{"SELECT 'GO TIME';"},
		},
		{
			name:     "empty script",
			script:   "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitBatches(tt.script))
		})
	}
}

func TestApplyRunsBatchesInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1;").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT 2;").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	executor := NewExecutorWithLogger(logging.NewSilentLogger())
	batches, err := executor.Apply(context.Background(), db, "SELECT 1;\nGO\nSELECT 2;")
	require.NoError(t, err)
	assert.Equal(t, 2, batches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT 1;").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT boom;").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	executor := NewExecutorWithLogger(logging.NewSilentLogger())
	_, err = executor.Apply(context.Background(), db, "SELECT 1;\nGO\nSELECT boom;")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyObservesCancellationBetweenBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := NewExecutorWithLogger(logging.NewSilentLogger())
	_, err = executor.Apply(ctx, db, "SELECT 1;")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInterruption, errors.GetErrorType(err))
}

func TestApplyEmptyScriptIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	executor := NewExecutorWithLogger(logging.NewSilentLogger())
	batches, err := executor.Apply(context.Background(), db, "\n\nGO\n")
	require.NoError(t, err)
	assert.Zero(t, batches)
	assert.NoError(t, mock.ExpectationsWereMet())
}
