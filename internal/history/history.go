// Package history maintains the __MinfoldMigrations bookkeeping table: one
// row per applied migration, keyed by name, stamped in UTC. The generator
// is told the applied list so the target snapshot can be rebuilt by
// replaying exactly those migrations.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/lofcz/minfold/internal/errors"
)

// TableName is the bookkeeping table name.
const TableName = "__MinfoldMigrations"

// Record is one applied-migration row.
type Record struct {
	MigrationName string
	AppliedAt     time.Time
}

// Store reads and writes the bookkeeping table.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure creates the bookkeeping table when it does not exist.
func (s *Store) Ensure(ctx context.Context) error {
	query := `
IF OBJECT_ID('[dbo].[` + TableName + `]', 'U') IS NULL
CREATE TABLE [dbo].[` + TableName + `] (
    [MigrationName] NVARCHAR(255) NOT NULL CONSTRAINT [PK_` + TableName + `] PRIMARY KEY,
    [AppliedAt] DATETIME2(7) NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.WrapError(err, "failed to ensure migration history table")
	}
	return nil
}

// Applied returns the applied migration names in application order.
func (s *Store) Applied(ctx context.Context) ([]Record, error) {
	query := `SELECT [MigrationName], [AppliedAt] FROM [dbo].[` + TableName + `] ORDER BY [AppliedAt], [MigrationName]`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WrapError(err, "failed to read migration history")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.MigrationName, &record.AppliedAt); err != nil {
			return nil, errors.WrapError(err, "failed to scan migration history row")
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkApplied records a migration as applied at the current UTC instant.
func (s *Store) MarkApplied(ctx context.Context, name string) error {
	query := `INSERT INTO [dbo].[` + TableName + `] ([MigrationName], [AppliedAt]) VALUES (@p1, @p2)`
	if _, err := s.db.ExecContext(ctx, query, name, time.Now().UTC()); err != nil {
		return errors.WrapError(err, "failed to record applied migration")
	}
	return nil
}

// MarkReverted removes a migration from the applied set after its down
// script ran.
func (s *Store) MarkReverted(ctx context.Context, name string) error {
	query := `DELETE FROM [dbo].[` + TableName + `] WHERE [MigrationName] = @p1`
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return errors.WrapError(err, "failed to remove reverted migration")
	}
	return nil
}

// IsApplied reports whether a migration name is in the applied set.
func (s *Store) IsApplied(ctx context.Context, name string) (bool, error) {
	query := `SELECT COUNT(*) FROM [dbo].[` + TableName + `] WHERE [MigrationName] = @p1`
	var count int
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, errors.WrapError(err, "failed to query migration history")
	}
	return count > 0, nil
}
