package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("IF OBJECT_ID('[dbo].[__MinfoldMigrations]', 'U') IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	require.NoError(t, store.Ensure(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppliedReturnsRecordsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	second := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"MigrationName", "AppliedAt"}).
		AddRow("0001_init", first).
		AddRow("0002_add_users", second)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT [MigrationName], [AppliedAt] FROM [dbo].[__MinfoldMigrations]")).
		WillReturnRows(rows)

	store := NewStore(db)
	records, err := store.Applied(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0001_init", records[0].MigrationName)
	assert.Equal(t, first, records[0].AppliedAt)
	assert.Equal(t, "0002_add_users", records[1].MigrationName)
}

func TestMarkAppliedAndReverted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [dbo].[__MinfoldMigrations]")).
		WithArgs("0003_indexes", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM [dbo].[__MinfoldMigrations]")).
		WithArgs("0003_indexes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	require.NoError(t, store.MarkApplied(context.Background(), "0003_indexes"))
	require.NoError(t, store.MarkReverted(context.Background(), "0003_indexes"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM [dbo].[__MinfoldMigrations]")).
		WithArgs("0001_init").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	store := NewStore(db)
	applied, err := store.IsApplied(context.Background(), "0001_init")
	require.NoError(t, err)
	assert.True(t, applied)
}
