package schema

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogColumns mirrors the column list of the loader's sys.columns
// query.
func catalogColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"schema", "table", "column", "column_id", "type",
		"max_length", "precision", "scale", "is_nullable",
		"is_identity", "seed", "increment", "is_computed", "computed",
	})
}

func TestLoaderBuildsSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM sys.tables t").WillReturnRows(catalogColumns().
		AddRow("dbo", "users", "id", 1, "int", 4, 10, 0, false, true, int64(1), int64(1), false, "").
		AddRow("dbo", "users", "name", 2, "nvarchar", 200, 0, 0, true, false, int64(0), int64(0), false, "").
		AddRow("dbo", "users", "bio", 3, "nvarchar", -1, 0, 0, true, false, int64(0), int64(0), false, "").
		AddRow("dbo", "users", "balance", 4, "decimal", 9, 18, 2, false, false, int64(0), int64(0), false, ""))

	mock.ExpectQuery("FROM sys.default_constraints dc").WillReturnRows(
		sqlmock.NewRows([]string{"table", "column", "name", "definition"}).
			AddRow("users", "balance", "DF__users__balance__1A2B3C", "((0))"))

	mock.ExpectQuery("i.is_primary_key = 1").WillReturnRows(
		sqlmock.NewRows([]string{"table", "column"}).
			AddRow("users", "id"))

	mock.ExpectQuery("i.is_primary_key = 0").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "table", "index", "is_unique", "column"}).
			AddRow("dbo", "users", "IX_users_name", true, "name"))

	mock.ExpectQuery("FROM sys.foreign_keys fk").WillReturnRows(
		sqlmock.NewRows([]string{
			"name", "schema", "table", "column", "ref_schema", "ref_table", "ref_column",
			"is_not_trusted", "is_not_for_replication", "delete_action", "update_action",
		}))

	mock.ExpectQuery("FROM sys.sequences sq").WillReturnRows(
		sqlmock.NewRows([]string{
			"schema", "name", "type", "start", "increment", "min", "max",
			"is_cycling", "is_cached", "cache_size",
		}).AddRow("dbo", "seq_orders", "bigint", int64(1), int64(1), int64(1), int64(9999), false, true, int64(50)))

	mock.ExpectQuery("FROM sys.procedures p").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "name", "definition"}).
			AddRow("dbo", "usp_report", "CREATE PROCEDURE [dbo].[usp_report] AS SELECT 1;"))

	snapshot, err := NewLoader().Load(db, "shop")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	users, ok := snapshot.GetTable("users")
	require.True(t, ok)
	require.Len(t, users.Columns, 4)

	id, _ := users.GetColumn("id")
	assert.True(t, id.IsIdentity)
	assert.True(t, id.IsPrimaryKey)
	assert.Equal(t, int64(1), id.IdentitySeed)
	assert.Equal(t, "INT", id.Type.Render())

	// nchar family lengths come back in bytes
	name, _ := users.GetColumn("name")
	assert.Equal(t, "NVARCHAR(100)", name.Type.Render())
	bio, _ := users.GetColumn("bio")
	assert.Equal(t, "NVARCHAR(MAX)", bio.Type.Render())

	balance, _ := users.GetColumn("balance")
	assert.Equal(t, "DECIMAL(18,2)", balance.Type.Render())
	require.NotNil(t, balance.Default)
	assert.Equal(t, "0", NormalizeDefault(balance.Default.Expression))

	require.Len(t, users.Indexes, 1)
	assert.Equal(t, "IX_users_name", users.Indexes[0].Name)
	assert.True(t, users.Indexes[0].IsUnique)

	sequence, ok := snapshot.Sequences[Key("seq_orders")]
	require.True(t, ok)
	assert.Equal(t, TypeBigInt, sequence.Type.Kind)
	require.NotNil(t, sequence.CacheSize)
	assert.Equal(t, int64(50), *sequence.CacheSize)

	procedure, ok := snapshot.Procedures[Key("usp_report")]
	require.True(t, ok)
	assert.Contains(t, procedure.Definition, "CREATE PROCEDURE")
}

func TestLoaderGroupsForeignKeyRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM sys.tables t").WillReturnRows(catalogColumns().
		AddRow("dbo", "orders", "region", 1, "int", 4, 10, 0, false, false, int64(0), int64(0), false, "").
		AddRow("dbo", "orders", "number", 2, "int", 4, 10, 0, false, false, int64(0), int64(0), false, "").
		AddRow("dbo", "order_lines", "region", 1, "int", 4, 10, 0, false, false, int64(0), int64(0), false, "").
		AddRow("dbo", "order_lines", "number", 2, "int", 4, 10, 0, false, false, int64(0), int64(0), false, ""))

	mock.ExpectQuery("FROM sys.default_constraints dc").WillReturnRows(
		sqlmock.NewRows([]string{"table", "column", "name", "definition"}))
	mock.ExpectQuery("i.is_primary_key = 1").WillReturnRows(
		sqlmock.NewRows([]string{"table", "column"}))
	mock.ExpectQuery("i.is_primary_key = 0").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "table", "index", "is_unique", "column"}))

	mock.ExpectQuery("FROM sys.foreign_keys fk").WillReturnRows(
		sqlmock.NewRows([]string{
			"name", "schema", "table", "column", "ref_schema", "ref_table", "ref_column",
			"is_not_trusted", "is_not_for_replication", "delete_action", "update_action",
		}).
			AddRow("FK_lines_orders", "dbo", "order_lines", "region", "dbo", "orders", "region",
				false, false, "NO_ACTION", "CASCADE").
			AddRow("FK_lines_orders", "dbo", "order_lines", "number", "dbo", "orders", "number",
				true, false, "NO_ACTION", "CASCADE"))

	mock.ExpectQuery("FROM sys.sequences sq").WillReturnRows(
		sqlmock.NewRows([]string{
			"schema", "name", "type", "start", "increment", "min", "max",
			"is_cycling", "is_cached", "cache_size",
		}))
	mock.ExpectQuery("FROM sys.procedures p").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "name", "definition"}))

	snapshot, err := NewLoader().Load(db, "shop")
	require.NoError(t, err)

	lines, ok := snapshot.GetTable("order_lines")
	require.True(t, ok)
	groups := lines.ForeignKeyGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, "FK_lines_orders", groups[0].Name)
	require.Len(t, groups[0].Rows, 2)
	assert.Equal(t, FkCascade, groups[0].Rows[0].UpdateAction)
}

func TestLoaderRejectsUnknownType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM sys.tables t").WillReturnRows(catalogColumns().
		AddRow("dbo", "maps", "shape", 1, "geometry", -1, 0, 0, true, false, int64(0), int64(0), false, ""))

	_, err = NewLoader().Load(db, "gis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported SQL Server type")
}

func TestLoaderRequiresConnection(t *testing.T) {
	_, err := NewLoader().Load(nil, "db")
	assert.Error(t, err)
}
