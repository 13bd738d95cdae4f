package schema

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Loader introspects a live SQL Server database into a schema snapshot
// through the sys.* catalog views.
type Loader struct {
	queryTimeout time.Duration
}

// NewLoader creates a loader with the default query timeout.
func NewLoader() *Loader {
	return &Loader{queryTimeout: 30 * time.Second}
}

// NewLoaderWithTimeout creates a loader with a custom query timeout.
func NewLoaderWithTimeout(timeout time.Duration) *Loader {
	return &Loader{queryTimeout: timeout}
}

// Load introspects the connected database into a snapshot.
func (l *Loader) Load(db *sql.DB, databaseName string) (*Database, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if databaseName == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}

	snapshot := NewDatabase(databaseName)

	if err := l.loadTables(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	if err := l.loadDefaults(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load default constraints: %w", err)
	}
	if err := l.loadPrimaryKeys(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load primary keys: %w", err)
	}
	if err := l.loadIndexes(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load indexes: %w", err)
	}
	if err := l.loadForeignKeys(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load foreign keys: %w", err)
	}
	if err := l.loadSequences(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load sequences: %w", err)
	}
	if err := l.loadProcedures(db, snapshot); err != nil {
		return nil, fmt.Errorf("failed to load procedures: %w", err)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("loaded schema is invalid: %w", err)
	}

	return snapshot, nil
}

func (l *Loader) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.queryTimeout)
}

// loadTables loads every user table with its columns, including identity
// shape and computed expressions.
func (l *Loader) loadTables(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT s.name, t.name, c.name, c.column_id, ty.name,
		       c.max_length, c.precision, c.scale, c.is_nullable,
		       c.is_identity,
		       CAST(ISNULL(ic.seed_value, 0) AS BIGINT), CAST(ISNULL(ic.increment_value, 0) AS BIGINT),
		       c.is_computed, ISNULL(cc.definition, '')
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.columns c ON c.object_id = t.object_id
		JOIN sys.types ty ON ty.user_type_id = c.user_type_id
		LEFT JOIN sys.identity_columns ic ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		LEFT JOIN sys.computed_columns cc ON cc.object_id = c.object_id AND cc.column_id = c.column_id
		WHERE t.is_ms_shipped = 0 AND t.name <> '__MinfoldMigrations'
		ORDER BY s.name, t.name, c.column_id
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, columnName, typeName, computedExpr string
		var columnID, maxLength, precision, scale int
		var isNullable, isIdentity, isComputed bool
		var seed, increment int64

		if err := rows.Scan(&schemaName, &tableName, &columnName, &columnID, &typeName,
			&maxLength, &precision, &scale, &isNullable,
			&isIdentity, &seed, &increment, &isComputed, &computedExpr); err != nil {
			return fmt.Errorf("failed to scan column row: %w", err)
		}

		table, ok := snapshot.GetTable(tableName)
		if !ok {
			table = NewTable(tableName)
			table.Schema = schemaName
			snapshot.Tables[Key(tableName)] = table
		}

		sqlType, err := catalogType(typeName, maxLength, precision, scale)
		if err != nil {
			return fmt.Errorf("table %s column %s: %w", tableName, columnName, err)
		}

		table.Columns[Key(columnName)] = &Column{
			Name:            columnName,
			OrdinalPosition: columnID,
			Type:            sqlType,
			IsNullable:      isNullable,
			IsIdentity:      isIdentity,
			IdentitySeed:    seed,
			IdentityStep:    increment,
			IsComputed:      isComputed,
			ComputedExpr:    computedExpr,
		}
	}
	return rows.Err()
}

// catalogType maps a sys.types row onto the SqlType variant. max_length is
// in bytes; the nchar family stores two bytes per character.
func catalogType(typeName string, maxLength, precision, scale int) (SqlType, error) {
	kind, ok := ParseTypeKind(typeName)
	if !ok {
		return SqlType{}, fmt.Errorf("unsupported SQL Server type %q", typeName)
	}

	sqlType := SqlType{Kind: kind}
	switch kind {
	case TypeDecimal, TypeNumeric:
		sqlType.Precision = precision
		sqlType.Scale = scale
	case TypeChar, TypeVarChar, TypeBinary, TypeVarBinary:
		sqlType.Length = maxLength
	case TypeNChar, TypeNVarChar:
		if maxLength == MaxLength {
			sqlType.Length = MaxLength
		} else {
			sqlType.Length = maxLength / 2
		}
	case TypeTime, TypeDateTime2, TypeDateTimeOffset:
		sqlType.Scale = scale
	case TypeFloat:
		if precision != 53 {
			sqlType.Precision = precision
		}
	}
	return sqlType, nil
}

// loadDefaults joins default-constraint rows (name + expression) onto
// their columns.
func (l *Loader) loadDefaults(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT t.name, c.name, dc.name, dc.definition
		FROM sys.default_constraints dc
		JOIN sys.tables t ON t.object_id = dc.parent_object_id
		JOIN sys.columns c ON c.object_id = dc.parent_object_id AND c.column_id = dc.parent_column_id
		WHERE t.is_ms_shipped = 0
		ORDER BY t.name, c.name
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query default constraints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, constraintName, definition string
		if err := rows.Scan(&tableName, &columnName, &constraintName, &definition); err != nil {
			return fmt.Errorf("failed to scan default constraint row: %w", err)
		}
		table, ok := snapshot.GetTable(tableName)
		if !ok {
			continue
		}
		column, ok := table.GetColumn(columnName)
		if !ok {
			continue
		}
		column.Default = &Default{Name: constraintName, Expression: definition}
	}
	return rows.Err()
}

// loadPrimaryKeys marks PK membership on columns.
func (l *Loader) loadPrimaryKeys(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT t.name, c.name
		FROM sys.indexes i
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.is_primary_key = 1 AND t.is_ms_shipped = 0
		ORDER BY t.name, ic.key_ordinal
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return fmt.Errorf("failed to scan primary key row: %w", err)
		}
		if table, ok := snapshot.GetTable(tableName); ok {
			if column, ok := table.GetColumn(columnName); ok {
				column.IsPrimaryKey = true
			}
		}
	}
	return rows.Err()
}

// loadIndexes loads secondary indexes with their ordered column lists.
func (l *Loader) loadIndexes(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT s.name, t.name, i.name, i.is_unique, c.name
		FROM sys.indexes i
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.is_primary_key = 0 AND i.is_unique_constraint = 0
		  AND i.type > 0 AND t.is_ms_shipped = 0
		ORDER BY t.name, i.name, ic.key_ordinal
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	indexes := make(map[string]*Index)
	for rows.Next() {
		var schemaName, tableName, indexName, columnName string
		var isUnique bool
		if err := rows.Scan(&schemaName, &tableName, &indexName, &isUnique, &columnName); err != nil {
			return fmt.Errorf("failed to scan index row: %w", err)
		}
		key := Key(tableName) + "|" + Key(indexName)
		index, ok := indexes[key]
		if !ok {
			index = &Index{Name: indexName, Schema: schemaName, Table: tableName, IsUnique: isUnique}
			indexes[key] = index
			if table, found := snapshot.GetTable(tableName); found {
				table.Indexes = append(table.Indexes, index)
			}
		}
		index.Columns = append(index.Columns, columnName)
	}
	return rows.Err()
}

// loadForeignKeys loads FK rows grouped by constraint name; multi-column
// constraints appear as ordered rows sharing one name.
func (l *Loader) loadForeignKeys(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT fk.name, s.name, pt.name, pc.name, rs.name, rt.name, rc.name,
		       fk.is_not_trusted, fk.is_not_for_replication,
		       fk.delete_referential_action_desc, fk.update_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables pt ON pt.object_id = fk.parent_object_id
		JOIN sys.schemas s ON s.schema_id = pt.schema_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
		JOIN sys.schemas rs ON rs.schema_id = rt.schema_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE pt.is_ms_shipped = 0
		ORDER BY fk.name, fkc.constraint_column_id
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, schemaName, tableName, columnName, refSchema, refTable, refColumn string
		var notTrusted, notForReplication bool
		var deleteAction, updateAction string
		if err := rows.Scan(&name, &schemaName, &tableName, &columnName,
			&refSchema, &refTable, &refColumn,
			&notTrusted, &notForReplication, &deleteAction, &updateAction); err != nil {
			return fmt.Errorf("failed to scan foreign key row: %w", err)
		}

		table, ok := snapshot.GetTable(tableName)
		if !ok {
			continue
		}
		column, ok := table.GetColumn(columnName)
		if !ok {
			continue
		}
		column.ForeignKeys = append(column.ForeignKeys, &ForeignKey{
			Name:              name,
			Schema:            schemaName,
			Table:             tableName,
			Column:            columnName,
			RefSchema:         refSchema,
			RefTable:          refTable,
			RefColumn:         refColumn,
			NotEnforced:       notTrusted,
			NotForReplication: notForReplication,
			DeleteAction:      ParseFkAction(deleteAction),
			UpdateAction:      ParseFkAction(updateAction),
		})
	}
	return rows.Err()
}

// loadSequences loads sequences with their numeric shape.
func (l *Loader) loadSequences(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT s.name, sq.name, ty.name,
		       CAST(sq.start_value AS BIGINT), CAST(sq.increment AS BIGINT),
		       CAST(sq.minimum_value AS BIGINT), CAST(sq.maximum_value AS BIGINT),
		       sq.is_cycling, sq.is_cached, ISNULL(sq.cache_size, 0)
		FROM sys.sequences sq
		JOIN sys.schemas s ON s.schema_id = sq.schema_id
		ORDER BY s.name, sq.name
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, sequenceName, typeName string
		var start, increment, minValue, maxValue int64
		var isCycling, isCached bool
		var cacheSize int64
		if err := rows.Scan(&schemaName, &sequenceName, &typeName,
			&start, &increment, &minValue, &maxValue,
			&isCycling, &isCached, &cacheSize); err != nil {
			return fmt.Errorf("failed to scan sequence row: %w", err)
		}

		kind, ok := ParseTypeKind(typeName)
		if !ok {
			return fmt.Errorf("sequence %s has unsupported type %q", sequenceName, typeName)
		}

		sequence := &Sequence{
			Name:      sequenceName,
			Schema:    schemaName,
			Type:      SqlType{Kind: kind},
			Start:     start,
			Increment: increment,
			Cycle:     isCycling,
			Min:       &minValue,
			Max:       &maxValue,
		}
		if isCached && cacheSize > 0 {
			sequence.CacheSize = &cacheSize
		}
		snapshot.Sequences[Key(sequenceName)] = sequence
	}
	return rows.Err()
}

// loadProcedures loads stored procedures with their full definitions.
func (l *Loader) loadProcedures(db *sql.DB, snapshot *Database) error {
	query := `
		SELECT s.name, p.name, ISNULL(sm.definition, '')
		FROM sys.procedures p
		JOIN sys.schemas s ON s.schema_id = p.schema_id
		LEFT JOIN sys.sql_modules sm ON sm.object_id = p.object_id
		WHERE p.is_ms_shipped = 0
		ORDER BY s.name, p.name
	`

	ctx, cancel := l.context()
	defer cancel()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query procedures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, procedureName, definition string
		if err := rows.Scan(&schemaName, &procedureName, &definition); err != nil {
			return fmt.Errorf("failed to scan procedure row: %w", err)
		}
		snapshot.Procedures[Key(procedureName)] = &StoredProcedure{
			Name:       procedureName,
			Schema:     schemaName,
			Definition: definition,
		}
	}
	return rows.Err()
}
