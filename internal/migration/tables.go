package migration

import (
	"fmt"
	"strings"

	"github.com/lofcz/minfold/internal/schema"
)

// CreateTable renders an idempotent CREATE TABLE with every column in
// ordinal order and the primary key inline. Defaults carry their canonical
// deterministic names; foreign keys and secondary indexes are emitted by
// their own phases.
func (sg *SQLGenerator) CreateTable(table *schema.Table) string {
	qualified := schema.QualifiedName(table.Schema, table.Name)

	definitions := make([]string, 0, len(table.Columns)+1)
	for _, column := range table.OrderedColumns() {
		definitions = append(definitions, sg.ColumnDefinition(table.Name, column, ""))
	}
	if pk := table.PrimaryKeyColumns(); len(pk) > 0 {
		definitions = append(definitions, fmt.Sprintf("CONSTRAINT [%s] PRIMARY KEY (%s)",
			PrimaryKeyName(table.Name), bracketJoin(pk)))
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NULL\nCREATE TABLE %s (\n    ",
		qualified, qualified))
	builder.WriteString(strings.Join(definitions, ",\n    "))
	builder.WriteString("\n);")
	return builder.String()
}

// DropTable renders an idempotent DROP TABLE.
func (sg *SQLGenerator) DropTable(schemaName, table string) string {
	qualified := schema.QualifiedName(schemaName, table)
	return fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NOT NULL\n    DROP TABLE %s;", qualified, qualified)
}

// ReorderTable renders the whole-table copy protocol: build a temp table
// in the desired column order, move the rows under IDENTITY_INSERT when an
// identity is present, swap the tables with sp_rename, and settle
// temp-named default constraints. The primary key, indexes and inbound
// foreign keys are recreated by the later phases.
//
// Numeric precision and scale are taken from the actual (current) column,
// not the target snapshot, whose value can be defaulted differently.
func (sg *SQLGenerator) ReorderTable(old, new *schema.Table) ([]string, error) {
	qualified := schema.QualifiedName(new.Schema, new.Name)
	tempName := TempTableName(new.Name)
	tempQualified := schema.QualifiedName(new.Schema, tempName)

	// ii. temp table in the desired order; defaults under temp names so
	// they cannot collide with the constraints still on the original
	var definitions []string
	var defaultRenames [][2]string
	for _, column := range new.OrderedColumns() {
		merged := *column
		if actual, ok := old.GetColumn(column.Name); ok {
			switch merged.Type.Kind {
			case schema.TypeDecimal, schema.TypeNumeric:
				merged.Type.Precision = actual.Type.Precision
				merged.Type.Scale = actual.Type.Scale
			}
		}
		defaultName := ""
		if merged.Default != nil {
			expression := schema.NormalizeDefault(merged.Default.Expression)
			canonical := DefaultConstraintName(new.Name, merged.Name, expression)
			defaultName = TempDefaultName(tempName, merged.Name, expression)
			defaultRenames = append(defaultRenames, [2]string{defaultName, canonical})
		}
		definitions = append(definitions, sg.ColumnDefinition(tempName, &merged, defaultName))
	}
	// the PK is recreated by its own phase after the swap; until then the
	// temp table stays a heap

	var fragments []string
	fragments = append(fragments, fmt.Sprintf("CREATE TABLE %s (\n    %s\n);",
		tempQualified, strings.Join(definitions, ",\n    ")))

	// iii. copy rows; the INSERT list takes the target's data columns present
	// in the source and the SELECT list the source's data columns kept in the
	// target, so a column that flips between data and computed makes their
	// counts differ, which is refused
	insertColumns := make([]string, 0, len(new.Columns))
	for _, column := range new.DataColumns() {
		if _, ok := old.GetColumn(column.Name); !ok {
			continue
		}
		insertColumns = append(insertColumns, column.Name)
	}
	selectColumns := make([]string, 0, len(old.Columns))
	for _, column := range old.DataColumns() {
		if _, ok := new.GetColumn(column.Name); !ok {
			continue
		}
		selectColumns = append(selectColumns, column.Name)
	}
	if len(insertColumns) != len(selectColumns) {
		return nil, fmt.Errorf("reorder of %s: INSERT list has %d columns, SELECT list has %d",
			new.Name, len(insertColumns), len(selectColumns))
	}
	// SELECT values must land in the matching INSERT slots
	for i := range insertColumns {
		selectColumns[i] = insertColumns[i]
	}

	copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s;",
		tempQualified, bracketJoin(insertColumns), bracketJoin(selectColumns), qualified)
	if new.IdentityColumn() != nil {
		copySQL = fmt.Sprintf("SET IDENTITY_INSERT %s ON; %s SET IDENTITY_INSERT %s OFF;",
			tempQualified, copySQL, tempQualified)
	}
	// dynamic SQL, guarded per source column, so the copy neither binds
	// nor runs unless the source still matches
	var guards []string
	for _, name := range insertColumns {
		guards = append(guards, fmt.Sprintf("COL_LENGTH('%s', '%s') IS NOT NULL", qualified, name))
	}
	guarded := copySQL
	if len(guards) > 0 {
		guarded = fmt.Sprintf("IF %s\nEXEC sp_executesql N'%s';",
			strings.Join(guards, "\n   AND "), strings.ReplaceAll(copySQL, "'", "''"))
	}
	fragments = append(fragments, guarded)

	// iv. swap
	fragments = append(fragments, fmt.Sprintf("DROP TABLE %s;", qualified))
	fragments = append(fragments, fmt.Sprintf("EXEC sp_rename '%s', '%s';", tempQualified, new.Name))

	// vi. settle default-constraint names
	for _, rename := range defaultRenames {
		fragments = append(fragments, fmt.Sprintf("EXEC sp_rename '%s', '%s', 'OBJECT';",
			schema.QualifiedName(new.Schema, rename[0]), rename[1]))
	}

	return fragments, nil
}

func bracketJoin(names []string) string {
	bracketed := make([]string, len(names))
	for i, name := range names {
		bracketed[i] = fmt.Sprintf("[%s]", name)
	}
	return strings.Join(bracketed, ", ")
}
