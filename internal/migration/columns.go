package migration

import (
	"fmt"
	"strings"

	"github.com/lofcz/minfold/internal/schema"
)

// SQLGenerator builds the idempotent SQL fragments of a migration script.
// It is stateless; every method derives auxiliary names through the
// deterministic suffix so regeneration is byte-identical.
type SQLGenerator struct{}

// NewSQLGenerator creates a new SQLGenerator instance.
func NewSQLGenerator() *SQLGenerator {
	return &SQLGenerator{}
}

// ColumnDefinition renders the full column definition used by CREATE TABLE
// and ALTER TABLE ADD. defaultName overrides the constraint name when a
// default is attached; empty means derive the canonical name.
func (sg *SQLGenerator) ColumnDefinition(table string, column *schema.Column, defaultName string) string {
	if column.IsComputed {
		return fmt.Sprintf("[%s] AS %s", column.Name, column.ComputedExpr)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("[%s] %s", column.Name, column.Type.Render()))

	if column.IsIdentity {
		seed, step := column.IdentitySeed, column.IdentityStep
		if seed == 0 && step == 0 {
			seed, step = 1, 1
		}
		builder.WriteString(fmt.Sprintf(" IDENTITY(%d,%d)", seed, step))
	}

	if column.IsNullable {
		builder.WriteString(" NULL")
	} else {
		builder.WriteString(" NOT NULL")
	}

	if column.Default != nil {
		expression := schema.NormalizeDefault(column.Default.Expression)
		name := defaultName
		if name == "" {
			name = DefaultConstraintName(table, column.Name, expression)
		}
		builder.WriteString(fmt.Sprintf(" CONSTRAINT [%s] DEFAULT (%s)", name, expression))
	}

	return builder.String()
}

// DropDefaultConstraint emits the dynamic lookup that removes whatever
// default constraint is bound to a column. The constraint's auto-generated
// name cannot be assumed, so it is discovered from sys.default_constraints
// at run time.
func (sg *SQLGenerator) DropDefaultConstraint(schemaName, table, column string) string {
	qualified := schema.QualifiedName(schemaName, table)
	variable := SqlVariableName("df", schemaName, table, column)
	return fmt.Sprintf(`DECLARE %[1]s NVARCHAR(128);
SELECT %[1]s = [name] FROM sys.default_constraints
WHERE parent_object_id = OBJECT_ID('%[2]s', 'U')
  AND parent_column_id = COLUMNPROPERTY(OBJECT_ID('%[2]s', 'U'), '%[3]s', 'ColumnId');
IF %[1]s IS NOT NULL
    EXEC('ALTER TABLE %[2]s DROP CONSTRAINT [' + %[1]s + '];');`,
		variable, qualified, column)
}

// AddDefaultConstraint emits the named default for a column.
func (sg *SQLGenerator) AddDefaultConstraint(schemaName, table, column, name, expression string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT [%s] DEFAULT (%s) FOR [%s];",
		schema.QualifiedName(schemaName, table), name, expression, column)
}

// AddColumn renders the ALTER TABLE ADD for a new column. When the column
// is NOT NULL and has no declared default, a backfill default is attached
// in the same statement so existing rows receive the type's fill value; the
// transient constraint is dropped right after. The returned slice is the
// ordered fragment list.
func (sg *SQLGenerator) AddColumn(schemaName, table string, column *schema.Column) []string {
	qualified := schema.QualifiedName(schemaName, table)

	if column.IsComputed || column.IsNullable || column.IsIdentity || column.Default != nil {
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s;",
			qualified, sg.ColumnDefinition(table, column, ""))}
	}

	// NOT NULL without a default: backfill through a transient constraint
	fill := fillExpression(column.Type)
	name := TempDefaultName(table, column.Name, fill)
	add := fmt.Sprintf("ALTER TABLE %s ADD [%s] %s NOT NULL CONSTRAINT [%s] DEFAULT %s;",
		qualified, column.Name, column.Type.Render(), name, fill)
	drop := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT [%s];", qualified, name)
	return []string{add, drop}
}

// DropColumn renders the fragments removing a column: its default
// constraint first (dynamic lookup), then the column itself.
func (sg *SQLGenerator) DropColumn(schemaName, table, column string) []string {
	return []string{
		sg.DropDefaultConstraint(schemaName, table, column),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN [%s];",
			schema.QualifiedName(schemaName, table), column),
	}
}

// AlterColumn renders the fragments for an in-place modification: the
// default is dropped first (SQL Server forbids ALTER COLUMN under one),
// the column altered, and the default re-added under its canonical name
// when the target still carries one.
func (sg *SQLGenerator) AlterColumn(schemaName, table string, new *schema.Column) []string {
	qualified := schema.QualifiedName(schemaName, table)
	fragments := []string{
		sg.DropDefaultConstraint(schemaName, table, new.Name),
	}

	nullability := "NOT NULL"
	if new.IsNullable {
		nullability = "NULL"
	}
	fragments = append(fragments, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN [%s] %s %s;",
		qualified, new.Name, new.Type.Render(), nullability))

	if new.Default != nil {
		expression := schema.NormalizeDefault(new.Default.Expression)
		fragments = append(fragments, sg.AddDefaultConstraint(schemaName, table, new.Name,
			DefaultConstraintName(table, new.Name, expression), expression))
	}

	return fragments
}

// ReplaceDefault renders the fragments for pure default-constraint churn:
// drop whatever default is bound, then add the new one when the target has
// one.
func (sg *SQLGenerator) ReplaceDefault(schemaName, table string, new *schema.Column) []string {
	fragments := []string{
		sg.DropDefaultConstraint(schemaName, table, new.Name),
	}
	if new.Default != nil {
		expression := schema.NormalizeDefault(new.Default.Expression)
		fragments = append(fragments, sg.AddDefaultConstraint(schemaName, table, new.Name,
			DefaultConstraintName(table, new.Name, expression), expression))
	}
	return fragments
}

// RebuildColumn renders a plain drop-and-re-add for changes ALTER COLUMN
// cannot express. Values are not carried over; incompatible conversions
// are inherently lossy.
func (sg *SQLGenerator) RebuildColumn(schemaName, table string, old, new *schema.Column) []string {
	fragments := sg.DropColumn(schemaName, table, old.Name)
	fragments = append(fragments, sg.AddColumn(schemaName, table, new)...)
	return fragments
}

// SafeRebuildColumn renders the safe-wrapper protocol: introduce a temp
// column with the new definition, copy values through dynamic SQL, drop
// the old column, rename the temp one back, and settle the default
// constraint. Used when the rebuild targets the table's only data column
// or when an identity column's values must be preserved.
func (sg *SQLGenerator) SafeRebuildColumn(schemaName, table string, old, new *schema.Column) []string {
	qualified := schema.QualifiedName(schemaName, table)
	temp := TempColumnName(table, new.Name)
	var fragments []string

	// a. temp column with the new definition; transient default when the
	// new column is NOT NULL on a possibly non-empty table
	tempColumn := *new
	tempColumn.Name = temp
	tempColumn.Default = nil
	tempColumn.IsIdentity = false
	tempDefault := ""
	if !new.IsNullable && !new.IsComputed {
		fill := fillExpression(new.Type)
		tempDefault = TempDefaultName(table, temp, fill)
		fragments = append(fragments, fmt.Sprintf("ALTER TABLE %s ADD [%s] %s NOT NULL CONSTRAINT [%s] DEFAULT %s;",
			qualified, temp, new.Type.Render(), tempDefault, fill))
	} else {
		fragments = append(fragments, fmt.Sprintf("ALTER TABLE %s ADD %s;",
			qualified, sg.ColumnDefinition(table, &tempColumn, "")))
	}

	// b. copy via dynamic SQL so parse-time binding cannot fail mid-script
	fragments = append(fragments, fmt.Sprintf("EXEC sp_executesql N'UPDATE %s SET [%s] = [%s];';",
		qualified, temp, old.Name))

	// c. transient default is no longer needed
	if tempDefault != "" {
		fragments = append(fragments, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT [%s];",
			qualified, tempDefault))
	}

	// d. old column goes, default constraint first
	fragments = append(fragments, sg.DropColumn(schemaName, table, old.Name)...)

	// e. temp column takes the original name
	fragments = append(fragments, fmt.Sprintf("EXEC sp_rename '%s.[%s]', '%s', 'COLUMN';",
		qualified, temp, new.Name))

	// f. settle the default under the final name
	if new.Default != nil {
		expression := schema.NormalizeDefault(new.Default.Expression)
		fragments = append(fragments, sg.AddDefaultConstraint(schemaName, table, new.Name,
			DefaultConstraintName(table, new.Name, expression), expression))
	} else {
		fragments = append(fragments, sg.DropDefaultConstraint(schemaName, table, new.Name))
	}

	return fragments
}

// fillExpression returns the backfill value attached when a NOT NULL
// column is introduced on a table that may contain rows.
func fillExpression(t schema.SqlType) string {
	switch t.Family() {
	case schema.FamilyInteger, schema.FamilyExact, schema.FamilyApproximate, schema.FamilyBit:
		return "0"
	case schema.FamilyUnicodeString:
		return "N''"
	case schema.FamilyAnsiString, schema.FamilyXml:
		return "''"
	case schema.FamilyBinary:
		return "0x"
	case schema.FamilyGuid:
		return "'00000000-0000-0000-0000-000000000000'"
	case schema.FamilyDateTime:
		return "'1900-01-01'"
	default:
		return "''"
	}
}
