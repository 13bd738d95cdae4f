package migration

import (
	"fmt"

	"github.com/lofcz/minfold/internal/schema"
)

// PrimaryKeyName derives the deterministic name of a generated primary key
// constraint.
func PrimaryKeyName(table string) string {
	return fmt.Sprintf("PK_%s_%s", table, DeterministicSuffix(table, "primarykey"))
}

// DropPrimaryKey renders the dynamic lookup that removes whatever primary
// key constraint the table carries; its name may predate Minfold and
// cannot be assumed.
func (sg *SQLGenerator) DropPrimaryKey(schemaName, table string) string {
	qualified := schema.QualifiedName(schemaName, table)
	variable := SqlVariableName("pk", schemaName, table)
	return fmt.Sprintf(`DECLARE %[1]s NVARCHAR(128);
SELECT %[1]s = [name] FROM sys.key_constraints
WHERE [type] = 'PK' AND parent_object_id = OBJECT_ID('%[2]s', 'U');
IF %[1]s IS NOT NULL
    EXEC('ALTER TABLE %[2]s DROP CONSTRAINT [' + %[1]s + '];');`,
		variable, qualified)
}

// CreatePrimaryKey renders an idempotent primary key recreation.
func (sg *SQLGenerator) CreatePrimaryKey(schemaName, table string, columns []string) string {
	qualified := schema.QualifiedName(schemaName, table)
	return fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM sys.key_constraints WHERE [type] = 'PK' AND parent_object_id = OBJECT_ID('%s', 'U'))
    ALTER TABLE %s ADD CONSTRAINT [%s] PRIMARY KEY (%s);`,
		qualified, qualified, PrimaryKeyName(table), bracketJoin(columns))
}
