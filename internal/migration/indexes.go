package migration

import (
	"fmt"

	"github.com/lofcz/minfold/internal/schema"
)

// CreateIndex renders an idempotent CREATE INDEX.
func (sg *SQLGenerator) CreateIndex(index *schema.Index) string {
	unique := ""
	if index.IsUnique {
		unique = "UNIQUE "
	}
	qualified := schema.QualifiedName(index.Schema, index.Table)
	return fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE [name] = '%s' AND [object_id] = OBJECT_ID('%s', 'U'))
    CREATE %sINDEX [%s] ON %s (%s);`,
		index.Name, qualified, unique, index.Name, qualified, bracketJoin(index.Columns))
}

// DropIndex renders an idempotent DROP INDEX.
func (sg *SQLGenerator) DropIndex(index *schema.Index) string {
	qualified := schema.QualifiedName(index.Schema, index.Table)
	return fmt.Sprintf(`IF EXISTS (SELECT 1 FROM sys.indexes WHERE [name] = '%s' AND [object_id] = OBJECT_ID('%s', 'U'))
    DROP INDEX [%s] ON %s;`,
		index.Name, qualified, index.Name, qualified)
}
