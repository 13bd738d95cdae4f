package migration

import (
	"fmt"
	"strings"

	"github.com/lofcz/minfold/internal/schema"
)

// DropProcedure renders an idempotent DROP PROCEDURE.
func (sg *SQLGenerator) DropProcedure(procedure *schema.StoredProcedure) string {
	qualified := schema.QualifiedName(procedure.Schema, procedure.Name)
	return fmt.Sprintf("IF OBJECT_ID('%s', 'P') IS NOT NULL\n    DROP PROCEDURE %s;", qualified, qualified)
}

// CreateProcedure renders the full procedure definition. CREATE PROCEDURE
// must be the first statement of a batch; the statement is emitted as its
// own batch and the renderer brackets it with GO markers.
func (sg *SQLGenerator) CreateProcedure(procedure *schema.StoredProcedure) string {
	return strings.TrimSpace(procedure.Definition)
}
