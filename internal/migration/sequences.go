package migration

import (
	"fmt"
	"strings"

	"github.com/lofcz/minfold/internal/schema"
)

// CreateSequence renders an idempotent CREATE SEQUENCE. Sequence
// modification is always drop + create; ALTER SEQUENCE cannot change every
// property.
func (sg *SQLGenerator) CreateSequence(sequence *schema.Sequence) string {
	qualified := schema.QualifiedName(sequence.Schema, sequence.Name)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("IF OBJECT_ID('%s', 'SO') IS NULL\n    CREATE SEQUENCE %s AS %s",
		qualified, qualified, sequence.Type.Render()))
	builder.WriteString(fmt.Sprintf(" START WITH %d INCREMENT BY %d", sequence.Start, sequence.Increment))
	if sequence.Min != nil {
		builder.WriteString(fmt.Sprintf(" MINVALUE %d", *sequence.Min))
	} else {
		builder.WriteString(" NO MINVALUE")
	}
	if sequence.Max != nil {
		builder.WriteString(fmt.Sprintf(" MAXVALUE %d", *sequence.Max))
	} else {
		builder.WriteString(" NO MAXVALUE")
	}
	if sequence.Cycle {
		builder.WriteString(" CYCLE")
	} else {
		builder.WriteString(" NO CYCLE")
	}
	if sequence.CacheSize != nil {
		builder.WriteString(fmt.Sprintf(" CACHE %d", *sequence.CacheSize))
	}
	builder.WriteString(";")
	return builder.String()
}

// DropSequence renders an idempotent DROP SEQUENCE.
func (sg *SQLGenerator) DropSequence(sequence *schema.Sequence) string {
	qualified := schema.QualifiedName(sequence.Schema, sequence.Name)
	return fmt.Sprintf("IF OBJECT_ID('%s', 'SO') IS NOT NULL\n    DROP SEQUENCE %s;", qualified, qualified)
}
