package migration

import (
	"fmt"
	"strings"
)

// PhaseKind identifies one of the generator's ordered phases. Phases are
// emitted in this order and numbered sequentially among the non-empty ones.
type PhaseKind int

const (
	PhaseDropForeignKeys PhaseKind = iota
	PhaseDropProcedures
	PhaseDropIndexes
	PhaseDropPrimaryKeys
	PhaseDropTables
	PhaseDropSequences
	PhaseCreateSequences
	PhaseCreateTables
	PhaseColumnOperations
	PhaseCreatePrimaryKeys
	PhaseCreateIndexes
	PhaseCreateForeignKeys
	PhaseCreateProcedures
	phaseCount
)

var phaseTitles = map[PhaseKind]string{
	PhaseDropForeignKeys:   "Drop foreign keys",
	PhaseDropProcedures:    "Drop stored procedures",
	PhaseDropIndexes:       "Drop indexes",
	PhaseDropPrimaryKeys:   "Drop primary keys",
	PhaseDropTables:        "Drop tables",
	PhaseDropSequences:     "Drop sequences",
	PhaseCreateSequences:   "Create sequences",
	PhaseCreateTables:      "Create tables",
	PhaseColumnOperations:  "Column operations",
	PhaseCreatePrimaryKeys: "Recreate primary keys",
	PhaseCreateIndexes:     "Recreate indexes",
	PhaseCreateForeignKeys: "Recreate foreign keys",
	PhaseCreateProcedures:  "Create stored procedures",
}

// Title returns the human-readable phase title used in phase headers.
func (k PhaseKind) Title() string {
	return phaseTitles[k]
}

// Statement is one SQL fragment of a phase. OwnBatch marks statements that
// must be the first statement of a batch (procedure bodies); the renderer
// brackets them with GO markers and the applier splits on those.
type Statement struct {
	SQL      string
	OwnBatch bool
}

// Script is a generated migration script: an ordered set of phases, each a
// list of statements. Phases with no statements are not rendered.
type Script struct {
	phases [phaseCount][]Statement
}

// ScriptHeader is the first line of every generated script.
const ScriptHeader = "-- Generated using Minfold, do not edit manually"

// NewScript creates an empty script.
func NewScript() *Script {
	return &Script{}
}

// Add appends a statement to a phase.
func (s *Script) Add(phase PhaseKind, sql string) {
	s.phases[phase] = append(s.phases[phase], Statement{SQL: sql})
}

// Addf appends a formatted statement to a phase.
func (s *Script) Addf(phase PhaseKind, format string, args ...interface{}) {
	s.Add(phase, fmt.Sprintf(format, args...))
}

// AddBatch appends a statement that must run as its own batch.
func (s *Script) AddBatch(phase PhaseKind, sql string) {
	s.phases[phase] = append(s.phases[phase], Statement{SQL: sql, OwnBatch: true})
}

// Statements returns the statements of one phase.
func (s *Script) Statements(phase PhaseKind) []Statement {
	return s.phases[phase]
}

// IsEmpty reports whether no phase carries a statement.
func (s *Script) IsEmpty() bool {
	for _, statements := range s.phases {
		if len(statements) > 0 {
			return false
		}
	}
	return true
}

// PhaseCount returns the number of non-empty phases.
func (s *Script) PhaseCount() int {
	count := 0
	for _, statements := range s.phases {
		if len(statements) > 0 {
			count++
		}
	}
	return count
}

// Render assembles the script text: header, SET XACT_ABORT ON, then each
// non-empty phase under a numbered header. Phases are separated by blank
// lines; own-batch statements are bracketed by GO markers.
func (s *Script) Render() string {
	var builder strings.Builder
	builder.WriteString(ScriptHeader)
	builder.WriteString("\nSET XACT_ABORT ON;\n")

	number := 0
	for kind := PhaseKind(0); kind < phaseCount; kind++ {
		statements := s.phases[kind]
		if len(statements) == 0 {
			continue
		}
		number++
		builder.WriteString(fmt.Sprintf("\n-- ============ Phase %d: %s ============\n", number, kind.Title()))
		for _, statement := range statements {
			sql := strings.TrimRight(statement.SQL, "\n")
			if statement.OwnBatch {
				builder.WriteString("GO\n")
				builder.WriteString(sql)
				builder.WriteString("\nGO\n")
				continue
			}
			builder.WriteString(sql)
			builder.WriteString("\n")
		}
	}

	return builder.String()
}
