// Package display renders schema diffs and migration summaries for the
// terminal. Colors degrade gracefully: piped output and dumb terminals get
// plain text.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/lofcz/minfold/internal/schema"
)

// Service renders user-facing output.
type Service struct {
	out      io.Writer
	colored  bool
	success  *color.Color
	warning  *color.Color
	failure  *color.Color
	info     *color.Color
	emphasis *color.Color
}

// Options controls rendering behavior.
type Options struct {
	Output  io.Writer
	NoColor bool
}

// NewService creates a display service, probing the output for TTY and
// color support.
func NewService(opts Options) *Service {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	colored := !opts.NoColor
	if file, ok := out.(*os.File); ok {
		if !isatty.IsTerminal(file.Fd()) && !isatty.IsCygwinTerminal(file.Fd()) {
			colored = false
		}
	} else {
		colored = false
	}
	if colored && termenv.EnvColorProfile() == termenv.Ascii {
		colored = false
	}

	service := &Service{
		out:      out,
		colored:  colored,
		success:  color.New(color.FgGreen),
		warning:  color.New(color.FgYellow),
		failure:  color.New(color.FgRed, color.Bold),
		info:     color.New(color.FgCyan),
		emphasis: color.New(color.Bold),
	}
	if !colored {
		for _, c := range []*color.Color{service.success, service.warning, service.failure, service.info, service.emphasis} {
			c.DisableColor()
		}
	}
	return service
}

// Success prints a success line.
func (s *Service) Success(message string) {
	fmt.Fprintln(s.out, s.success.Sprint(message))
}

// Warning prints a warning line.
func (s *Service) Warning(message string) {
	fmt.Fprintln(s.out, s.warning.Sprint(message))
}

// Error prints an error line.
func (s *Service) Error(message string) {
	fmt.Fprintln(s.out, s.failure.Sprint(message))
}

// Info prints an informational line.
func (s *Service) Info(message string) {
	fmt.Fprintln(s.out, s.info.Sprint(message))
}

// DiffSummary renders a human-readable summary of a schema diff.
func (s *Service) DiffSummary(diff *schema.SchemaDiff) {
	if diff.IsEmpty() {
		s.Success("No schema changes detected")
		return
	}

	fmt.Fprintln(s.out, s.emphasis.Sprint("Schema changes:"))

	for _, table := range diff.AddedTables {
		fmt.Fprintf(s.out, "  %s table %s (%d columns)\n",
			s.success.Sprint("+"), schema.QualifiedName(table.Schema, table.Name), len(table.Columns))
	}
	for _, table := range diff.RemovedTables {
		fmt.Fprintf(s.out, "  %s table %s\n",
			s.failure.Sprint("-"), schema.QualifiedName(table.Schema, table.Name))
	}
	for _, tableDiff := range diff.ModifiedTables {
		s.tableDiffLines(tableDiff)
	}

	for _, sequence := range diff.AddedSequences {
		fmt.Fprintf(s.out, "  %s sequence %s\n", s.success.Sprint("+"), sequence.Name)
	}
	for _, sequence := range diff.RemovedSequences {
		fmt.Fprintf(s.out, "  %s sequence %s\n", s.failure.Sprint("-"), sequence.Name)
	}
	for _, sequence := range diff.ModifiedSequences {
		fmt.Fprintf(s.out, "  %s sequence %s\n", s.warning.Sprint("~"), sequence.Name)
	}
	for _, procedure := range diff.AddedProcedures {
		fmt.Fprintf(s.out, "  %s procedure %s\n", s.success.Sprint("+"), procedure.Name)
	}
	for _, procedure := range diff.RemovedProcedures {
		fmt.Fprintf(s.out, "  %s procedure %s\n", s.failure.Sprint("-"), procedure.Name)
	}
	for _, procedure := range diff.ModifiedProcedures {
		fmt.Fprintf(s.out, "  %s procedure %s\n", s.warning.Sprint("~"), procedure.Name)
	}
}

func (s *Service) tableDiffLines(tableDiff *schema.TableDiff) {
	name := schema.QualifiedName(tableDiff.Schema, tableDiff.TableName)
	fmt.Fprintf(s.out, "  %s table %s\n", s.warning.Sprint("~"), name)

	if tableDiff.Reorder {
		fmt.Fprintf(s.out, "      %s column order changed, table will be rebuilt\n", s.warning.Sprint("!"))
	}
	for _, change := range tableDiff.ColumnChanges {
		switch change.Kind {
		case schema.ChangeAdd:
			fmt.Fprintf(s.out, "      %s %s %s\n",
				s.success.Sprint("+"), change.New.Name, change.New.Type.Render())
		case schema.ChangeDrop:
			fmt.Fprintf(s.out, "      %s %s\n", s.failure.Sprint("-"), change.Old.Name)
		case schema.ChangeAlter:
			fmt.Fprintf(s.out, "      %s %s %s -> %s\n",
				s.warning.Sprint("~"), change.Name(), change.Old.Type.Render(), change.New.Type.Render())
		case schema.ChangeRebuild:
			suffix := ""
			if change.Propagated {
				suffix = " (propagated)"
			}
			fmt.Fprintf(s.out, "      %s %s %s -> %s, drop and re-add%s\n",
				s.failure.Sprint("!"), change.Name(), change.Old.Type.Render(), change.New.Type.Render(), suffix)
		}
	}
	for _, index := range tableDiff.AddedIndexes {
		fmt.Fprintf(s.out, "      %s index %s\n", s.success.Sprint("+"), index.Name)
	}
	for _, index := range tableDiff.RemovedIndexes {
		fmt.Fprintf(s.out, "      %s index %s\n", s.failure.Sprint("-"), index.Name)
	}
	for _, group := range tableDiff.AddedFks {
		fmt.Fprintf(s.out, "      %s foreign key %s\n", s.success.Sprint("+"), group.Name)
	}
	for _, group := range tableDiff.RemovedFks {
		fmt.Fprintf(s.out, "      %s foreign key %s\n", s.failure.Sprint("-"), group.Name)
	}
	if tableDiff.PkChange != nil {
		fmt.Fprintf(s.out, "      %s primary key (%s) -> (%s)\n", s.warning.Sprint("~"),
			strings.Join(tableDiff.PkChange.OldColumns, ", "),
			strings.Join(tableDiff.PkChange.NewColumns, ", "))
	}
}

// Warnings lists destructive-change warnings before confirmation.
func (s *Service) Warnings(diff *schema.SchemaDiff) []string {
	var warnings []string
	for _, table := range diff.RemovedTables {
		warnings = append(warnings, fmt.Sprintf("table %s will be dropped, all its data is lost", table.Name))
	}
	for _, tableDiff := range diff.ModifiedTables {
		for _, change := range tableDiff.ColumnChanges {
			switch change.Kind {
			case schema.ChangeDrop:
				warnings = append(warnings, fmt.Sprintf("column %s.%s will be dropped, its data is lost",
					tableDiff.TableName, change.Old.Name))
			case schema.ChangeRebuild:
				warnings = append(warnings, fmt.Sprintf("column %s.%s requires a rebuild (%s)",
					tableDiff.TableName, change.Name(), change.Rule))
			case schema.ChangeAlter:
				if change.Old.IsNullable && !change.New.IsNullable {
					warnings = append(warnings, fmt.Sprintf("column %s.%s becomes NOT NULL, existing NULLs will fail",
						tableDiff.TableName, change.Name()))
				}
			}
		}
	}

	for _, warning := range warnings {
		s.Warning("  ! " + warning)
	}
	return warnings
}
