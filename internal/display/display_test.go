package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lofcz/minfold/internal/schema"
)

func testService() (*Service, *bytes.Buffer) {
	var out bytes.Buffer
	return NewService(Options{Output: &out, NoColor: true}), &out
}

func TestDiffSummaryEmpty(t *testing.T) {
	service, out := testService()
	service.DiffSummary(schema.NewSchemaDiff())
	if !strings.Contains(out.String(), "No schema changes") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestDiffSummaryListsChanges(t *testing.T) {
	service, out := testService()

	added := schema.NewTable("users")
	added.Columns["id"] = &schema.Column{Name: "id", OrdinalPosition: 1, Type: schema.NewSqlType(schema.TypeInt)}

	diff := schema.NewSchemaDiff()
	diff.AddedTables = append(diff.AddedTables, added)
	diff.ModifiedTables = append(diff.ModifiedTables, &schema.TableDiff{
		TableName: "orders",
		Schema:    "dbo",
		ColumnChanges: []*schema.ColumnChange{{
			Kind: schema.ChangeRebuild,
			Old:  &schema.Column{Name: "note", Type: schema.NewStringType(schema.TypeVarChar, 100)},
			New:  &schema.Column{Name: "note", Type: schema.NewSqlType(schema.TypeText)},
		}},
	})

	service.DiffSummary(diff)
	rendered := out.String()

	if !strings.Contains(rendered, "+ table [dbo].[users]") {
		t.Errorf("added table missing:\n%s", rendered)
	}
	if !strings.Contains(rendered, "~ table [dbo].[orders]") {
		t.Errorf("modified table missing:\n%s", rendered)
	}
	if !strings.Contains(rendered, "VARCHAR(100) -> TEXT") {
		t.Errorf("rebuild line missing:\n%s", rendered)
	}
}

func TestWarningsForDestructiveChanges(t *testing.T) {
	service, out := testService()

	diff := schema.NewSchemaDiff()
	diff.RemovedTables = append(diff.RemovedTables, schema.NewTable("legacy"))
	diff.ModifiedTables = append(diff.ModifiedTables, &schema.TableDiff{
		TableName: "users",
		ColumnChanges: []*schema.ColumnChange{{
			Kind: schema.ChangeDrop,
			Old:  &schema.Column{Name: "nickname", Type: schema.NewStringType(schema.TypeVarChar, 50)},
		}},
	})

	warnings := service.Warnings(diff)
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(out.String(), "legacy") || !strings.Contains(out.String(), "nickname") {
		t.Errorf("warnings must name the dropped objects:\n%s", out.String())
	}
}
