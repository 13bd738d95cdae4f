package schema

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lofcz/minfold/internal/logging"
)

// Differ compares two schema snapshots and produces a SchemaDiff. It is
// total: structural inconsistencies are reported as facts here and raised
// by the generator, never by the differ.
type Differ struct {
	logger *logging.Logger
}

// NewDiffer creates a differ with the default logger.
func NewDiffer() *Differ {
	return &Differ{logger: logging.NewDefaultLogger()}
}

// NewDifferWithLogger creates a differ with an injected logger.
func NewDifferWithLogger(logger *logging.Logger) *Differ {
	return &Differ{logger: logger}
}

// Diff computes SchemaDiff(current → target): applying the resulting up
// script to a database matching current yields target. The down diff is
// obtained by swapping operands.
func (d *Differ) Diff(current, target *Database) *SchemaDiff {
	startTime := time.Now()
	diff := NewSchemaDiff()

	d.diffTables(current, target, diff)
	PropagateRebuilds(diff, current, target)
	d.diffSequences(current, target, diff)
	d.diffProcedures(current, target, diff)

	d.logger.LogSchemaComparison(current.Name, target.Name, diff.ChangeCount(), time.Since(startTime))
	return diff
}

func (d *Differ) diffTables(current, target *Database, diff *SchemaDiff) {
	for _, key := range sortedKeys(target.Tables) {
		if _, exists := current.Tables[key]; !exists {
			diff.AddedTables = append(diff.AddedTables, target.Tables[key])
		}
	}
	for _, key := range sortedKeys(current.Tables) {
		if _, exists := target.Tables[key]; !exists {
			diff.RemovedTables = append(diff.RemovedTables, current.Tables[key])
		}
	}
	for _, key := range sortedKeys(current.Tables) {
		targetTable, exists := target.Tables[key]
		if !exists {
			continue
		}
		tableDiff := d.compareTable(current.Tables[key], targetTable)
		if !tableDiff.IsEmpty() {
			diff.ModifiedTables = append(diff.ModifiedTables, tableDiff)
		}
	}
}

// compareTable computes a TableDiff for a table present in both snapshots.
func (d *Differ) compareTable(current, target *Table) *TableDiff {
	tableDiff := &TableDiff{
		TableName: target.Name,
		Schema:    target.Schema,
		Old:       current,
		New:       target,
	}

	d.compareColumns(current, target, tableDiff)
	d.compareOrdinals(current, target, tableDiff)
	d.compareIndexes(current, target, tableDiff)
	d.compareForeignKeys(current, target, tableDiff)
	d.comparePrimaryKey(current, target, tableDiff)

	return tableDiff
}

func (d *Differ) compareColumns(current, target *Table, tableDiff *TableDiff) {
	for _, key := range sortedKeys(target.Columns) {
		if _, exists := current.Columns[key]; !exists {
			tableDiff.ColumnChanges = append(tableDiff.ColumnChanges, &ColumnChange{
				Kind: ChangeAdd,
				New:  target.Columns[key],
			})
		}
	}
	for _, key := range sortedKeys(current.Columns) {
		if _, exists := target.Columns[key]; !exists {
			tableDiff.ColumnChanges = append(tableDiff.ColumnChanges, &ColumnChange{
				Kind: ChangeDrop,
				Old:  current.Columns[key],
			})
		}
	}
	for _, key := range sortedKeys(current.Columns) {
		targetColumn, exists := target.Columns[key]
		if !exists {
			continue
		}
		currentColumn := current.Columns[key]
		if columnsEqual(currentColumn, targetColumn) {
			continue
		}
		change := &ColumnChange{
			Kind: ChangeAlter,
			Old:  currentColumn,
			New:  targetColumn,
		}
		ClassifyChange(change)
		tableDiff.ColumnChanges = append(tableDiff.ColumnChanges, change)
	}
}

// columnsEqual compares the fields relevant to migration. Ordinal position
// is deliberately excluded; it is consulted last by compareOrdinals.
func columnsEqual(a, b *Column) bool {
	if !a.Type.Equal(b.Type) {
		return false
	}
	if a.IsNullable != b.IsNullable {
		return false
	}
	if a.IsIdentity != b.IsIdentity {
		return false
	}
	if a.IsIdentity && (a.IdentitySeed != b.IdentitySeed || a.IdentityStep != b.IdentityStep) {
		return false
	}
	if a.IsComputed != b.IsComputed {
		return false
	}
	if a.IsComputed && !strings.EqualFold(strings.TrimSpace(a.ComputedExpr), strings.TrimSpace(b.ComputedExpr)) {
		return false
	}
	if !DefaultsEqual(a.Default, b.Default) {
		return false
	}
	if a.IsPrimaryKey != b.IsPrimaryKey {
		return false
	}
	return true
}

// compareOrdinals implements the reorder rule: identical column sets,
// differing positions, and at least one moved column participating in an
// index or referenced by a computed expression. Ordinal-only changes with
// no such dependency are ignored.
func (d *Differ) compareOrdinals(current, target *Table, tableDiff *TableDiff) {
	if len(current.Columns) != len(target.Columns) {
		return
	}
	for key := range current.Columns {
		if _, exists := target.Columns[key]; !exists {
			return
		}
	}
	for key, currentColumn := range current.Columns {
		targetColumn := target.Columns[key]
		if currentColumn.OrdinalPosition == targetColumn.OrdinalPosition {
			continue
		}
		if columnHasDependents(target, targetColumn.Name) || columnHasDependents(current, currentColumn.Name) {
			tableDiff.Reorder = true
			d.logger.WithFields(map[string]interface{}{
				"table":  target.Name,
				"column": targetColumn.Name,
			}).Debug("Column move requires whole-table reorder")
			return
		}
	}
}

// columnHasDependents reports whether a column participates in an index or
// is textually referenced by some computed column's expression.
func columnHasDependents(table *Table, columnName string) bool {
	for _, index := range table.Indexes {
		for _, indexColumn := range index.Columns {
			if Key(indexColumn) == Key(columnName) {
				return true
			}
		}
	}
	for _, column := range table.Columns {
		if column.IsComputed && ExpressionReferences(column.ComputedExpr, columnName) {
			return true
		}
	}
	return false
}

// ExpressionReferences reports whether a computed-column expression
// textually references a column. Expressions are opaque: the check is a
// case-insensitive word-boundary scan with brackets stripped, not a parse.
func ExpressionReferences(expression, columnName string) bool {
	if expression == "" {
		return false
	}
	stripped := strings.NewReplacer("[", " ", "]", " ").Replace(expression)
	pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(columnName) + `\b`)
	return pattern.MatchString(stripped)
}

func (d *Differ) compareIndexes(current, target *Table, tableDiff *TableDiff) {
	currentIndexes := indexesByName(current)
	targetIndexes := indexesByName(target)

	for _, key := range sortedKeys(targetIndexes) {
		currentIndex, exists := currentIndexes[key]
		if !exists {
			tableDiff.AddedIndexes = append(tableDiff.AddedIndexes, targetIndexes[key])
			continue
		}
		if !currentIndex.Equal(targetIndexes[key]) {
			// structural change is a drop and a recreate
			tableDiff.RemovedIndexes = append(tableDiff.RemovedIndexes, currentIndex)
			tableDiff.AddedIndexes = append(tableDiff.AddedIndexes, targetIndexes[key])
		}
	}
	for _, key := range sortedKeys(currentIndexes) {
		if _, exists := targetIndexes[key]; !exists {
			tableDiff.RemovedIndexes = append(tableDiff.RemovedIndexes, currentIndexes[key])
		}
	}
}

func indexesByName(table *Table) map[string]*Index {
	byName := make(map[string]*Index, len(table.Indexes))
	for _, index := range table.Indexes {
		byName[Key(index.Name)] = index
	}
	return byName
}

func (d *Differ) compareForeignKeys(current, target *Table, tableDiff *TableDiff) {
	currentGroups := fkGroupsByName(current)
	targetGroups := fkGroupsByName(target)

	for _, key := range sortedKeys(targetGroups) {
		currentGroup, exists := currentGroups[key]
		if !exists {
			tableDiff.AddedFks = append(tableDiff.AddedFks, targetGroups[key])
			continue
		}
		if !currentGroup.Equal(targetGroups[key]) {
			tableDiff.RemovedFks = append(tableDiff.RemovedFks, currentGroup)
			tableDiff.AddedFks = append(tableDiff.AddedFks, targetGroups[key])
		}
	}
	for _, key := range sortedKeys(currentGroups) {
		if _, exists := targetGroups[key]; !exists {
			tableDiff.RemovedFks = append(tableDiff.RemovedFks, currentGroups[key])
		}
	}
}

func fkGroupsByName(table *Table) map[string]*FkGroup {
	byName := make(map[string]*FkGroup)
	for _, group := range table.ForeignKeyGroups() {
		byName[Key(group.Name)] = group
	}
	return byName
}

func (d *Differ) comparePrimaryKey(current, target *Table, tableDiff *TableDiff) {
	currentPk := current.PrimaryKeyColumns()
	targetPk := target.PrimaryKeyColumns()
	if pkEqual(currentPk, targetPk) {
		return
	}
	tableDiff.PkChange = &PrimaryKeyChange{
		OldColumns: currentPk,
		NewColumns: targetPk,
	}
}

func pkEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if Key(a[i]) != Key(b[i]) {
			return false
		}
	}
	return true
}

func (d *Differ) diffSequences(current, target *Database, diff *SchemaDiff) {
	for _, key := range sortedKeys(target.Sequences) {
		currentSequence, exists := current.Sequences[key]
		if !exists {
			diff.AddedSequences = append(diff.AddedSequences, target.Sequences[key])
			continue
		}
		if !currentSequence.Equal(target.Sequences[key]) {
			diff.ModifiedSequences = append(diff.ModifiedSequences, target.Sequences[key])
		}
	}
	for _, key := range sortedKeys(current.Sequences) {
		if _, exists := target.Sequences[key]; !exists {
			diff.RemovedSequences = append(diff.RemovedSequences, current.Sequences[key])
		}
	}
}

func (d *Differ) diffProcedures(current, target *Database, diff *SchemaDiff) {
	for _, key := range sortedKeys(target.Procedures) {
		currentProcedure, exists := current.Procedures[key]
		if !exists {
			diff.AddedProcedures = append(diff.AddedProcedures, target.Procedures[key])
			continue
		}
		if strings.TrimSpace(currentProcedure.Definition) != strings.TrimSpace(target.Procedures[key].Definition) {
			diff.ModifiedProcedures = append(diff.ModifiedProcedures, target.Procedures[key])
		}
	}
	for _, key := range sortedKeys(current.Procedures) {
		if _, exists := target.Procedures[key]; !exists {
			diff.RemovedProcedures = append(diff.RemovedProcedures, current.Procedures[key])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
