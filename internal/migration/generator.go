package migration

import (
	"fmt"
	"sort"
	"time"

	"github.com/lofcz/minfold/internal/errors"
	"github.com/lofcz/minfold/internal/logging"
	"github.com/lofcz/minfold/internal/schema"
)

// Migration is a generated up/down script pair.
type Migration struct {
	Name string
	Up   *Script
	Down *Script
}

// Generator sequences SQL fragments into numbered phases so that
// dependency order is satisfied regardless of diff shape. It is a pure
// function of its inputs: the same two schemas produce byte-identical
// output on every run.
type Generator struct {
	sqlGenerator *SQLGenerator
	differ       *schema.Differ
	logger       *logging.Logger
}

// NewGenerator creates a generator with the default logger.
func NewGenerator() *Generator {
	return NewGeneratorWithLogger(logging.NewDefaultLogger())
}

// NewGeneratorWithLogger creates a generator with an injected logger.
func NewGeneratorWithLogger(logger *logging.Logger) *Generator {
	return &Generator{
		sqlGenerator: NewSQLGenerator(),
		differ:       schema.NewDifferWithLogger(logger),
		logger:       logger,
	}
}

// GenerateMigration diffs current against target and produces the up and
// down scripts. The down direction runs the identical pipeline with the
// operands swapped. Returns ErrNoChangesToMigrate when the schemas match.
func (g *Generator) GenerateMigration(name string, current, target *schema.Database) (*Migration, error) {
	startTime := time.Now()

	upDiff := g.differ.Diff(current, target)
	if upDiff.IsEmpty() {
		return nil, errors.ErrNoChangesToMigrate
	}

	up, err := g.GenerateScript(upDiff, current, target)
	if err != nil {
		g.logger.LogScriptGeneration(name, 0, time.Since(startTime), err)
		return nil, err
	}

	downDiff := g.differ.Diff(target, current)
	down, err := g.GenerateScript(downDiff, target, current)
	if err != nil {
		g.logger.LogScriptGeneration(name, 0, time.Since(startTime), err)
		return nil, err
	}

	g.logger.LogScriptGeneration(name, up.PhaseCount(), time.Since(startTime), nil)
	return &Migration{Name: name, Up: up, Down: down}, nil
}

// GenerateScript emits the phased script for one diff direction. current
// and target are the snapshots the diff was computed over, in that order.
func (g *Generator) GenerateScript(diff *schema.SchemaDiff, current, target *schema.Database) (*Script, error) {
	if diff.IsEmpty() {
		return nil, errors.ErrNoChangesToMigrate
	}
	if err := g.checkCoherence(diff, target); err != nil {
		return nil, err
	}

	// identity-gaining rebuilds cannot copy values through a temp column
	// (identity columns reject UPDATE); route the table through the
	// whole-table copy, which preserves them under IDENTITY_INSERT
	for _, tableDiff := range diff.ModifiedTables {
		for _, change := range tableDiff.ColumnChanges {
			if change.Kind == schema.ChangeRebuild && change.Old != nil && change.New != nil &&
				change.New.IsIdentity && !change.Old.IsIdentity {
				tableDiff.Reorder = true
			}
		}
	}

	script := NewScript()
	plan := g.collect(diff, current, target)

	for _, group := range plan.dropFks {
		script.Add(PhaseDropForeignKeys, g.sqlGenerator.DropForeignKey(group))
	}
	for _, procedure := range append(diff.RemovedProcedures, diff.ModifiedProcedures...) {
		script.Add(PhaseDropProcedures, g.sqlGenerator.DropProcedure(procedure))
	}
	for _, index := range plan.dropIndexes {
		script.Add(PhaseDropIndexes, g.sqlGenerator.DropIndex(index))
	}
	for _, table := range plan.dropPks {
		script.Add(PhaseDropPrimaryKeys, g.sqlGenerator.DropPrimaryKey(table.Schema, table.Name))
	}
	for _, table := range diff.RemovedTables {
		script.Add(PhaseDropTables, g.sqlGenerator.DropTable(table.Schema, table.Name))
	}
	for _, sequence := range append(diff.RemovedSequences, modifiedSequenceOlds(diff, current)...) {
		script.Add(PhaseDropSequences, g.sqlGenerator.DropSequence(sequence))
	}
	for _, sequence := range append(diff.AddedSequences, diff.ModifiedSequences...) {
		script.Add(PhaseCreateSequences, g.sqlGenerator.CreateSequence(sequence))
	}
	for _, table := range diff.AddedTables {
		script.Add(PhaseCreateTables, g.sqlGenerator.CreateTable(table))
	}

	for _, tableDiff := range diff.ModifiedTables {
		if err := g.emitTableOperations(script, tableDiff); err != nil {
			return nil, err
		}
	}

	for _, table := range plan.createPks {
		columns := table.PrimaryKeyColumns()
		if len(columns) == 0 {
			continue
		}
		script.Add(PhaseCreatePrimaryKeys, g.sqlGenerator.CreatePrimaryKey(table.Schema, table.Name, columns))
	}
	for _, index := range plan.createIndexes {
		script.Add(PhaseCreateIndexes, g.sqlGenerator.CreateIndex(index))
	}
	for _, fragment := range g.sqlGenerator.RecreateForeignKeys(plan.createFks) {
		script.Add(PhaseCreateForeignKeys, fragment)
	}
	for _, procedure := range append(diff.AddedProcedures, diff.ModifiedProcedures...) {
		script.AddBatch(PhaseCreateProcedures, g.sqlGenerator.CreateProcedure(procedure))
	}

	return script, nil
}

// checkCoherence raises IncoherentDiff for diffs referencing objects the
// target snapshot does not carry; those are migration ordering bugs, not
// generator work.
func (g *Generator) checkCoherence(diff *schema.SchemaDiff, target *schema.Database) error {
	for _, tableDiff := range diff.ModifiedTables {
		targetTable, ok := target.GetTable(tableDiff.TableName)
		if !ok {
			return errors.NewIncoherentDiff(tableDiff.TableName, "modified table is absent from the target schema")
		}
		if err := targetTable.Validate(); err != nil {
			return errors.NewIncoherentDiff(tableDiff.TableName, err.Error())
		}
	}
	for _, table := range diff.AddedTables {
		if err := table.Validate(); err != nil {
			return errors.NewIncoherentDiff(table.Name, err.Error())
		}
	}
	return nil
}

// emissionPlan is the generator's working set: everything that must be
// dropped up front and recreated after the column operations.
type emissionPlan struct {
	dropFks       []*schema.FkGroup
	createFks     []*schema.FkGroup
	dropIndexes   []*schema.Index
	createIndexes []*schema.Index
	dropPks       []*schema.Table
	createPks     []*schema.Table
}

// collect walks the diff once and computes the drop/recreate sets for
// foreign keys, indexes and primary keys.
func (g *Generator) collect(diff *schema.SchemaDiff, current, target *schema.Database) *emissionPlan {
	plan := &emissionPlan{}
	droppedFkKeys := make(map[string]bool)
	createdFkKeys := make(map[string]bool)
	droppedIndexKeys := make(map[string]bool)
	createdIndexKeys := make(map[string]bool)
	pkDropKeys := make(map[string]bool)
	pkCreateKeys := make(map[string]bool)

	dropFk := func(group *schema.FkGroup) {
		key := schema.Key(group.Table()) + "|" + schema.Key(group.Name)
		if !droppedFkKeys[key] {
			droppedFkKeys[key] = true
			plan.dropFks = append(plan.dropFks, group)
		}
	}
	createFk := func(group *schema.FkGroup) {
		key := schema.Key(group.Table()) + "|" + schema.Key(group.Name)
		if !createdFkKeys[key] {
			createdFkKeys[key] = true
			plan.createFks = append(plan.createFks, group)
		}
	}
	dropIndex := func(index *schema.Index) {
		key := schema.Key(index.Table) + "|" + schema.Key(index.Name)
		if !droppedIndexKeys[key] {
			droppedIndexKeys[key] = true
			plan.dropIndexes = append(plan.dropIndexes, index)
		}
	}
	createIndex := func(index *schema.Index) {
		key := schema.Key(index.Table) + "|" + schema.Key(index.Name)
		if !createdIndexKeys[key] {
			createdIndexKeys[key] = true
			plan.createIndexes = append(plan.createIndexes, index)
		}
	}
	dropPk := func(table *schema.Table) {
		if !pkDropKeys[schema.Key(table.Name)] {
			pkDropKeys[schema.Key(table.Name)] = true
			plan.dropPks = append(plan.dropPks, table)
		}
	}
	createPk := func(table *schema.Table) {
		if !pkCreateKeys[schema.Key(table.Name)] {
			pkCreateKeys[schema.Key(table.Name)] = true
			plan.createPks = append(plan.createPks, table)
		}
	}

	// removed tables lose their outbound constraints with the DROP TABLE,
	// but inbound references must be severed explicitly first
	for _, table := range diff.RemovedTables {
		for _, group := range table.ForeignKeyGroups() {
			dropFk(group)
		}
		for _, group := range inboundFkGroups(current, table.Name, "") {
			dropFk(group)
		}
	}

	for _, tableDiff := range diff.ModifiedTables {
		for _, group := range tableDiff.RemovedFks {
			dropFk(group)
		}
		for _, group := range tableDiff.AddedFks {
			createFk(group)
		}
		for _, index := range tableDiff.RemovedIndexes {
			dropIndex(index)
		}
		for _, index := range tableDiff.AddedIndexes {
			createIndex(index)
		}

		if tableDiff.PkChange != nil {
			dropPk(tableDiff.Old)
			if len(tableDiff.PkChange.NewColumns) > 0 {
				createPk(tableDiff.New)
			}
		}

		if tableDiff.Reorder {
			g.collectReorder(tableDiff, current, target, dropFk, createFk, dropIndex, createIndex, createPk)
			continue
		}

		for _, change := range tableDiff.ColumnChanges {
			switch change.Kind {
			case schema.ChangeDrop:
				g.collectColumnTouch(tableDiff, change.Old.Name, current, target, false, dropFk, createFk, dropIndex, createIndex, dropPk, createPk)
			case schema.ChangeRebuild:
				g.collectColumnTouch(tableDiff, change.Name(), current, target, true, dropFk, createFk, dropIndex, createIndex, dropPk, createPk)
			}
		}
	}

	// new tables bring their own constraints; they are created en masse
	// with everything else so circular references cannot fail
	for _, table := range diff.AddedTables {
		for _, group := range table.ForeignKeyGroups() {
			createFk(group)
		}
		for _, index := range table.Indexes {
			createIndex(index)
		}
	}

	return plan
}

// collectReorder severs and restores everything around a whole-table copy:
// all inbound and outbound constraints, all indexes, the primary key. The
// original table is dropped whole, so its PK needs no explicit drop.
func (g *Generator) collectReorder(tableDiff *schema.TableDiff, current, target *schema.Database,
	dropFk, createFk func(*schema.FkGroup), dropIndex, createIndex func(*schema.Index),
	createPk func(*schema.Table)) {

	for _, group := range tableDiff.Old.ForeignKeyGroups() {
		dropFk(group)
	}
	for _, group := range inboundFkGroups(current, tableDiff.TableName, "") {
		dropFk(group)
	}
	for _, group := range tableDiff.New.ForeignKeyGroups() {
		createFk(group)
	}
	for _, group := range targetVersionsOfInbound(current, target, tableDiff.TableName, "") {
		createFk(group)
	}
	for _, index := range tableDiff.Old.Indexes {
		dropIndex(index)
	}
	for _, index := range tableDiff.New.Indexes {
		createIndex(index)
	}
	if len(tableDiff.New.PrimaryKeyColumns()) > 0 {
		createPk(tableDiff.New)
	}
}

// collectColumnTouch severs and restores the constraints anchored on one
// dropped or rebuilt column. surviving selects whether target-side
// counterparts are recreated.
func (g *Generator) collectColumnTouch(tableDiff *schema.TableDiff, columnName string, current, target *schema.Database,
	surviving bool, dropFk, createFk func(*schema.FkGroup), dropIndex, createIndex func(*schema.Index),
	dropPk, createPk func(*schema.Table)) {

	columnKey := schema.Key(columnName)

	// outbound constraints anchored on the column
	for _, group := range tableDiff.Old.ForeignKeyGroups() {
		for _, row := range group.Rows {
			if schema.Key(row.Column) == columnKey {
				dropFk(group)
				break
			}
		}
	}
	// inbound references to the column, anywhere in the current snapshot
	for _, group := range inboundFkGroups(current, tableDiff.TableName, columnName) {
		dropFk(group)
	}

	for _, index := range tableDiff.Old.Indexes {
		for _, indexColumn := range index.Columns {
			if schema.Key(indexColumn) == columnKey {
				dropIndex(index)
				break
			}
		}
	}

	if oldColumn, ok := tableDiff.Old.GetColumn(columnName); ok && oldColumn.IsPrimaryKey {
		dropPk(tableDiff.Old)
	}

	if !surviving {
		return
	}

	// the column survives under a new definition: its constraints return
	for _, group := range tableDiff.New.ForeignKeyGroups() {
		for _, row := range group.Rows {
			if schema.Key(row.Column) == columnKey {
				createFk(group)
				break
			}
		}
	}
	for _, group := range targetVersionsOfInbound(current, target, tableDiff.TableName, columnName) {
		createFk(group)
	}
	for _, index := range tableDiff.New.Indexes {
		for _, indexColumn := range index.Columns {
			if schema.Key(indexColumn) == columnKey {
				createIndex(index)
				break
			}
		}
	}
	if newColumn, ok := tableDiff.New.GetColumn(columnName); ok && newColumn.IsPrimaryKey {
		createPk(tableDiff.New)
	}
}

// modifiedSequenceOlds maps modified sequences back to their current
// versions, which are the ones that must be dropped.
func modifiedSequenceOlds(diff *schema.SchemaDiff, current *schema.Database) []*schema.Sequence {
	var olds []*schema.Sequence
	for _, sequence := range diff.ModifiedSequences {
		if old, ok := current.Sequences[schema.Key(sequence.Name)]; ok {
			olds = append(olds, old)
		}
	}
	return olds
}

// inboundFkGroups returns every FK group in the snapshot referencing the
// given table (and column, when columnName is non-empty), in deterministic
// order.
func inboundFkGroups(db *schema.Database, tableName, columnName string) []*schema.FkGroup {
	tableKey := schema.Key(tableName)
	columnKey := schema.Key(columnName)
	var groups []*schema.FkGroup
	for _, key := range sortedTableKeys(db) {
		for _, group := range db.Tables[key].ForeignKeyGroups() {
			for _, row := range group.Rows {
				if schema.Key(row.RefTable) != tableKey {
					continue
				}
				if columnName != "" && schema.Key(row.RefColumn) != columnKey {
					continue
				}
				groups = append(groups, group)
				break
			}
		}
	}
	return groups
}

// targetVersionsOfInbound maps the inbound FK groups severed on the
// current side to their target-side versions, which are the ones that
// return after the operation. Groups whose owner or name is gone in the
// target stay dropped.
func targetVersionsOfInbound(current, target *schema.Database, tableName, columnName string) []*schema.FkGroup {
	var groups []*schema.FkGroup
	for _, dropped := range inboundFkGroups(current, tableName, columnName) {
		owner, ok := target.GetTable(dropped.Table())
		if !ok {
			continue
		}
		for _, group := range owner.ForeignKeyGroups() {
			if schema.Key(group.Name) == schema.Key(dropped.Name) {
				groups = append(groups, group)
				break
			}
		}
	}
	return groups
}

func sortedTableKeys(db *schema.Database) []string {
	keys := make([]string, 0, len(db.Tables))
	for key := range db.Tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// emitTableOperations emits the per-table column operations: adds first
// when dropping or rebuilding would otherwise pass through a zero-column
// state, then drops, rebuilds, alters and default churn, then the
// remaining adds.
func (g *Generator) emitTableOperations(script *Script, tableDiff *schema.TableDiff) error {
	schemaName := tableDiff.Schema
	tableName := tableDiff.TableName

	if tableDiff.Reorder {
		fragments, err := g.sqlGenerator.ReorderTable(tableDiff.Old, tableDiff.New)
		if err != nil {
			return errors.NewIncoherentDiff(tableName, err.Error())
		}
		for _, fragment := range fragments {
			script.Add(PhaseColumnOperations, fragment)
		}
		return nil
	}

	adds := tableDiff.ChangesOfKind(schema.ChangeAdd)
	drops := tableDiff.ChangesOfKind(schema.ChangeDrop)
	alters := tableDiff.ChangesOfKind(schema.ChangeAlter)
	rebuilds := tableDiff.ChangesOfKind(schema.ChangeRebuild)

	currentDataColumns := len(tableDiff.Old.DataColumns())
	soleColumn := func(name string) bool {
		if currentDataColumns != 1 {
			return false
		}
		data := tableDiff.Old.DataColumns()
		return schema.Key(data[0].Name) == schema.Key(name)
	}

	addsFirst := false
	if len(adds) > 0 {
		if currentDataColumns-len(drops) <= 0 {
			addsFirst = true
		}
		for _, change := range rebuilds {
			if soleColumn(change.Name()) {
				addsFirst = true
			}
		}
		for _, change := range alters {
			if soleColumn(change.Name()) {
				addsFirst = true
			}
		}
	}

	emitAdds := func() {
		for _, change := range adds {
			for _, fragment := range g.sqlGenerator.AddColumn(schemaName, tableName, change.New) {
				script.Add(PhaseColumnOperations, fragment)
			}
		}
	}

	if addsFirst {
		emitAdds()
	}

	for _, change := range drops {
		for _, fragment := range g.sqlGenerator.DropColumn(schemaName, tableName, change.Old.Name) {
			script.Add(PhaseColumnOperations, fragment)
		}
	}

	for _, change := range rebuilds {
		if err := g.validateRebuild(tableDiff, change); err != nil {
			return err
		}
		var fragments []string
		if soleColumn(change.Name()) || change.Old.IsIdentity {
			fragments = g.sqlGenerator.SafeRebuildColumn(schemaName, tableName, change.Old, change.New)
		} else {
			fragments = g.sqlGenerator.RebuildColumn(schemaName, tableName, change.Old, change.New)
		}
		for _, fragment := range fragments {
			script.Add(PhaseColumnOperations, fragment)
		}
	}

	for _, change := range alters {
		var fragments []string
		if defaultOnlyChange(change) {
			fragments = g.sqlGenerator.ReplaceDefault(schemaName, tableName, change.New)
		} else {
			fragments = g.sqlGenerator.AlterColumn(schemaName, tableName, change.New)
		}
		for _, fragment := range fragments {
			script.Add(PhaseColumnOperations, fragment)
		}
	}

	if !addsFirst {
		emitAdds()
	}

	return nil
}

// validateRebuild rejects the rebuilds SQL Server cannot express without
// silent data loss on the specific shape.
func (g *Generator) validateRebuild(tableDiff *schema.TableDiff, change *schema.ColumnChange) error {
	old, new := change.Old, change.New
	if old == nil || new == nil {
		return errors.NewIncoherentDiff(tableDiff.TableName,
			fmt.Sprintf("rebuild of %s lacks a column version", change.Name()))
	}
	if _, ok := tableDiff.New.GetColumn(new.Name); !ok {
		return errors.NewIncoherentDiff(tableDiff.TableName,
			fmt.Sprintf("rebuilt column %s is absent from the target table", new.Name))
	}
	if old.IsIdentity && new.IsIdentity &&
		(old.IdentitySeed != new.IdentitySeed || old.IdentityStep != new.IdentityStep) {
		return errors.NewUnsupported(tableDiff.TableName, new.Name,
			"changing an identity seed or increment in place is not expressible without data loss; recreate the table instead")
	}
	return nil
}

// defaultOnlyChange reports whether a modification touches nothing but the
// default constraint.
func defaultOnlyChange(change *schema.ColumnChange) bool {
	old, new := change.Old, change.New
	if old == nil || new == nil {
		return false
	}
	return old.Type.Equal(new.Type) &&
		old.IsNullable == new.IsNullable &&
		old.IsIdentity == new.IsIdentity &&
		old.IsComputed == new.IsComputed &&
		!schema.DefaultsEqual(old.Default, new.Default)
}
