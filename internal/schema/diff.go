package schema

// ChangeKind classifies a column change by the SQL-level operation it
// requires.
type ChangeKind int

const (
	// ChangeAdd adds a new column.
	ChangeAdd ChangeKind = iota
	// ChangeDrop removes an existing column.
	ChangeDrop
	// ChangeAlter modifies a column in place with ALTER COLUMN.
	ChangeAlter
	// ChangeRebuild drops and re-adds the column because SQL Server cannot
	// express the modification as an ALTER COLUMN.
	ChangeRebuild
)

// String returns the change kind label used in logs and error messages.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeDrop:
		return "drop"
	case ChangeAlter:
		return "alter"
	default:
		return "rebuild"
	}
}

// ColumnChange is a tagged variant over column operations. Old is nil for
// ChangeAdd, New is nil for ChangeDrop, both are set for
// ChangeAlter/ChangeRebuild.
type ColumnChange struct {
	Kind ChangeKind `json:"kind"`
	Old  *Column    `json:"old,omitempty"`
	New  *Column    `json:"new,omitempty"`
	// Propagated marks rebuilds forced by a type change on a referenced
	// column in another table; FK columns follow their target.
	Propagated bool `json:"propagated,omitempty"`
	// Rule records which rebuild rule fired, for diagnostics.
	Rule string `json:"rule,omitempty"`
}

// Name returns the column name the change applies to.
func (c *ColumnChange) Name() string {
	if c.New != nil {
		return c.New.Name
	}
	if c.Old != nil {
		return c.Old.Name
	}
	return ""
}

// PrimaryKeyChange records a change of PK membership on one table. Any
// difference is expressed as drop-and-recreate.
type PrimaryKeyChange struct {
	OldColumns []string `json:"old_columns"`
	NewColumns []string `json:"new_columns"`
}

// TableDiff represents the differences between two versions of one table.
type TableDiff struct {
	TableName string `json:"table_name"`
	Schema    string `json:"schema"`

	ColumnChanges []*ColumnChange `json:"column_changes"`

	AddedIndexes   []*Index `json:"added_indexes"`
	RemovedIndexes []*Index `json:"removed_indexes"`

	AddedFks   []*FkGroup `json:"added_fks"`
	RemovedFks []*FkGroup `json:"removed_fks"`

	PkChange *PrimaryKeyChange `json:"pk_change,omitempty"`

	// Reorder marks the whole-table copy protocol: identical column sets,
	// differing positions, and at least one surviving column participating
	// in an index or referenced by a computed expression.
	Reorder bool `json:"reorder,omitempty"`

	// Old and New carry the full table versions for the generator.
	Old *Table `json:"-"`
	New *Table `json:"-"`
}

// IsEmpty reports whether the table diff carries no changes.
func (d *TableDiff) IsEmpty() bool {
	return len(d.ColumnChanges) == 0 &&
		len(d.AddedIndexes) == 0 && len(d.RemovedIndexes) == 0 &&
		len(d.AddedFks) == 0 && len(d.RemovedFks) == 0 &&
		d.PkChange == nil && !d.Reorder
}

// ChangesOfKind returns the column changes of one kind, in diff order.
func (d *TableDiff) ChangesOfKind(kind ChangeKind) []*ColumnChange {
	var changes []*ColumnChange
	for _, change := range d.ColumnChanges {
		if change.Kind == kind {
			changes = append(changes, change)
		}
	}
	return changes
}

// SchemaDiff aggregates all differences between two schema snapshots.
type SchemaDiff struct {
	AddedTables    []*Table     `json:"added_tables"`
	RemovedTables  []*Table     `json:"removed_tables"`
	ModifiedTables []*TableDiff `json:"modified_tables"`

	AddedSequences    []*Sequence `json:"added_sequences"`
	RemovedSequences  []*Sequence `json:"removed_sequences"`
	ModifiedSequences []*Sequence `json:"modified_sequences"`

	AddedProcedures    []*StoredProcedure `json:"added_procedures"`
	RemovedProcedures  []*StoredProcedure `json:"removed_procedures"`
	ModifiedProcedures []*StoredProcedure `json:"modified_procedures"`
}

// NewSchemaDiff creates an empty diff.
func NewSchemaDiff() *SchemaDiff {
	return &SchemaDiff{
		AddedTables:    make([]*Table, 0),
		RemovedTables:  make([]*Table, 0),
		ModifiedTables: make([]*TableDiff, 0),
	}
}

// IsEmpty reports whether the diff carries no changes at all.
func (d *SchemaDiff) IsEmpty() bool {
	return len(d.AddedTables) == 0 && len(d.RemovedTables) == 0 && len(d.ModifiedTables) == 0 &&
		len(d.AddedSequences) == 0 && len(d.RemovedSequences) == 0 && len(d.ModifiedSequences) == 0 &&
		len(d.AddedProcedures) == 0 && len(d.RemovedProcedures) == 0 && len(d.ModifiedProcedures) == 0
}

// ChangeCount returns the total number of top-level changes.
func (d *SchemaDiff) ChangeCount() int {
	return len(d.AddedTables) + len(d.RemovedTables) + len(d.ModifiedTables) +
		len(d.AddedSequences) + len(d.RemovedSequences) + len(d.ModifiedSequences) +
		len(d.AddedProcedures) + len(d.RemovedProcedures) + len(d.ModifiedProcedures)
}
