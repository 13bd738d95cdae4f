package schema

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultSchema is the namespace used when none is specified.
const DefaultSchema = "dbo"

// Database represents a complete schema snapshot: every table, sequence and
// stored procedure of one database. Values are never mutated after the
// loader (or a replay) constructs them.
type Database struct {
	Name       string                      `json:"name"`
	Tables     map[string]*Table           `json:"tables"`
	Sequences  map[string]*Sequence        `json:"sequences"`
	Procedures map[string]*StoredProcedure `json:"procedures"`
}

// Table represents a database table. Columns are keyed by lower-cased name;
// logical order lives on Column.OrdinalPosition.
type Table struct {
	Name    string             `json:"name"`
	Schema  string             `json:"schema"`
	Columns map[string]*Column `json:"columns"`
	Indexes []*Index           `json:"indexes"`
}

// Column represents a table column.
type Column struct {
	Name            string        `json:"name"`
	OrdinalPosition int           `json:"ordinal_position"`
	Type            SqlType       `json:"type"`
	IsNullable      bool          `json:"is_nullable"`
	IsIdentity      bool          `json:"is_identity"`
	IdentitySeed    int64         `json:"identity_seed,omitempty"`
	IdentityStep    int64         `json:"identity_step,omitempty"`
	IsPrimaryKey    bool          `json:"is_primary_key"`
	IsComputed      bool          `json:"is_computed"`
	ComputedExpr    string        `json:"computed_expr,omitempty"`
	Default         *Default      `json:"default,omitempty"`
	ForeignKeys     []*ForeignKey `json:"foreign_keys,omitempty"`
}

// Default is a column default constraint.
type Default struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Index represents a database index.
type Index struct {
	Name     string   `json:"name"`
	Schema   string   `json:"schema"`
	Table    string   `json:"table"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}

// FkAction enumerates referential actions.
type FkAction int

const (
	FkNoAction FkAction = iota
	FkCascade
	FkSetNull
	FkSetDefault
)

// Render returns the T-SQL spelling of the action.
func (a FkAction) Render() string {
	switch a {
	case FkCascade:
		return "CASCADE"
	case FkSetNull:
		return "SET NULL"
	case FkSetDefault:
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}

// ParseFkAction resolves a referential action as reported by
// sys.foreign_keys (delete_referential_action_desc and friends).
func ParseFkAction(desc string) FkAction {
	switch strings.ToUpper(strings.TrimSpace(desc)) {
	case "CASCADE":
		return FkCascade
	case "SET_NULL", "SET NULL":
		return FkSetNull
	case "SET_DEFAULT", "SET DEFAULT":
		return FkSetDefault
	default:
		return FkNoAction
	}
}

// ForeignKey is one column pair of a foreign key constraint. Multi-column
// constraints share a Name across rows and are grouped into an FkGroup
// when compared or emitted.
type ForeignKey struct {
	Name              string   `json:"name"`
	Schema            string   `json:"schema"`
	Table             string   `json:"table"`
	Column            string   `json:"column"`
	RefSchema         string   `json:"ref_schema"`
	RefTable          string   `json:"ref_table"`
	RefColumn         string   `json:"ref_column"`
	NotEnforced       bool     `json:"not_enforced"`
	NotForReplication bool     `json:"not_for_replication"`
	DeleteAction      FkAction `json:"delete_action"`
	UpdateAction      FkAction `json:"update_action"`
}

// FkGroup is a complete foreign key constraint: the ordered rows of a
// (possibly multi-column) FK sharing one name.
type FkGroup struct {
	Name string        `json:"name"`
	Rows []*ForeignKey `json:"rows"`
}

// Table returns the owning table of the constraint.
func (g *FkGroup) Table() string {
	if len(g.Rows) == 0 {
		return ""
	}
	return g.Rows[0].Table
}

// Schema returns the owning schema of the constraint.
func (g *FkGroup) Schema() string {
	if len(g.Rows) == 0 {
		return DefaultSchema
	}
	return g.Rows[0].Schema
}

// RefTable returns the referenced table of the constraint.
func (g *FkGroup) RefTable() string {
	if len(g.Rows) == 0 {
		return ""
	}
	return g.Rows[0].RefTable
}

// NotEnforced reports whether the constraint is marked WITH NOCHECK.
func (g *FkGroup) NotEnforced() bool {
	return len(g.Rows) > 0 && g.Rows[0].NotEnforced
}

// Sequence represents a database sequence.
type Sequence struct {
	Name      string  `json:"name"`
	Schema    string  `json:"schema"`
	Type      SqlType `json:"type"`
	Start     int64   `json:"start"`
	Increment int64   `json:"increment"`
	Min       *int64  `json:"min,omitempty"`
	Max       *int64  `json:"max,omitempty"`
	Cycle     bool    `json:"cycle"`
	CacheSize *int64  `json:"cache_size,omitempty"`
}

// StoredProcedure represents a stored procedure and its full definition.
type StoredProcedure struct {
	Name       string `json:"name"`
	Schema     string `json:"schema"`
	Definition string `json:"definition"`
}

// NewDatabase creates an empty schema snapshot.
func NewDatabase(name string) *Database {
	return &Database{
		Name:       name,
		Tables:     make(map[string]*Table),
		Sequences:  make(map[string]*Sequence),
		Procedures: make(map[string]*StoredProcedure),
	}
}

// NewTable creates an empty table in the dbo schema.
func NewTable(name string) *Table {
	return &Table{
		Name:    name,
		Schema:  DefaultSchema,
		Columns: make(map[string]*Column),
		Indexes: make([]*Index, 0),
	}
}

// Key folds a name for case-insensitive lookup. Every map in the model is
// keyed with it.
func Key(name string) string {
	return strings.ToLower(name)
}

// AddTable adds a table to the snapshot, keyed case-insensitively.
func (d *Database) AddTable(table *Table) error {
	if err := table.Validate(); err != nil {
		return fmt.Errorf("cannot add invalid table: %w", err)
	}
	d.Tables[Key(table.Name)] = table
	return nil
}

// GetTable retrieves a table by name, case-insensitively.
func (d *Database) GetTable(name string) (*Table, bool) {
	table, exists := d.Tables[Key(name)]
	return table, exists
}

// AddColumn adds a column to the table, keyed case-insensitively.
func (t *Table) AddColumn(column *Column) error {
	if err := column.Validate(); err != nil {
		return fmt.Errorf("cannot add invalid column: %w", err)
	}
	t.Columns[Key(column.Name)] = column
	return nil
}

// GetColumn retrieves a column by name, case-insensitively.
func (t *Table) GetColumn(name string) (*Column, bool) {
	column, exists := t.Columns[Key(name)]
	return column, exists
}

// OrderedColumns returns the columns sorted by ordinal position.
func (t *Table) OrderedColumns() []*Column {
	columns := make([]*Column, 0, len(t.Columns))
	for _, column := range t.Columns {
		columns = append(columns, column)
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i].OrdinalPosition != columns[j].OrdinalPosition {
			return columns[i].OrdinalPosition < columns[j].OrdinalPosition
		}
		return Key(columns[i].Name) < Key(columns[j].Name)
	})
	return columns
}

// PrimaryKeyColumns returns the PK column names in ordinal order.
func (t *Table) PrimaryKeyColumns() []string {
	var names []string
	for _, column := range t.OrderedColumns() {
		if column.IsPrimaryKey {
			names = append(names, column.Name)
		}
	}
	return names
}

// IdentityColumn returns the table's identity column, if any.
func (t *Table) IdentityColumn() *Column {
	for _, column := range t.Columns {
		if column.IsIdentity {
			return column
		}
	}
	return nil
}

// DataColumns returns the non-computed columns in ordinal order.
func (t *Table) DataColumns() []*Column {
	var columns []*Column
	for _, column := range t.OrderedColumns() {
		if !column.IsComputed {
			columns = append(columns, column)
		}
	}
	return columns
}

// ForeignKeyGroups returns the table's FK constraints grouped by name,
// sorted by folded name for deterministic iteration.
func (t *Table) ForeignKeyGroups() []*FkGroup {
	byName := make(map[string]*FkGroup)
	for _, column := range t.Columns {
		for _, fk := range column.ForeignKeys {
			key := Key(fk.Name)
			group, ok := byName[key]
			if !ok {
				group = &FkGroup{Name: fk.Name}
				byName[key] = group
			}
			group.Rows = append(group.Rows, fk)
		}
	}
	groups := make([]*FkGroup, 0, len(byName))
	for _, group := range byName {
		sort.Slice(group.Rows, func(i, j int) bool {
			return Key(group.Rows[i].Column) < Key(group.Rows[j].Column)
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return Key(groups[i].Name) < Key(groups[j].Name)
	})
	return groups
}

// Validate validates the Database structure.
func (d *Database) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	for key, table := range d.Tables {
		if err := table.Validate(); err != nil {
			return fmt.Errorf("invalid table %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the Table structure: at most one identity column and
// every column referenced by an index or FK must exist.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if t.Schema == "" {
		t.Schema = DefaultSchema
	}
	if t.Columns == nil {
		t.Columns = make(map[string]*Column)
	}

	identities := 0
	for key, column := range t.Columns {
		if err := column.Validate(); err != nil {
			return fmt.Errorf("invalid column %s: %w", key, err)
		}
		if column.IsIdentity {
			identities++
		}
	}
	if identities > 1 {
		return fmt.Errorf("table %s has %d identity columns, at most one is allowed", t.Name, identities)
	}

	for _, index := range t.Indexes {
		if err := index.Validate(); err != nil {
			return fmt.Errorf("invalid index %s: %w", index.Name, err)
		}
		for _, columnName := range index.Columns {
			if _, ok := t.GetColumn(columnName); !ok {
				return fmt.Errorf("index %s references missing column %s", index.Name, columnName)
			}
		}
	}

	for _, column := range t.Columns {
		for _, fk := range column.ForeignKeys {
			if _, ok := t.GetColumn(fk.Column); !ok {
				return fmt.Errorf("foreign key %s references missing column %s", fk.Name, fk.Column)
			}
		}
	}

	return nil
}

// Validate validates the Column structure.
func (c *Column) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if c.IsIdentity && c.IsNullable {
		return fmt.Errorf("identity column %s cannot be nullable", c.Name)
	}
	if c.IsIdentity && c.IsComputed {
		return fmt.Errorf("identity column %s cannot be computed", c.Name)
	}
	if c.IsIdentity && c.Default != nil {
		return fmt.Errorf("identity column %s cannot have a default constraint", c.Name)
	}
	if c.IsComputed && c.ComputedExpr == "" {
		return fmt.Errorf("computed column %s must have an expression", c.Name)
	}
	return nil
}

// Validate validates the Index structure.
func (i *Index) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("index name cannot be empty")
	}
	if i.Table == "" {
		return fmt.Errorf("index table name cannot be empty")
	}
	if i.Schema == "" {
		i.Schema = DefaultSchema
	}
	if len(i.Columns) == 0 {
		return fmt.Errorf("index must have at least one column")
	}
	return nil
}

// Equal reports structural equality of two indexes, case-insensitive on
// names.
func (i *Index) Equal(other *Index) bool {
	if Key(i.Name) != Key(other.Name) || Key(i.Table) != Key(other.Table) {
		return false
	}
	if i.IsUnique != other.IsUnique || len(i.Columns) != len(other.Columns) {
		return false
	}
	for n, column := range i.Columns {
		if Key(column) != Key(other.Columns[n]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two FK rows, case-insensitive on
// names.
func (f *ForeignKey) Equal(other *ForeignKey) bool {
	return Key(f.Column) == Key(other.Column) &&
		Key(f.RefSchema) == Key(other.RefSchema) &&
		Key(f.RefTable) == Key(other.RefTable) &&
		Key(f.RefColumn) == Key(other.RefColumn) &&
		f.NotEnforced == other.NotEnforced &&
		f.NotForReplication == other.NotForReplication &&
		f.DeleteAction == other.DeleteAction &&
		f.UpdateAction == other.UpdateAction
}

// Equal reports structural equality of two FK groups.
func (g *FkGroup) Equal(other *FkGroup) bool {
	if Key(g.Name) != Key(other.Name) || len(g.Rows) != len(other.Rows) {
		return false
	}
	for i, row := range g.Rows {
		if !row.Equal(other.Rows[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two sequences.
func (s *Sequence) Equal(other *Sequence) bool {
	if Key(s.Name) != Key(other.Name) || !s.Type.Equal(other.Type) {
		return false
	}
	if s.Start != other.Start || s.Increment != other.Increment || s.Cycle != other.Cycle {
		return false
	}
	if !int64PtrEqual(s.Min, other.Min) || !int64PtrEqual(s.Max, other.Max) {
		return false
	}
	return int64PtrEqual(s.CacheSize, other.CacheSize)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// QualifiedName renders a bracket-quoted two-part name.
func QualifiedName(schemaName, objectName string) string {
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	return fmt.Sprintf("[%s].[%s]", schemaName, objectName)
}
