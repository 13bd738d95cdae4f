package migration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lofcz/minfold/internal/schema"
)

// fkArena holds the foreign key groups of one emission batch as a flat
// slice with edges expressed as indices, so the dependency structure (a
// DAG with back-edges for cycles) is walked without owning references.
type fkArena struct {
	groups []*schema.FkGroup
	// edges[i] lists the arena indices i depends on: groups owned by the
	// table that groups[i] references.
	edges [][]int
}

func newFkArena(groups []*schema.FkGroup) *fkArena {
	arena := &fkArena{groups: groups, edges: make([][]int, len(groups))}
	byTable := make(map[string][]int)
	for i, group := range groups {
		key := schema.Key(group.Table())
		byTable[key] = append(byTable[key], i)
	}
	for i, group := range groups {
		for _, j := range byTable[schema.Key(group.RefTable())] {
			if j != i {
				arena.edges[i] = append(arena.edges[i], j)
			}
		}
	}
	return arena
}

// order returns a topological emission order. Members of cycles are
// appended after the acyclic prefix in name order; the NOCHECK-first
// protocol makes any order of those safe.
func (a *fkArena) order() []int {
	indegree := make([]int, len(a.groups))
	dependents := make([][]int, len(a.groups))
	for i, deps := range a.edges {
		for _, j := range deps {
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var queue []int
	for i, degree := range indegree {
		if degree == 0 {
			queue = append(queue, i)
		}
	}
	sort.Slice(queue, func(x, y int) bool { return a.less(queue[x], queue[y]) })

	var ordered []int
	seen := make([]bool, len(a.groups))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		ordered = append(ordered, i)
		seen[i] = true
		var freed []int
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				freed = append(freed, j)
			}
		}
		sort.Slice(freed, func(x, y int) bool { return a.less(freed[x], freed[y]) })
		queue = append(queue, freed...)
	}

	var cyclic []int
	for i := range a.groups {
		if !seen[i] {
			cyclic = append(cyclic, i)
		}
	}
	sort.Slice(cyclic, func(x, y int) bool { return a.less(cyclic[x], cyclic[y]) })
	return append(ordered, cyclic...)
}

func (a *fkArena) less(i, j int) bool {
	if t1, t2 := schema.Key(a.groups[i].Table()), schema.Key(a.groups[j].Table()); t1 != t2 {
		return t1 < t2
	}
	return schema.Key(a.groups[i].Name) < schema.Key(a.groups[j].Name)
}

// DropForeignKey renders an idempotent constraint drop.
func (sg *SQLGenerator) DropForeignKey(group *schema.FkGroup) string {
	qualified := schema.QualifiedName(group.Schema(), group.Table())
	named := schema.QualifiedName(group.Schema(), group.Name)
	return fmt.Sprintf(`IF OBJECT_ID('%s', 'F') IS NOT NULL
    ALTER TABLE %s DROP CONSTRAINT [%s];`,
		named, qualified, group.Name)
}

// AddForeignKey renders an idempotent constraint creation. withCheck
// selects WITH CHECK (validate existing rows, leave the constraint
// trusted) over WITH NOCHECK.
func (sg *SQLGenerator) AddForeignKey(group *schema.FkGroup, withCheck bool) string {
	row := group.Rows[0]
	qualified := schema.QualifiedName(group.Schema(), group.Table())
	named := schema.QualifiedName(group.Schema(), group.Name)

	columns := make([]string, len(group.Rows))
	refColumns := make([]string, len(group.Rows))
	for i, r := range group.Rows {
		columns[i] = r.Column
		refColumns[i] = r.RefColumn
	}

	check := "WITH NOCHECK"
	if withCheck {
		check = "WITH CHECK"
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("IF OBJECT_ID('%s', 'F') IS NULL\n    ALTER TABLE %s %s ADD CONSTRAINT [%s] FOREIGN KEY (%s) REFERENCES %s (%s)",
		named, qualified, check, group.Name, bracketJoin(columns),
		schema.QualifiedName(row.RefSchema, row.RefTable), bracketJoin(refColumns)))
	if row.DeleteAction != schema.FkNoAction {
		builder.WriteString(" ON DELETE " + row.DeleteAction.Render())
	}
	if row.UpdateAction != schema.FkNoAction {
		builder.WriteString(" ON UPDATE " + row.UpdateAction.Render())
	}
	if row.NotForReplication {
		builder.WriteString(" NOT FOR REPLICATION")
	}
	builder.WriteString(";")
	return builder.String()
}

// EnableConstraint renders the CHECK CONSTRAINT that keeps a recreated
// constraint enforced for future rows.
func (sg *SQLGenerator) EnableConstraint(group *schema.FkGroup) string {
	return fmt.Sprintf("ALTER TABLE %s CHECK CONSTRAINT [%s];",
		schema.QualifiedName(group.Schema(), group.Table()), group.Name)
}

// RecreateForeignKeys renders an en-masse recreation under the trust
// restoration protocol: every constraint is first added WITH NOCHECK so
// circular dependencies cannot fail, then each constraint whose target
// state is enforced is dropped and re-added WITH CHECK — emitting a bare
// CHECK CONSTRAINT does not reliably clear is_not_trusted.
func (sg *SQLGenerator) RecreateForeignKeys(groups []*schema.FkGroup) []string {
	if len(groups) == 0 {
		return nil
	}
	arena := newFkArena(groups)
	order := arena.order()

	var fragments []string
	for _, i := range order {
		fragments = append(fragments, sg.AddForeignKey(arena.groups[i], false))
	}
	for _, i := range order {
		group := arena.groups[i]
		if group.NotEnforced() {
			continue
		}
		fragments = append(fragments,
			sg.DropForeignKey(group),
			sg.AddForeignKey(group, true),
			sg.EnableConstraint(group))
	}
	return fragments
}
