package schema

// ClassifyChange decides whether a column modification can be expressed as
// an ALTER COLUMN or requires drop-and-re-add. Rules are evaluated in
// order; the first match wins. Whole-table reordering (rule 5) is decided
// at the table level by the differ, not here.
func ClassifyChange(change *ColumnChange) {
	old, new := change.Old, change.New
	if old == nil || new == nil {
		return
	}

	switch {
	case !old.Type.Equal(new.Type) && (old.Type.IsLegacyLob() || new.Type.IsLegacyLob()):
		// text/ntext/image cannot be converted with ALTER COLUMN
		change.Kind = ChangeRebuild
		change.Rule = "legacy-lob"
	case old.IsComputed != new.IsComputed ||
		(old.IsComputed && old.ComputedExpr != new.ComputedExpr):
		change.Kind = ChangeRebuild
		change.Rule = "computed"
	case old.IsIdentity != new.IsIdentity:
		change.Kind = ChangeRebuild
		change.Rule = "identity"
	case old.IsIdentity && (old.IdentitySeed != new.IdentitySeed || old.IdentityStep != new.IdentityStep):
		change.Kind = ChangeRebuild
		change.Rule = "identity-shape"
	case old.Type.IsRowVersion() || new.Type.IsRowVersion():
		// conservative: any property change on a rowversion column rebuilds
		change.Kind = ChangeRebuild
		change.Rule = "rowversion"
	case old.Type.Kind != new.Type.Kind || old.Type.Narrows(new.Type):
		change.Kind = ChangeRebuild
		change.Rule = "type-change"
	default:
		change.Kind = ChangeAlter
	}
}

// PropagateRebuilds walks every Rebuild whose column type changes and
// pushes the consequence onto referring FK columns in other tables: the FK
// is dropped and recreated around the rebuild, and the referring column
// follows the new type. Affected changes are annotated Propagated; tables
// with no prior diff gain one.
func PropagateRebuilds(diff *SchemaDiff, current, target *Database) {
	// worklist: (table key, column key) pairs whose type is changing
	type rebuiltColumn struct {
		tableKey string
		column   *ColumnChange
	}
	var pending []rebuiltColumn
	for _, tableDiff := range diff.ModifiedTables {
		for _, change := range tableDiff.ColumnChanges {
			if change.Kind == ChangeRebuild && change.Old != nil && change.New != nil &&
				!change.Old.Type.Equal(change.New.Type) {
				pending = append(pending, rebuiltColumn{Key(tableDiff.TableName), change})
			}
		}
	}

	diffsByTable := make(map[string]*TableDiff, len(diff.ModifiedTables))
	for _, tableDiff := range diff.ModifiedTables {
		diffsByTable[Key(tableDiff.TableName)] = tableDiff
	}

	for len(pending) > 0 {
		item := pending[0]
		pending = pending[1:]

		for _, referrerKey := range sortedKeys(current.Tables) {
			referrer := current.Tables[referrerKey]
			for _, referrerColumn := range referrer.OrderedColumns() {
				if !referencesColumn(referrerColumn, item.tableKey, item.column.Name()) {
					continue
				}
				targetTable, ok := target.Tables[referrerKey]
				if !ok {
					continue // referrer is being dropped, nothing to propagate onto
				}
				tableDiff, ok := diffsByTable[referrerKey]
				if !ok {
					tableDiff = &TableDiff{
						TableName: targetTable.Name,
						Schema:    targetTable.Schema,
						Old:       referrer,
						New:       targetTable,
					}
					diffsByTable[referrerKey] = tableDiff
					diff.ModifiedTables = append(diff.ModifiedTables, tableDiff)
				}

				change := findChange(tableDiff, referrerColumn.Name)
				if change == nil {
					targetColumn, ok := targetTable.GetColumn(referrerColumn.Name)
					if !ok {
						continue // referring column is being dropped anyway
					}
					followed := *targetColumn
					followed.Type = item.column.New.Type
					change = &ColumnChange{
						Kind: ChangeRebuild,
						Old:  referrerColumn,
						New:  &followed,
					}
					tableDiff.ColumnChanges = append(tableDiff.ColumnChanges, change)
				} else if change.Kind != ChangeDrop {
					change.Kind = ChangeRebuild
				}
				if change.Propagated {
					continue // already visited, stop the cycle here
				}
				change.Propagated = true
				change.Rule = "fk-propagated"
				if change.Old != nil && change.New != nil && !change.Old.Type.Equal(change.New.Type) {
					pending = append(pending, rebuiltColumn{referrerKey, change})
				}
			}
		}
	}
}

func referencesColumn(column *Column, tableKey, columnName string) bool {
	for _, fk := range column.ForeignKeys {
		if Key(fk.RefTable) == tableKey && Key(fk.RefColumn) == Key(columnName) {
			return true
		}
	}
	return false
}

func findChange(tableDiff *TableDiff, columnName string) *ColumnChange {
	for _, change := range tableDiff.ColumnChanges {
		if Key(change.Name()) == Key(columnName) {
			return change
		}
	}
	return nil
}
