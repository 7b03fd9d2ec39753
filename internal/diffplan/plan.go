package diffplan

import "github.com/betagors/yama/internal/transition"

// Plan emits the total-ordered step sequence for diff, following the
// fixed nine-phase order that respects dependencies: a table referenced
// by a foreign key is created before the FK; FKs are dropped before their
// columns or tables; indexes and FKs on a doomed column are dropped
// before the column. Within a phase, iteration follows the diff's own
// (already deterministic) bucket order.
func Plan(diff *SchemaDiff) []transition.Step {
	var steps []transition.Step

	// 1. add_table, with all columns inline.
	for _, t := range diff.AddedTables {
		cols := make([]transition.ColumnDef, 0, len(t.ColumnOrder))
		for _, name := range t.ColumnOrder {
			cols = append(cols, toColumnDef(t.Columns[name]))
		}
		steps = append(steps, transition.Step{Kind: transition.AddTable, Table: t.Name, Columns: cols})
	}

	// 2. add_column, for columns added to pre-existing tables.
	for _, td := range diff.Modified {
		for _, col := range td.AddedColumns {
			def := toColumnDef(col)
			steps = append(steps, transition.Step{Kind: transition.AddColumn, Table: td.Name, Column: col.Name, ColDef: &def})
		}
	}

	// 3. modify_column, carrying both the diff-only Changes (what actually
	// differs) and the full resolved ColDef (cc.New), so a plugin emitting
	// a restate-the-whole-definition statement (MySQL's MODIFY COLUMN)
	// never has to guess an aspect Changes left nil.
	for _, td := range diff.Modified {
		for _, cc := range td.ModifiedColumns {
			def := toColumnDef(cc.New)
			steps = append(steps, transition.Step{
				Kind:    transition.ModifyColumn,
				Table:   td.Name,
				Column:  cc.Name,
				ColDef:  &def,
				Changes: columnChangesOf(cc),
			})
		}
	}

	// 4. add_index, on both new and existing tables (add_table does not
	// inline indexes).
	for _, t := range diff.AddedTables {
		for _, idx := range t.Indexes {
			def := toIndexDef(idx)
			steps = append(steps, transition.Step{Kind: transition.AddIndex, Table: t.Name, Index: &def})
		}
	}
	for _, td := range diff.Modified {
		for _, idx := range td.AddedIndexes {
			def := toIndexDef(idx)
			steps = append(steps, transition.Step{Kind: transition.AddIndex, Table: td.Name, Index: &def})
		}
	}

	// 5. add_foreign_key.
	for _, t := range diff.AddedTables {
		for _, fk := range t.ForeignKeys {
			def := toForeignKeyDef(fk)
			steps = append(steps, transition.Step{Kind: transition.AddForeignKey, Table: t.Name, ForeignKey: &def})
		}
	}
	for _, td := range diff.Modified {
		for _, fk := range td.AddedForeignKeys {
			def := toForeignKeyDef(fk)
			steps = append(steps, transition.Step{Kind: transition.AddForeignKey, Table: td.Name, ForeignKey: &def})
		}
	}

	// 6. drop_foreign_key.
	for _, td := range diff.Modified {
		for _, fk := range td.RemovedForeignKeys {
			def := toForeignKeyDef(fk)
			steps = append(steps, transition.Step{Kind: transition.DropForeignKey, Table: td.Name, ForeignKey: &def})
		}
	}

	// 7. drop_index.
	for _, td := range diff.Modified {
		for _, idx := range td.RemovedIndexes {
			def := toIndexDef(idx)
			steps = append(steps, transition.Step{Kind: transition.DropIndex, Table: td.Name, Index: &def})
		}
	}

	// 8. drop_column.
	for _, td := range diff.Modified {
		for _, col := range td.RemovedColumns {
			steps = append(steps, transition.Step{Kind: transition.DropColumn, Table: td.Name, Column: col.Name})
		}
	}

	// 9. drop_table.
	for _, t := range diff.RemovedTables {
		steps = append(steps, transition.Step{Kind: transition.DropTable, Table: t.Name})
	}

	return steps
}

func columnChangesOf(cc *ColumnChange) *transition.ColumnChanges {
	changes := &transition.ColumnChanges{}
	if cc.Old.SQLType != cc.New.SQLType {
		t := cc.New.SQLType
		changes.Type = &t
	}
	if cc.Old.Nullable != cc.New.Nullable {
		n := cc.New.Nullable
		changes.Nullable = &n
	}
	if !defaultEqual(cc.Old.Default, cc.New.Default) {
		d := cc.New.Default
		changes.Default = &d
	}
	return changes
}
