package diffplan

import (
	"github.com/betagors/yama/internal/model"
	"github.com/betagors/yama/internal/transition"
)

// Rollback emits the inverse of a forward plan against the `from` model:
// the step list is reversed and each step transformed — adds become
// drops carrying only the identifier; drops become adds carrying the
// full column/index/FK descriptor resolved from `from`; rename reverses
// names; modify reverses each changed field to its `from` value. A drop
// whose pre-drop definition cannot be resolved from `from` is omitted —
// rollback never guesses at a definition it cannot recover.
func Rollback(plan []transition.Step, from *model.Model) []transition.Step {
	var out []transition.Step
	for i := len(plan) - 1; i >= 0; i-- {
		if inv, ok := invertStep(plan[i], from); ok {
			out = append(out, inv)
		}
	}
	return out
}

func invertStep(s transition.Step, from *model.Model) (transition.Step, bool) {
	switch s.Kind {
	case transition.AddTable:
		return transition.Step{Kind: transition.DropTable, Table: s.Table}, true

	case transition.DropTable:
		t := from.FindTable(s.Table)
		if t == nil {
			return transition.Step{}, false
		}
		cols := make([]transition.ColumnDef, 0, len(t.ColumnOrder))
		for _, name := range t.ColumnOrder {
			cols = append(cols, toColumnDef(t.Columns[name]))
		}
		return transition.Step{Kind: transition.AddTable, Table: t.Name, Columns: cols}, true

	case transition.AddColumn:
		return transition.Step{Kind: transition.DropColumn, Table: s.Table, Column: s.Column}, true

	case transition.DropColumn:
		t := from.FindTable(s.Table)
		if t == nil {
			return transition.Step{}, false
		}
		col := t.FindColumn(s.Column)
		if col == nil {
			return transition.Step{}, false
		}
		def := toColumnDef(col)
		return transition.Step{Kind: transition.AddColumn, Table: s.Table, Column: s.Column, ColDef: &def}, true

	case transition.ModifyColumn:
		t := from.FindTable(s.Table)
		if t == nil {
			return transition.Step{}, false
		}
		col := t.FindColumn(s.Column)
		if col == nil {
			return transition.Step{}, false
		}
		changes := &transition.ColumnChanges{}
		if s.Changes != nil {
			if s.Changes.Type != nil {
				v := col.SQLType
				changes.Type = &v
			}
			if s.Changes.Nullable != nil {
				v := col.Nullable
				changes.Nullable = &v
			}
			if s.Changes.Default != nil {
				v := col.Default
				changes.Default = &v
			}
		}
		def := toColumnDef(col)
		return transition.Step{Kind: transition.ModifyColumn, Table: s.Table, Column: s.Column, ColDef: &def, Changes: changes}, true

	case transition.RenameColumn:
		return transition.Step{Kind: transition.RenameColumn, Table: s.Table, Column: s.NewName, NewName: s.Column}, true

	case transition.AddIndex:
		if s.Index == nil {
			return transition.Step{}, false
		}
		return transition.Step{Kind: transition.DropIndex, Table: s.Table, Index: s.Index}, true

	case transition.DropIndex:
		t := from.FindTable(s.Table)
		if t == nil || s.Index == nil {
			return transition.Step{}, false
		}
		idx := t.FindIndex(s.Index.Name)
		if idx == nil {
			return transition.Step{}, false
		}
		def := toIndexDef(idx)
		return transition.Step{Kind: transition.AddIndex, Table: s.Table, Index: &def}, true

	case transition.AddForeignKey:
		if s.ForeignKey == nil {
			return transition.Step{}, false
		}
		return transition.Step{Kind: transition.DropForeignKey, Table: s.Table, ForeignKey: s.ForeignKey}, true

	case transition.DropForeignKey:
		t := from.FindTable(s.Table)
		if t == nil || s.ForeignKey == nil {
			return transition.Step{}, false
		}
		fk := t.FindForeignKey(s.ForeignKey.Name)
		if fk == nil {
			return transition.Step{}, false
		}
		def := toForeignKeyDef(fk)
		return transition.Step{Kind: transition.AddForeignKey, Table: s.Table, ForeignKey: &def}, true

	default:
		return transition.Step{}, false
	}
}
