// Package diffplan implements the diff planner (C5): a structured
// comparison of two resolved models, a total-ordered step emission over
// that comparison, and rollback-plan synthesis.
package diffplan

import (
	"github.com/betagors/yama/internal/model"
	"github.com/betagors/yama/internal/transition"
)

// SchemaDiff is the bucketed structural comparison of two models:
// added/removed tables, and per-table added/removed columns, indexes,
// and foreign keys, plus modified columns.
type SchemaDiff struct {
	AddedTables   []*model.Table
	RemovedTables []*model.Table
	Modified      []*TableDiff
}

// TableDiff is the bucketed comparison of one table present in both
// models.
type TableDiff struct {
	Name string

	AddedColumns   []*model.Column
	RemovedColumns []*model.Column
	ModifiedColumns []*ColumnChange

	AddedIndexes   []*model.Index
	RemovedIndexes []*model.Index

	AddedForeignKeys   []*model.ForeignKey
	RemovedForeignKeys []*model.ForeignKey
}

// ColumnChange carries only the fields that differ between the old and
// new definition of a column present (by name) in both tables.
type ColumnChange struct {
	Name string
	Old  *model.Column
	New  *model.Column
}

// Diff walks both models' tables: set-difference yields added/removed
// tables; for tables present in both, inner comparisons produce
// added/removed columns, added/removed indexes, added/removed foreign
// keys, and modified columns (by key-wise comparison of type, nullable,
// default). Indexes covering a column being removed are additionally
// marked removed even if still physically present in from, so DDL
// ordering can drop the index before the column.
func Diff(from, to *model.Model) *SchemaDiff {
	d := &SchemaDiff{}

	for _, name := range to.TableOrder {
		newTable := to.Tables[name]
		oldTable, existed := from.Tables[name]
		if !existed {
			d.AddedTables = append(d.AddedTables, newTable)
			continue
		}
		if td := compareTable(oldTable, newTable); td != nil {
			d.Modified = append(d.Modified, td)
		}
	}

	for _, name := range from.TableOrder {
		if _, stillExists := to.Tables[name]; !stillExists {
			d.RemovedTables = append(d.RemovedTables, from.Tables[name])
		}
	}

	return d
}

func compareTable(oldTable, newTable *model.Table) *TableDiff {
	td := &TableDiff{Name: newTable.Name}

	removedColumns := make(map[string]bool)

	for _, name := range newTable.ColumnOrder {
		newCol := newTable.Columns[name]
		oldCol, existed := oldTable.Columns[name]
		if !existed {
			td.AddedColumns = append(td.AddedColumns, newCol)
			continue
		}
		if columnChanged(oldCol, newCol) {
			td.ModifiedColumns = append(td.ModifiedColumns, &ColumnChange{Name: name, Old: oldCol, New: newCol})
		}
	}

	for _, name := range oldTable.ColumnOrder {
		if _, stillExists := newTable.Columns[name]; !stillExists {
			td.RemovedColumns = append(td.RemovedColumns, oldTable.Columns[name])
			removedColumns[name] = true
		}
	}

	newIdx := indexSet(newTable.Indexes)
	for _, idx := range newTable.Indexes {
		if _, existed := indexSet(oldTable.Indexes)[idx.Name]; !existed {
			td.AddedIndexes = append(td.AddedIndexes, idx)
		}
	}
	for _, idx := range oldTable.Indexes {
		_, stillExists := newIdx[idx.Name]
		coversRemovedColumn := false
		for _, c := range idx.Columns {
			if removedColumns[c] {
				coversRemovedColumn = true
				break
			}
		}
		if !stillExists || coversRemovedColumn {
			td.RemovedIndexes = append(td.RemovedIndexes, idx)
		}
	}

	newFK := fkSet(newTable.ForeignKeys)
	for _, fk := range newTable.ForeignKeys {
		if _, existed := fkSet(oldTable.ForeignKeys)[fk.Name]; !existed {
			td.AddedForeignKeys = append(td.AddedForeignKeys, fk)
		}
	}
	for _, fk := range oldTable.ForeignKeys {
		_, stillExists := newFK[fk.Name]
		coversRemovedColumn := false
		for _, c := range fk.Columns {
			if removedColumns[c] {
				coversRemovedColumn = true
				break
			}
		}
		if !stillExists || coversRemovedColumn {
			td.RemovedForeignKeys = append(td.RemovedForeignKeys, fk)
		}
	}

	if isTableDiffEmpty(td) {
		return nil
	}
	return td
}

func isTableDiffEmpty(td *TableDiff) bool {
	return len(td.AddedColumns) == 0 && len(td.RemovedColumns) == 0 && len(td.ModifiedColumns) == 0 &&
		len(td.AddedIndexes) == 0 && len(td.RemovedIndexes) == 0 &&
		len(td.AddedForeignKeys) == 0 && len(td.RemovedForeignKeys) == 0
}

func columnChanged(old, new_ *model.Column) bool {
	return old.SQLType != new_.SQLType || old.Nullable != new_.Nullable || !defaultEqual(old.Default, new_.Default)
}

func defaultEqual(a, b any) bool {
	return a == b
}

func indexSet(idxs []*model.Index) map[string]*model.Index {
	out := make(map[string]*model.Index, len(idxs))
	for _, idx := range idxs {
		out[idx.Name] = idx
	}
	return out
}

func fkSet(fks []*model.ForeignKey) map[string]*model.ForeignKey {
	out := make(map[string]*model.ForeignKey, len(fks))
	for _, fk := range fks {
		out[fk.Name] = fk
	}
	return out
}

// toColumnDef converts a resolved column into the Step-carried payload.
func toColumnDef(c *model.Column) transition.ColumnDef {
	return transition.ColumnDef{
		Name:       c.Name,
		SQLType:    c.SQLType,
		Nullable:   c.Nullable,
		PrimaryKey: c.PrimaryKey,
		Default:    c.Default,
		Generated:  c.Generated,
	}
}

func toIndexDef(i *model.Index) transition.IndexDef {
	return transition.IndexDef{Name: i.Name, Columns: i.Columns, Unique: i.Unique}
}

func toForeignKeyDef(fk *model.ForeignKey) transition.ForeignKeyDef {
	return transition.ForeignKeyDef{
		Name:              fk.Name,
		Columns:           fk.Columns,
		ReferencedTable:   fk.ReferencedTable,
		ReferencedColumns: fk.ReferencedColumns,
	}
}
