package model

// Model is the derived, deterministic in-memory form of a declared schema.
// Its Hash is the sole identity of a schema state; two models with the same
// Hash are considered the same schema for every other component.
type Model struct {
	Hash        string
	TableOrder  []string
	Tables      map[string]*Table
}

// Table is the resolved, physical form of an entity.
type Table struct {
	Name         string
	ColumnOrder  []string
	Columns      map[string]*Column
	Indexes      []*Index
	ForeignKeys  []*ForeignKey
}

// Column is the resolved, physical form of a field descriptor.
type Column struct {
	Name          string
	SQLType       string
	Nullable      bool
	PrimaryKey    bool
	Default       any
	Generated     bool
	AutoIncrement bool
}

// Index is the resolved form of an explicit or synthesized index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKey is the resolved form of a field or relation reference.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// FindTable looks up a table by name.
func (m *Model) FindTable(name string) *Table {
	if m == nil {
		return nil
	}
	return m.Tables[name]
}

// FindColumn looks up a column by name within the table.
func (t *Table) FindColumn(name string) *Column {
	if t == nil {
		return nil
	}
	return t.Columns[name]
}

// FindIndex looks up an index by canonical name within the table.
func (t *Table) FindIndex(name string) *Index {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}

// FindForeignKey looks up a foreign key by canonical name within the table.
func (t *Table) FindForeignKey(name string) *ForeignKey {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return fk
		}
	}
	return nil
}

// IndexesOnColumn returns every index (explicit or synthesized) that
// covers the given column, in declared order.
func (t *Table) IndexesOnColumn(column string) []*Index {
	var out []*Index
	for _, idx := range t.Indexes {
		for _, c := range idx.Columns {
			if c == column {
				out = append(out, idx)
				break
			}
		}
	}
	return out
}
