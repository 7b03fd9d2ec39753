package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Hasher computes a content hash over arbitrary canonical bytes. The
// default is SHA-256; it is injectable so tests can pin a deterministic
// stand-in per spec.md §6.4.
type Hasher interface {
	Sum(data []byte) string
}

// SHA256Hasher is the default Hasher.
type SHA256Hasher struct{}

// Sum returns the lowercase hex-encoded SHA-256 digest of data.
func (SHA256Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DefaultHasher is the hasher used by Hash when none is supplied.
var DefaultHasher Hasher = SHA256Hasher{}

// canonicalTable is the sorted-key, deterministic encoding of a table used
// for hashing: table, column, index, and foreign-key names are all sorted,
// so permuting declaration order never changes the hash. Table.ColumnOrder
// itself is left untouched for DDL generation, which is order-sensitive.
type canonicalTable struct {
	Name        string              `json:"name"`
	Columns     []canonicalColumn   `json:"columns"`
	Indexes     []canonicalIndex    `json:"indexes,omitempty"`
	ForeignKeys []canonicalFKey     `json:"foreignKeys,omitempty"`
}

type canonicalColumn struct {
	Name       string `json:"name"`
	SQLType    string `json:"sqlType"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
	Default    any    `json:"default,omitempty"`
	Generated  bool   `json:"generated,omitempty"`
}

type canonicalIndex struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

type canonicalFKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
}

// Hash computes the content hash of a Model: SHA-256 over a canonical JSON
// encoding with sorted keys and with table, column, index, and
// foreign-key names sorted, so declaration order does not affect it.
func Hash(m *Model) (string, error) {
	tables := make([]canonicalTable, 0, len(m.Tables))
	for _, name := range m.TableOrder {
		t := m.Tables[name]
		tables = append(tables, canonicalizeTable(t))
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	data, err := json.Marshal(tables)
	if err != nil {
		return "", err
	}
	return DefaultHasher.Sum(data), nil
}

func canonicalizeTable(t *Table) canonicalTable {
	ct := canonicalTable{Name: t.Name}
	for _, name := range t.ColumnOrder {
		c := t.Columns[name]
		ct.Columns = append(ct.Columns, canonicalColumn{
			Name:       c.Name,
			SQLType:    c.SQLType,
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
			Default:    c.Default,
			Generated:  c.Generated,
		})
	}
	sort.Slice(ct.Columns, func(i, j int) bool { return ct.Columns[i].Name < ct.Columns[j].Name })

	idxNames := make([]*Index, len(t.Indexes))
	copy(idxNames, t.Indexes)
	sort.Slice(idxNames, func(i, j int) bool { return idxNames[i].Name < idxNames[j].Name })
	for _, idx := range idxNames {
		ct.Indexes = append(ct.Indexes, canonicalIndex{Name: idx.Name, Columns: idx.Columns, Unique: idx.Unique})
	}

	fks := make([]*ForeignKey, len(t.ForeignKeys))
	copy(fks, t.ForeignKeys)
	sort.Slice(fks, func(i, j int) bool { return fks[i].Name < fks[j].Name })
	for _, fk := range fks {
		ct.ForeignKeys = append(ct.ForeignKeys, canonicalFKey{
			Name:              fk.Name,
			Columns:           fk.Columns,
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: fk.ReferencedColumns,
		})
	}

	return ct
}
