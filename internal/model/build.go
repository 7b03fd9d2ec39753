package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/betagors/yama/internal/yamaerr"
)

// logicalTypeSQL maps a portable logical type to its default SQL type.
// String alone is handled separately because it needs MaxLength.
var logicalTypeSQL = map[LogicalType]string{
	TypeUUID:      "UUID",
	TypeText:      "TEXT",
	TypeInteger:   "INTEGER",
	TypeNumber:    "INTEGER",
	TypeBoolean:   "BOOLEAN",
	TypeTimestamp: "TIMESTAMP",
	TypeJSONB:     "JSONB",
	TypeJSON:      "JSON",
}

// BuildModel normalizes a set of entity declarations into a deterministic
// relational Model and computes its content hash. BuildModel is pure and
// side-effect free; it is the caller's job to persist the result.
func BuildModel(entities map[string]Entity) (*Model, error) {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Model{Tables: make(map[string]*Table, len(entities))}
	for _, name := range names {
		entity := entities[name]
		table, err := buildTable(name, entity)
		if err != nil {
			return nil, err
		}
		if _, exists := m.Tables[table.Name]; exists {
			return nil, &yamaerr.ValidationError{
				Entity:  "model",
				Name:    table.Name,
				Message: "duplicate physical table name",
			}
		}
		m.Tables[table.Name] = table
		m.TableOrder = append(m.TableOrder, table.Name)
	}

	hash, err := Hash(m)
	if err != nil {
		return nil, err
	}
	m.Hash = hash
	return m, nil
}

func buildTable(entityName string, e Entity) (*Table, error) {
	tableName := e.Table
	if tableName == "" {
		tableName = snakeCase(entityName)
	}

	t := &Table{Name: tableName, Columns: make(map[string]*Column, len(e.FieldOrder))}

	seen := make(map[string]bool, len(e.FieldOrder))
	for _, fieldName := range e.FieldOrder {
		field := e.Fields[fieldName]
		col, err := buildColumn(tableName, fieldName, field)
		if err != nil {
			return nil, err
		}
		if seen[col.Name] {
			return nil, &yamaerr.ValidationError{
				Entity:  "table",
				Name:    tableName,
				Field:   col.Name,
				Message: "duplicate physical column name",
			}
		}
		seen[col.Name] = true
		t.Columns[col.Name] = col
		t.ColumnOrder = append(t.ColumnOrder, col.Name)

		if field.Unique {
			t.Indexes = append(t.Indexes, &Index{
				Name:    fmt.Sprintf("%s_%s_idx", tableName, col.Name),
				Columns: []string{col.Name},
				Unique:  true,
			})
		} else if field.Index {
			t.Indexes = append(t.Indexes, &Index{
				Name:    fmt.Sprintf("%s_%s_idx", tableName, col.Name),
				Columns: []string{col.Name},
				Unique:  false,
			})
		}

		if field.References != "" {
			refTable, refColumn, ok := ParseReference(field.References)
			if !ok {
				return nil, &yamaerr.ValidationError{
					Entity:  "column",
					Name:    col.Name,
					Field:   "References",
					Message: fmt.Sprintf("invalid reference %q; expected \"table.column\"", field.References),
				}
			}
			t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
				Name:              fmt.Sprintf("%s_%s_fkey", tableName, col.Name),
				Columns:           []string{col.Name},
				ReferencedTable:   refTable,
				ReferencedColumns: []string{refColumn},
			})
		}
	}

	for _, decl := range e.Indexes {
		name := decl.Name
		if name == "" {
			name = fmt.Sprintf("%s_%s_idx", tableName, strings.Join(decl.Columns, "_"))
		}
		t.Indexes = append(t.Indexes, &Index{Name: name, Columns: decl.Columns, Unique: decl.Unique})
	}

	for _, rel := range e.Relations {
		name := rel.Name
		if name == "" {
			name = fmt.Sprintf("%s_%s_fkey", tableName, strings.Join(rel.Columns, "_"))
		}
		t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
			Name:              name,
			Columns:           rel.Columns,
			ReferencedTable:   rel.References,
			ReferencedColumns: rel.RefColumns,
		})
	}

	return t, nil
}

func buildColumn(tableName, fieldName string, f FieldDescriptor) (*Column, error) {
	physicalName := f.Column
	if physicalName == "" {
		physicalName = fieldName
	}

	sqlType := resolveSQLType(f)

	// Nullable unless required=true or nullable=false was explicitly set;
	// primary-key columns are always forced non-null.
	nullable := true
	if f.RequiredIsSet() && f.Required {
		nullable = false
	}
	if f.Nullable != nil && !*f.Nullable {
		nullable = false
	}
	if f.PrimaryKey {
		nullable = false
	}

	return &Column{
		Name:       physicalName,
		SQLType:    sqlType,
		Nullable:   nullable,
		PrimaryKey: f.PrimaryKey,
		Default:    f.Default,
		Generated:  f.Generated,
	}, nil
}

// resolveSQLType implements spec.md §4.1's three-step resolution: explicit
// override, logical-type mapping table, or a permissive uppercase fallback
// for unknown types.
func resolveSQLType(f FieldDescriptor) string {
	if f.DBType != "" {
		return f.DBType
	}
	if f.Type == TypeString {
		if f.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.MaxLength)
		}
		return "VARCHAR(255)"
	}
	if sql, ok := logicalTypeSQL[f.Type]; ok {
		return sql
	}
	if f.Type != "" {
		return strings.ToUpper(string(f.Type))
	}
	if f.NamedType != "" {
		return strings.ToUpper(f.NamedType)
	}
	return "UNKNOWN"
}

// snakeCase derives a physical table name from an entity name: the first
// uppercase letter is preserved lowercase, subsequent uppercase letters are
// prefixed with an underscore (e.g. "UserAccount" -> "user_account").
func snakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseReference splits a "table.column" reference string into its parts.
func ParseReference(ref string) (table, column string, ok bool) {
	ref = strings.TrimSpace(ref)
	dot := strings.LastIndex(ref, ".")
	if dot <= 0 || dot >= len(ref)-1 {
		return "", "", false
	}
	return ref[:dot], ref[dot+1:], true
}
