// Package model contains the single source of truth for a declared schema.
// It normalizes entity declarations into a deterministic, content-hashable
// relational model shared by every other component of the engine.
package model

// LogicalType is the portable, dialect-independent type an entity field
// declares. It is resolved to a concrete SQL type by BuildModel.
type LogicalType string

const (
	TypeUUID      LogicalType = "uuid"
	TypeString    LogicalType = "string"
	TypeText      LogicalType = "text"
	TypeInteger   LogicalType = "integer"
	TypeNumber    LogicalType = "number"
	TypeBoolean   LogicalType = "boolean"
	TypeTimestamp LogicalType = "timestamp"
	TypeJSON      LogicalType = "json"
	TypeJSONB     LogicalType = "jsonb"
)

// FieldDescriptor is the declared (logical) form of a single entity field.
type FieldDescriptor struct {
	// Type is the portable logical type. When DBType is set, DBType alone
	// decides the resolved SQL type (and so the DDL and the model hash);
	// Type still takes part in merge comparisons.
	Type LogicalType
	// NamedType holds a foreign/custom type name when Type is empty.
	NamedType string
	// MaxLength bounds a "string" field; 0 means the dialect default.
	MaxLength int

	// Column overrides the physical column name (defaults to the field name).
	Column string
	// DBType overrides the resolved SQL type entirely.
	DBType string

	// Nullable explicitly overrides nullability when non-nil; see
	// SetRequired/RequiredIsSet for the interaction with Required.
	Nullable   *bool
	PrimaryKey bool
	Unique     bool
	Index      bool
	Generated  bool
	Required   bool
	// RequiredExplicit records whether Required was assigned via
	// SetRequired rather than left at its zero value. It must be exported
	// so a Snapshot round-trip (marshal/unmarshal, §8's load(save(S))==S
	// invariant) preserves the distinction between "not required" and
	// "never explicitly set" — an unexported bool is dropped silently by
	// encoding/json.
	RequiredExplicit bool

	// Default carries either a scalar default or a symbolic expression
	// (e.g. "now()"); the builder does not interpret it further.
	Default any

	// References names another entity this field is a foreign key to.
	References string
}

// SetRequired records an explicit required flag. Required is the inverse of
// Nullable unless explicitly set; FieldDescriptor's zero value leaves that
// ambiguous, so declarations must call this (or set Required via a
// constructor) when they want to override the nullable-by-default rule.
func (f *FieldDescriptor) SetRequired(v bool) {
	f.Required = v
	f.RequiredExplicit = true
}

// RequiredIsSet reports whether Required was explicitly assigned via
// SetRequired, as opposed to holding its zero value by default. It
// survives a Snapshot marshal/unmarshal round-trip because
// RequiredExplicit is an exported field.
func (f *FieldDescriptor) RequiredIsSet() bool { return f.RequiredExplicit }

// IndexDeclaration is an explicit, named index on an entity.
type IndexDeclaration struct {
	Name    string
	Columns []string
	Unique  bool
}

// RelationDeclaration is an explicit relation between two entities.
type RelationDeclaration struct {
	Name       string
	Columns    []string
	References string
	RefColumns []string
}

// Entity is the input, logical form of a table declaration: a physical
// table name, an ordered field mapping, optional indexes and relations.
type Entity struct {
	// Table overrides the physical table name; when empty it is derived
	// from the entity name via snake_case conversion.
	Table string

	// FieldOrder preserves declaration order; FieldOrder and Fields must
	// agree on membership. Column order affects physical DDL, so an
	// ordered representation (rather than a plain map) is load-bearing.
	FieldOrder []string
	Fields     map[string]FieldDescriptor

	Indexes   []IndexDeclaration
	Relations []RelationDeclaration
}

// NewEntity returns an Entity with its Fields map initialized.
func NewEntity() Entity {
	return Entity{Fields: make(map[string]FieldDescriptor)}
}

// SetField declares a field in order, overwriting any previous declaration
// under the same name without disturbing its position.
func (e *Entity) SetField(name string, f FieldDescriptor) {
	if e.Fields == nil {
		e.Fields = make(map[string]FieldDescriptor)
	}
	if _, exists := e.Fields[name]; !exists {
		e.FieldOrder = append(e.FieldOrder, name)
	}
	e.Fields[name] = f
}
