package transition

// StepKind discriminates the Step sum type. Each kind carries only the
// payload fields relevant to it; dispatch throughout the diff planner,
// rollback generator, safety classifier, and plugin interface switches on
// Kind rather than relying on a shared base type.
type StepKind string

const (
	AddTable       StepKind = "add_table"
	DropTable      StepKind = "drop_table"
	AddColumn      StepKind = "add_column"
	DropColumn     StepKind = "drop_column"
	ModifyColumn   StepKind = "modify_column"
	RenameColumn   StepKind = "rename_column"
	AddIndex       StepKind = "add_index"
	DropIndex      StepKind = "drop_index"
	AddForeignKey  StepKind = "add_foreign_key"
	DropForeignKey StepKind = "drop_foreign_key"

	// CopyTable is not emitted by the diff planner; the applier's
	// collateral staging inserts it immediately before a drop_table step
	// when the plugin supports data snapshots, per spec.md §4.8's
	// "{table}_before_{snapshotPrefix}" physical copy.
	CopyTable StepKind = "copy_table"
)

// ColumnDef is the resolved column payload carried by add_table and
// add_column steps.
type ColumnDef struct {
	Name       string `json:"name"`
	SQLType    string `json:"sqlType"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
	Default    any    `json:"default,omitempty"`
	Generated  bool   `json:"generated,omitempty"`
}

// IndexDef is the resolved index payload carried by add_index/drop_index.
type IndexDef struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ForeignKeyDef is the resolved foreign key payload carried by
// add_foreign_key/drop_foreign_key.
type ForeignKeyDef struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
}

// ColumnChanges carries only the fields that actually differ in a
// modify_column step; a nil pointer means that field is unchanged.
type ColumnChanges struct {
	Type     *string `json:"type,omitempty"`
	Nullable *bool   `json:"nullable,omitempty"`
	Default  *any    `json:"default,omitempty"`
}

// Step is a single schema change. Exactly the fields relevant to Kind are
// populated; the rest are zero-valued.
type Step struct {
	Kind StepKind `json:"kind"`

	Table string `json:"table"`

	// add_table
	Columns []ColumnDef `json:"columns,omitempty"`

	// add_column / drop_column / modify_column / rename_column
	Column  string    `json:"column,omitempty"`
	ColDef  *ColumnDef `json:"colDef,omitempty"`
	Changes *ColumnChanges `json:"changes,omitempty"`

	// rename_column (target column name) / copy_table (copy table name)
	NewName string `json:"newName,omitempty"`

	// add_index / drop_index
	Index *IndexDef `json:"index,omitempty"`

	// add_foreign_key / drop_foreign_key
	ForeignKey *ForeignKeyDef `json:"foreignKey,omitempty"`
}

// IsBreaking reports whether the step's kind is inherently data-losing or
// semantics-changing independent of classification policy. It is not a
// substitute for safety.ClassifyStep, and safety.AnalyzeImpact computes
// its own Breaking flag without calling it.
func (s Step) IsBreaking() bool {
	switch s.Kind {
	case DropColumn, DropTable:
		return true
	case ModifyColumn:
		return true
	case AddColumn:
		return s.ColDef != nil && !s.ColDef.Nullable && s.ColDef.Default == nil
	default:
		return false
	}
}
