// Package plugin declares the database-agnostic interface a concrete
// database driver implements (C9): capability negotiation, per-step SQL
// generation, tracking-table DDL, and a checksum function, per spec.md
// §4.9. The core (diff planner, safety classifier, applier) depends only
// on this interface, never on a specific database package.
package plugin

import (
	"github.com/betagors/yama/internal/transition"
)

// Capabilities is the flat capability record a plugin advertises. The
// applier consults it before executing a plan (ShadowColumns decides the
// shadow-column rename in place of a drop_column, TransactionalDDL picks
// the execution path); the diff planner does not consult it. A step the
// plugin does not support makes GenerateSQL fail with a plain error
// naming the step; yamaerr.CapabilityError is not produced.
type Capabilities struct {
	AddTable             bool
	DropTable            bool
	AddColumn            bool
	DropColumn           bool
	ModifyColumnType     bool
	ModifyColumnNullable bool
	ModifyColumnDefault  bool
	RenameColumn         bool
	AddIndex             bool
	DropIndex            bool
	ForeignKeys          bool
	TransactionalDDL     bool
	ShadowColumns        bool
	ConcurrentIndexes    bool
	OnlineDDL            bool
}

// Supports reports whether the capability flag relevant to a step's kind
// is set. Kinds this capability table does not distinguish (e.g. a
// modify_column step whose Changes touch more than one aspect) report
// supported only when every touched aspect is supported.
func (c Capabilities) Supports(s transition.Step) bool {
	switch s.Kind {
	case transition.AddTable:
		return c.AddTable
	case transition.DropTable:
		return c.DropTable
	case transition.AddColumn:
		return c.AddColumn
	case transition.DropColumn:
		return c.DropColumn
	case transition.ModifyColumn:
		return c.supportsModify(s.Changes)
	case transition.RenameColumn:
		return c.RenameColumn
	case transition.AddIndex:
		return c.AddIndex
	case transition.DropIndex:
		return c.DropIndex
	case transition.AddForeignKey, transition.DropForeignKey:
		return c.ForeignKeys
	case transition.CopyTable:
		// A same-database "CREATE TABLE ... AS SELECT" copy is not gated
		// behind a named capability (spec.md §4.9's enumeration has none
		// for it); every plugin that can drop a table can copy one first.
		return true
	default:
		return false
	}
}

func (c Capabilities) supportsModify(changes *transition.ColumnChanges) bool {
	if changes == nil {
		return true
	}
	if changes.Type != nil && !c.ModifyColumnType {
		return false
	}
	if changes.Nullable != nil && !c.ModifyColumnNullable {
		return false
	}
	if changes.Default != nil && !c.ModifyColumnDefault {
		return false
	}
	return true
}

// Plan is the compiled output of a step list: the forward SQL statements
// to execute in order, and a content checksum recorded on the tracking
// table row.
type Plan struct {
	Statements []string
	Checksum   string
}

// Plugin is the interface a concrete database driver implements. Plugins
// are expected to be stateless beyond configuration (connection details
// live in the applier, not here) so SQL generation can be exercised and
// tested without a live database.
type Plugin interface {
	// Capabilities reports what this plugin's target database supports.
	Capabilities() Capabilities

	// GenerateStepSQL compiles a single step to zero or more SQL
	// statements. ok is false when the step is unsupported by this
	// plugin's capabilities; callers should consult Capabilities before
	// calling this to decide on a substitution rather than relying on ok.
	GenerateStepSQL(step transition.Step) (stmts []string, ok bool)

	// GenerateSQL compiles an ordered step list into a full Plan.
	GenerateSQL(steps []transition.Step) (Plan, error)

	// TrackingTableDDL returns the DDL that creates this plugin's
	// `_yama_migrations` tracking table, per spec.md §6.2.
	TrackingTableDDL() string

	// Checksum returns the content checksum for a compiled statement
	// list, the value recorded on the tracking table's checksum column.
	Checksum(stmts []string) string
}
