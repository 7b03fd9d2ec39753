// Package yamaerr defines the structured error taxonomy shared by every
// component of the engine. Errors are kinds, not ad-hoc strings: each
// variant carries the contextual fields (snapshot, transition, table,
// column) a caller needs to react without parsing messages.
package yamaerr

import "fmt"

// NotFoundError reports a missing snapshot, transition, or state record.
type NotFoundError struct {
	Kind string // "snapshot", "transition", "environment", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// HashMismatchError reports that an installed schema hash does not match
// the planned fromHash of a transition; never auto-repaired.
type HashMismatchError struct {
	Environment string
	Expected    string
	Actual      string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch in environment %q: expected %s, have %s", e.Environment, e.Expected, e.Actual)
}

// ValidationError reports a malformed entity, model, or step.
type ValidationError struct {
	Entity  string
	Name    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s %q field %q: %s", e.Entity, e.Name, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error in %s %q: %s", e.Entity, e.Name, e.Message)
}

// CapabilityError reports a step unsupported by the target database,
// optionally with a suggested substitution.
type CapabilityError struct {
	Step          string
	Capability    string
	Substitution  string
}

func (e *CapabilityError) Error() string {
	if e.Substitution != "" {
		return fmt.Sprintf("capability %q required by step %q is unsupported; suggested substitution: %s", e.Capability, e.Step, e.Substitution)
	}
	return fmt.Sprintf("capability %q required by step %q is unsupported", e.Capability, e.Step)
}

// MergeConflictError reports that a three-way merge produced conflicts; no
// partial merge is ever persisted alongside this error.
type MergeConflictError struct {
	ConflictCount int
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge produced %d conflict(s); no merge was persisted", e.ConflictCount)
}

// PolicyError reports a step set rejected by environment policy.
type PolicyError struct {
	Environment string
	Level       string
	Reason      string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy blocked plan in environment %q at level %s: %s", e.Environment, e.Level, e.Reason)
}

// PluginError wraps a SQL execution error bubbled from a database plugin.
type PluginError struct {
	Statement       string
	Transactional   bool
	Err             error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin failure (transactional=%v) executing %q: %v", e.Transactional, e.Statement, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// RollbackFatalError reports that the synthesized rollback plan itself
// failed; the system is left in an indeterminate state requiring human
// intervention.
type RollbackFatalError struct {
	StepIndex int
	Err       error
}

func (e *RollbackFatalError) Error() string {
	return fmt.Sprintf("fatal error during rollback at step %d, human intervention required: %v", e.StepIndex, e.Err)
}

func (e *RollbackFatalError) Unwrap() error { return e.Err }
