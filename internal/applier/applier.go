// Package applier implements the migration applier (C10): the component
// that walks a resolved transition path, validates environment state,
// enforces safety policy, stages collateral, compiles and executes SQL
// through a database plugin, and records the result, per spec.md §4.10.
package applier

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/betagors/yama/internal/collateral"
	"github.com/betagors/yama/internal/diffplan"
	"github.com/betagors/yama/internal/environment"
	"github.com/betagors/yama/internal/model"
	"github.com/betagors/yama/internal/plugin"
	"github.com/betagors/yama/internal/safety"
	"github.com/betagors/yama/internal/snapshot"
	"github.com/betagors/yama/internal/transition"
	"github.com/betagors/yama/internal/yamaerr"
)

// ShadowCapable is an optional plugin capability: plugins that can
// substitute a shadow-column rename for an unsupported (or
// policy-deferred) drop_column implement this. Not every plugin.Plugin
// needs to — the applier falls back to the plain drop when a plugin
// doesn't implement it or the plugin's capabilities don't advertise
// ShadowColumns.
type ShadowCapable interface {
	ShadowStepSQL(step transition.Step, snapshotHash, snapshotPrefix, createdAt string) (stmt string, shadow collateral.ShadowColumn, err error)
}

// DataSnapshotCapable is an optional plugin capability: plugins that can
// produce a physical table-copy descriptor ahead of a drop_table
// implement this, per spec.md §4.8's "{table}_before_{snapshotPrefix}"
// data snapshot. The returned stmt is informational only — the actual
// CREATE TABLE statement is regenerated from the substituted
// transition.CopyTable step the same way a shadow-column rename is.
type DataSnapshotCapable interface {
	DataSnapshotStepSQL(step transition.Step, snapshotHash, snapshotPrefix, createdAt string) (stmt string, snap collateral.DataSnapshot, err error)
}

// Locker is an optional plugin capability: plugins backed by a database
// that supports a session-scoped advisory lock implement this so the
// applier can enforce spec.md §5's "two appliers targeting the same
// environment must not run concurrently" invariant (MySQL's
// GET_LOCK/RELEASE_LOCK). A plugin that doesn't implement it runs without
// the lock — concurrency safety for that backend is left to the caller.
type Locker interface {
	AdvisoryLock(ctx context.Context, db *sql.DB, name string) (unlock func(context.Context) error, err error)
}

// Options configures an Applier's collaborators. Clock and Out are
// injectable, matching the teacher's pattern of not calling time.Now()
// or writing to os.Stdout directly from inside business logic.
type Options struct {
	DB           *sql.DB
	Graph        *transition.Graph
	Transitions  *transition.FileStore
	Snapshots    *snapshot.FileStore
	Environments *environment.FileStore
	Plugin       plugin.Plugin
	Collateral   collateral.Recorder
	Clock        func() string
	Out          io.Writer
}

// Applier ties together the DAG, environment state, safety policy,
// collateral, and a database plugin to execute transition requests.
type Applier struct {
	db           *sql.DB
	graph        *transition.Graph
	transitions  *transition.FileStore
	snapshots    *snapshot.FileStore
	environments *environment.FileStore
	plugin       plugin.Plugin
	collateral   collateral.Recorder
	clock        func() string
	out          io.Writer
}

// New returns an Applier from its collaborators.
func New(opts Options) *Applier {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() string { return time.Now().UTC().Format(time.RFC3339) }
	}
	return &Applier{
		db:           opts.DB,
		graph:        opts.Graph,
		transitions:  opts.Transitions,
		snapshots:    opts.Snapshots,
		environments: opts.Environments,
		plugin:       opts.Plugin,
		collateral:   opts.Collateral,
		clock:        clock,
		out:          out,
	}
}

// Connect establishes and pings the target database connection, mirroring
// the teacher's connect-then-ping contract.
func Connect(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("applier: open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("applier: ping failed: %w; additionally failed to close: %w", err, closeErr)
		}
		return nil, fmt.Errorf("applier: ping failed: %w", err)
	}
	return db, nil
}

// ApplyRequest names the transition to apply and the environment it
// targets.
type ApplyRequest struct {
	FromSnapshot      string
	ToSnapshot        string
	Environment       string
	PolicyLabel       safety.EnvironmentLabel
	OverrideDangerous bool
	Name              string
	Description       string
	BackupTrigger     collateral.BackupTrigger
}

func (a *Applier) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// Apply runs the full §4.10 flow for req. On any failure before
// execution begins (path resolution, hash validation, policy, collateral
// staging, compilation) it returns early with no database writes. Once
// execution has started, failures are handled per the transactional/
// non-transactional branches of step 8.
func (a *Applier) Apply(ctx context.Context, req ApplyRequest) error {
	unlock, err := a.acquireLock(ctx, req)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer func() { _ = unlock(ctx) }()
	}

	path, steps, err := a.resolvePath(req)
	if err != nil {
		return err
	}

	if err := a.validateEnvironmentState(req, path); err != nil {
		return err
	}

	level, _ := safety.ClassifyPlan(steps)
	policy := safety.EvaluatePolicy(req.PolicyLabel, level, len(steps), req.OverrideDangerous)
	for _, w := range policy.Warnings {
		a.printf("WARNING: %s\n", w)
	}
	if policy.Blocked {
		return &yamaerr.PolicyError{
			Environment: req.Environment,
			Level:       level.String(),
			Reason:      "policy rejected plan; pass an override for dangerous steps or stage on a permissive environment",
		}
	}

	steps, err = a.stageCollateral(req, steps)
	if err != nil {
		return fmt.Errorf("applier: collateral staging: %w", err)
	}

	plan, err := a.plugin.GenerateSQL(steps)
	if err != nil {
		return fmt.Errorf("applier: compile: %w", err)
	}

	fromModel, err := a.loadModel(req.FromSnapshot)
	if err != nil {
		return err
	}
	forwardSteps := steps
	rollbackSteps := diffplan.Rollback(forwardSteps, fromModel)

	caps := a.plugin.Capabilities()
	if caps.TransactionalDDL {
		return a.applyTransactional(ctx, req, plan)
	}
	return a.applyStepwise(ctx, req, plan, rollbackSteps)
}

// acquireLock takes the plugin's advisory lock scoped to req.Environment,
// when the plugin implements Locker, for the duration of Apply. It
// returns a nil unlock func when the plugin doesn't implement Locker, so
// callers can defer it unconditionally. With no live connection (a.db ==
// nil, e.g. an Applier exercised against file stores only) there's
// nothing to lock through, so it's skipped rather than attempted.
func (a *Applier) acquireLock(ctx context.Context, req ApplyRequest) (func(context.Context) error, error) {
	if a.db == nil {
		return nil, nil
	}
	locker, ok := a.plugin.(Locker)
	if !ok {
		return nil, nil
	}
	unlock, err := locker.AdvisoryLock(ctx, a.db, lockName(req.Environment))
	if err != nil {
		return nil, fmt.Errorf("applier: acquire advisory lock: %w", err)
	}
	return unlock, nil
}

func lockName(environment string) string {
	return "yama:" + environment
}

func (a *Applier) resolvePath(req ApplyRequest) (transition.Path, []transition.Step, error) {
	path, ok := a.graph.FindPath(req.FromSnapshot, req.ToSnapshot)
	if !ok {
		return transition.Path{}, nil, &yamaerr.NotFoundError{Kind: "path", ID: req.FromSnapshot + ".." + req.ToSnapshot}
	}
	var steps []transition.Step
	for _, hash := range path.TransitionSequence {
		t, err := a.transitions.Load(hash)
		if err != nil {
			return transition.Path{}, nil, fmt.Errorf("applier: load transition %s: %w", hash, err)
		}
		steps = append(steps, t.Steps...)
	}
	return path, steps, nil
}

func (a *Applier) validateEnvironmentState(req ApplyRequest, path transition.Path) error {
	state, err := a.environments.Load(req.Environment)
	if err != nil {
		if _, notFound := err.(*yamaerr.NotFoundError); !notFound {
			return err
		}
		// First deploy to this environment: nothing installed yet, so any
		// fromSnapshot is accepted as the starting point.
		return nil
	}
	if state.CurrentSnapshot != req.FromSnapshot {
		return &yamaerr.HashMismatchError{
			Environment: req.Environment,
			Expected:    req.FromSnapshot,
			Actual:      state.CurrentSnapshot,
		}
	}
	expected := req.FromSnapshot
	for _, hash := range path.TransitionSequence {
		t, err := a.transitions.Load(hash)
		if err != nil {
			return fmt.Errorf("applier: load transition %s: %w", hash, err)
		}
		if t.FromHash != expected {
			return &yamaerr.HashMismatchError{Environment: req.Environment, Expected: expected, Actual: t.FromHash}
		}
		expected = t.ToHash
	}
	return nil
}

func (a *Applier) loadModel(snapshotHash string) (*model.Model, error) {
	snap, err := a.snapshots.Load(snapshotHash)
	if err != nil {
		return nil, fmt.Errorf("applier: load snapshot %s: %w", snapshotHash, err)
	}
	m, err := model.BuildModel(snap.Entities)
	if err != nil {
		return nil, fmt.Errorf("applier: rebuild model for snapshot %s: %w", snapshotHash, err)
	}
	return m, nil
}

// stageCollateral creates backups and shadow-column/data-snapshot
// collateral for every destructive step, per spec.md §4.8: it
// substitutes a shadow-column rename for any drop_column the plugin
// supports shadowing, and prepends a physical table-copy step ahead of
// any drop_table the plugin can snapshot. Steps it doesn't substitute or
// prepend ahead of pass through unchanged.
func (a *Applier) stageCollateral(req ApplyRequest, steps []transition.Step) ([]transition.Step, error) {
	caps := a.plugin.Capabilities()
	sc, shadowCapable := a.plugin.(ShadowCapable)
	dsc, dataSnapshotCapable := a.plugin.(DataSnapshotCapable)
	now := a.clock()
	snapshotPrefix := shortPrefix(req.ToSnapshot)

	out := make([]transition.Step, 0, len(steps))
	for _, step := range steps {
		impact := safety.AnalyzeImpact([]transition.Step{step})
		if impact.RequiresBackup {
			if err := a.recordBackup(req, step, now); err != nil {
				return nil, err
			}
		}

		if step.Kind == transition.DropColumn && caps.ShadowColumns && shadowCapable {
			stmt, shadow, err := sc.ShadowStepSQL(step, req.ToSnapshot, snapshotPrefix, now)
			if err != nil {
				return nil, fmt.Errorf("applier: shadow substitution for %s.%s: %w", step.Table, step.Column, err)
			}
			if err := a.collateral.RecordShadow(shadow); err != nil {
				return nil, fmt.Errorf("applier: record shadow: %w", err)
			}
			_ = stmt // the rename statement itself is regenerated by GenerateStepSQL below from the substituted step
			out = append(out, transition.Step{Kind: transition.RenameColumn, Table: step.Table, Column: step.Column, NewName: shadow.Column})
			continue
		}

		if step.Kind == transition.DropTable && dataSnapshotCapable {
			stmt, snap, err := dsc.DataSnapshotStepSQL(step, req.ToSnapshot, snapshotPrefix, now)
			if err != nil {
				return nil, fmt.Errorf("applier: data snapshot for %s: %w", step.Table, err)
			}
			if err := a.collateral.RecordDataSnapshot(snap); err != nil {
				return nil, fmt.Errorf("applier: record data snapshot: %w", err)
			}
			_ = stmt // the copy statement itself is regenerated by GenerateStepSQL below from the prepended step
			out = append(out, transition.Step{Kind: transition.CopyTable, Table: step.Table, NewName: snap.CopyTable})
		}

		out = append(out, step)
	}
	return out, nil
}

func (a *Applier) recordBackup(req ApplyRequest, step transition.Step, now string) error {
	trigger := req.BackupTrigger
	if trigger == "" {
		trigger = collateral.TriggerSchemaTransition
	}
	content := []byte(fmt.Sprintf("backup marker for %s.%s at transition to %s", step.Table, step.Column, req.ToSnapshot))
	entry := collateral.BackupEntry{
		Snapshot:        req.ToSnapshot,
		Timestamp:       now,
		Trigger:         trigger,
		Checksum:        collateral.Checksum(content),
		RetentionPolicy: "30d",
	}
	return a.collateral.RecordBackup(entry)
}

func shortPrefix(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func (a *Applier) applyTransactional(ctx context.Context, req ApplyRequest, plan plugin.Plan) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("applier: begin transaction: %w", err)
	}

	for i, stmt := range plan.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("applier: statement %d failed: %w; rollback also failed: %w", i+1, err, rbErr)
			}
			return &yamaerr.PluginError{Statement: stmt, Transactional: true, Err: err}
		}
	}

	if err := a.insertTrackingRowTx(ctx, tx, req, plan); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("applier: record tracking row failed: %w; rollback also failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("applier: commit: %w", err)
	}

	if _, err := a.environments.UpdateState(req.Environment, req.ToSnapshot); err != nil {
		return fmt.Errorf("applier: update environment state after commit: %w", err)
	}
	return nil
}

func (a *Applier) applyStepwise(ctx context.Context, req ApplyRequest, plan plugin.Plan, rollbackSteps []transition.Step) error {
	applied := 0
	for i, stmt := range plan.Statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			rbErr := a.runRollback(ctx, rollbackSteps, applied)
			if rbErr != nil {
				return &yamaerr.RollbackFatalError{StepIndex: applied, Err: rbErr}
			}
			return &yamaerr.PluginError{Statement: stmt, Transactional: false, Err: fmt.Errorf("statement %d of %d: %w", i+1, len(plan.Statements), err)}
		}
		applied++
	}

	if err := a.insertTrackingRow(ctx, req, plan); err != nil {
		return err
	}
	if _, err := a.environments.UpdateState(req.Environment, req.ToSnapshot); err != nil {
		return fmt.Errorf("applier: update environment state: %w", err)
	}
	return nil
}

// runRollback emits the synthesized inverse plan through the plugin,
// from the last successfully applied step downward, per spec.md §4.10
// step 8. A failure partway through is the caller's to surface as
// RollbackFatalError.
func (a *Applier) runRollback(ctx context.Context, rollbackSteps []transition.Step, appliedCount int) error {
	if appliedCount == 0 || len(rollbackSteps) == 0 {
		return nil
	}
	rollbackPlan, err := a.plugin.GenerateSQL(rollbackSteps)
	if err != nil {
		return fmt.Errorf("compile rollback plan: %w", err)
	}
	for _, stmt := range rollbackPlan.Statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rollback statement failed: %w", err)
		}
	}
	return nil
}

func (a *Applier) insertTrackingRowTx(ctx context.Context, tx *sql.Tx, req ApplyRequest, plan plugin.Plan) error {
	_, err := tx.ExecContext(ctx, trackingInsertSQL,
		req.Name, "schema", req.FromSnapshot, req.ToSnapshot, plan.Checksum, req.Description)
	return err
}

func (a *Applier) insertTrackingRow(ctx context.Context, req ApplyRequest, plan plugin.Plan) error {
	_, err := a.db.ExecContext(ctx, trackingInsertSQL,
		req.Name, "schema", req.FromSnapshot, req.ToSnapshot, plan.Checksum, req.Description)
	return err
}

const trackingInsertSQL = "INSERT INTO `_yama_migrations` (`name`, `type`, `from_model_hash`, `to_model_hash`, `checksum`, `description`) VALUES (?, ?, ?, ?, ?, ?)"

// InstalledHash returns the to_model_hash of the most recently applied
// migration row, the core's definition of installed schema identity per
// spec.md §6.2.
func InstalledHash(ctx context.Context, db *sql.DB) (string, error) {
	row := db.QueryRowContext(ctx, "SELECT `to_model_hash` FROM `_yama_migrations` ORDER BY `applied_at` DESC, `id` DESC LIMIT 1")
	var hash sql.NullString
	if err := row.Scan(&hash); err != nil {
		return "", err
	}
	return hash.String, nil
}
