package applier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betagors/yama/internal/collateral"
	"github.com/betagors/yama/internal/environment"
	"github.com/betagors/yama/internal/model"
	"github.com/betagors/yama/internal/plugin"
	pluginmysql "github.com/betagors/yama/internal/plugin/mysql"
	"github.com/betagors/yama/internal/safety"
	"github.com/betagors/yama/internal/snapshot"
	"github.com/betagors/yama/internal/transition"
	"github.com/betagors/yama/internal/yamaerr"
)

type fixedClock struct{ at string }

func (c fixedClock) Now() string { return c.at }

func usersEntity(withBio bool) model.Entity {
	e := model.NewEntity()
	e.Table = "users"
	id := model.FieldDescriptor{Type: model.TypeUUID, PrimaryKey: true}
	id.SetRequired(true)
	e.SetField("id", id)
	email := model.FieldDescriptor{Type: model.TypeString, MaxLength: 255, Unique: true}
	email.SetRequired(true)
	e.SetField("email", email)
	if withBio {
		bio := model.FieldDescriptor{Type: model.TypeText}
		e.SetField("bio", bio)
	}
	return e
}

func saveSnapshot(t *testing.T, store *snapshot.FileStore, entities map[string]model.Entity) string {
	t.Helper()
	m, err := model.BuildModel(entities)
	require.NoError(t, err)
	err = store.Save(snapshot.Snapshot{Hash: m.Hash, Entities: entities, Metadata: snapshot.Metadata{CreatedAt: "2026-07-30T00:00:00Z"}})
	require.NoError(t, err)
	return m.Hash
}

func saveTransition(t *testing.T, store *transition.FileStore, fromHash, toHash string, steps []transition.Step) transition.Transition {
	t.Helper()
	hash, err := transition.ComputeHash(fromHash, toHash, steps)
	require.NoError(t, err)
	tr := transition.Transition{Hash: hash, FromHash: fromHash, ToHash: toHash, Steps: steps}
	require.NoError(t, store.Save(tr))
	return tr
}

func newTestApplier(t *testing.T, plug *pluginmysql.Plugin, envDir string) (*Applier, *snapshot.FileStore, *transition.FileStore, *environment.FileStore) {
	t.Helper()
	snapStore := snapshot.NewFileStore(t.TempDir())
	transStore := transition.NewFileStore(t.TempDir())
	envStore := environment.NewFileStore(envDir, fixedClock{at: "2026-07-30T00:00:00Z"})
	recorder, err := collateral.NewFileRecorder(t.TempDir())
	require.NoError(t, err)

	a := New(Options{
		Graph:        &transition.Graph{},
		Transitions:  transStore,
		Snapshots:    snapStore,
		Environments: envStore,
		Plugin:       plug,
		Collateral:   recorder,
		Clock:        func() string { return "2026-07-30T00:00:00Z" },
	})
	return a, snapStore, transStore, envStore
}

func TestResolvePathWalksTransitionSequenceInOrder(t *testing.T) {
	a, snapStore, transStore, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())

	fromHash := saveSnapshot(t, snapStore, map[string]model.Entity{"users": usersEntity(false)})
	toHash := saveSnapshot(t, snapStore, map[string]model.Entity{"users": usersEntity(true)})

	steps := []transition.Step{
		{Kind: transition.AddColumn, Table: "users", Column: "bio", ColDef: &transition.ColumnDef{Name: "bio", SQLType: "TEXT", Nullable: true}},
	}
	tr := saveTransition(t, transStore, fromHash, toHash, steps)

	a.graph = &transition.Graph{
		Nodes: []string{fromHash, toHash},
		Edges: map[string][]transition.Edge{
			fromHash: {{To: toHash, TransitionHash: tr.Hash, StepCount: len(steps)}},
		},
	}

	path, resolved, err := a.resolvePath(ApplyRequest{FromSnapshot: fromHash, ToSnapshot: toHash})
	require.NoError(t, err)
	assert.Equal(t, []string{tr.Hash}, path.TransitionSequence)
	require.Len(t, resolved, 1)
	assert.Equal(t, transition.AddColumn, resolved[0].Kind)
}

func TestResolvePathNotFoundWhenNoPathExists(t *testing.T) {
	a, _, _, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())
	a.graph = &transition.Graph{}

	_, _, err := a.resolvePath(ApplyRequest{FromSnapshot: "aaa", ToSnapshot: "bbb"})
	require.Error(t, err)
	var nf *yamaerr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestValidateEnvironmentStateAcceptsFirstDeploy(t *testing.T) {
	a, _, _, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())
	err := a.validateEnvironmentState(ApplyRequest{Environment: "development", FromSnapshot: "anyhash"}, transition.Path{})
	assert.NoError(t, err)
}

func TestValidateEnvironmentStateRejectsMismatchedFromHash(t *testing.T) {
	a, _, _, envStore := newTestApplier(t, pluginmysql.New(), t.TempDir())
	_, err := envStore.UpdateState("staging", "installed-hash")
	require.NoError(t, err)

	err = a.validateEnvironmentState(ApplyRequest{Environment: "staging", FromSnapshot: "stale-hash"}, transition.Path{})
	require.Error(t, err)
	var hm *yamaerr.HashMismatchError
	assert.ErrorAs(t, err, &hm)
}

func TestValidateEnvironmentStateDetectsBrokenTransitionChain(t *testing.T) {
	a, _, transStore, envStore := newTestApplier(t, pluginmysql.New(), t.TempDir())
	_, err := envStore.UpdateState("staging", "snapA")
	require.NoError(t, err)

	// A transition whose declared fromHash doesn't match the path's
	// expected predecessor (simulating a corrupted or tampered chain).
	steps := []transition.Step{{Kind: transition.AddTable, Table: "x", Columns: []transition.ColumnDef{{Name: "id", SQLType: "BIGINT", PrimaryKey: true}}}}
	tr := saveTransition(t, transStore, "snapB-not-snapA", "snapC", steps)

	path := transition.Path{TransitionSequence: []string{tr.Hash}}
	err = a.validateEnvironmentState(ApplyRequest{Environment: "staging", FromSnapshot: "snapA"}, path)
	require.Error(t, err)
	var hm *yamaerr.HashMismatchError
	assert.ErrorAs(t, err, &hm)
}

func TestApplyBlockedByPolicyNeverTouchesCollateralOrPlugin(t *testing.T) {
	a, snapStore, transStore, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())

	fromHash := saveSnapshot(t, snapStore, map[string]model.Entity{"users": usersEntity(true)})
	toHash := saveSnapshot(t, snapStore, map[string]model.Entity{"users": usersEntity(false)})

	steps := []transition.Step{{Kind: transition.DropColumn, Table: "users", Column: "bio"}}
	tr := saveTransition(t, transStore, fromHash, toHash, steps)
	a.graph = &transition.Graph{
		Edges: map[string][]transition.Edge{fromHash: {{To: toHash, TransitionHash: tr.Hash, StepCount: 1}}},
	}

	err := a.Apply(context.Background(), ApplyRequest{
		FromSnapshot: fromHash,
		ToSnapshot:   toHash,
		Environment:  "production",
		PolicyLabel:  safety.Production,
	})
	require.Error(t, err)
	var pe *yamaerr.PolicyError
	assert.ErrorAs(t, err, &pe)

	shadows, err := a.collateral.Shadows()
	require.NoError(t, err)
	assert.Empty(t, shadows, "no collateral should be staged for a plan blocked before step 4")
}

func TestStageCollateralSubstitutesShadowRenameForDropColumn(t *testing.T) {
	a, _, _, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())

	steps := []transition.Step{{Kind: transition.DropColumn, Table: "users", Column: "bio"}}
	out, err := a.stageCollateral(ApplyRequest{ToSnapshot: "deadbeefcafef00d0000"}, steps)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, transition.RenameColumn, out[0].Kind)
	assert.Equal(t, "bio", out[0].Column)
	assert.Contains(t, out[0].NewName, "_shadow_bio_")

	shadows, err := a.collateral.Shadows()
	require.NoError(t, err)
	require.Len(t, shadows, 1)
	assert.Equal(t, collateral.ShadowActive, shadows[0].Status)

	backups, err := a.collateral.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1, "a destructive step also records a backup")
}

func TestStageCollateralPassesThroughNonDestructiveSteps(t *testing.T) {
	a, _, _, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())

	steps := []transition.Step{
		{Kind: transition.AddColumn, Table: "users", Column: "bio", ColDef: &transition.ColumnDef{Name: "bio", SQLType: "TEXT", Nullable: true}},
	}
	out, err := a.stageCollateral(ApplyRequest{ToSnapshot: "deadbeefcafef00d0000"}, steps)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, transition.AddColumn, out[0].Kind)

	shadows, err := a.collateral.Shadows()
	require.NoError(t, err)
	assert.Empty(t, shadows)
}

func TestStageCollateralSkipsShadowSubstitutionWhenPluginLacksCapability(t *testing.T) {
	plug := pluginmysql.New()
	a, _, _, _ := newTestApplier(t, plug, t.TempDir())
	a.plugin = &capabilityOverridePlugin{Plugin: plug, shadowColumns: false}

	steps := []transition.Step{{Kind: transition.DropColumn, Table: "users", Column: "bio"}}
	out, err := a.stageCollateral(ApplyRequest{ToSnapshot: "deadbeefcafef00d0000"}, steps)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, transition.DropColumn, out[0].Kind, "without ShadowColumns capability the plan keeps the plain drop")
}

// capabilityOverridePlugin lets a test flip a single capability flag
// without hand-rolling a full plugin.Plugin fake.
type capabilityOverridePlugin struct {
	*pluginmysql.Plugin
	shadowColumns bool
}

func (p *capabilityOverridePlugin) Capabilities() plugin.Capabilities {
	c := p.Plugin.Capabilities()
	c.ShadowColumns = p.shadowColumns
	return c
}

func TestStageCollateralPrependsDataSnapshotForDropTable(t *testing.T) {
	a, _, _, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())

	steps := []transition.Step{{Kind: transition.DropTable, Table: "orders"}}
	out, err := a.stageCollateral(ApplyRequest{ToSnapshot: "deadbeefcafef00d0000"}, steps)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, transition.CopyTable, out[0].Kind)
	assert.Equal(t, "orders", out[0].Table)
	assert.Contains(t, out[0].NewName, "orders_before_")
	assert.Equal(t, transition.DropTable, out[1].Kind)

	snaps, err := a.collateral.DataSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, collateral.DataSnapshotActive, snaps[0].Status)
	assert.Equal(t, out[0].NewName, snaps[0].CopyTable)

	backups, err := a.collateral.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1, "a destructive step also records a backup")
}

func TestAcquireLockSkipsWhenNoLiveConnection(t *testing.T) {
	a, _, _, _ := newTestApplier(t, pluginmysql.New(), t.TempDir())
	unlock, err := a.acquireLock(context.Background(), ApplyRequest{Environment: "staging"})
	require.NoError(t, err)
	assert.Nil(t, unlock, "no db configured means nothing to lock through")
}

func TestLockNameIsScopedPerEnvironment(t *testing.T) {
	assert.Equal(t, "yama:staging", lockName("staging"))
	assert.Equal(t, "yama:production", lockName("production"))
}
