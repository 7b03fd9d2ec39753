// Package merge implements the three-way merge resolver (C7): given a
// common ancestor and two diverged entity sets, it synthesizes a merged
// entity set or a list of conflicts, per spec.md §4.7.
package merge

import (
	"fmt"
	"reflect"

	"github.com/betagors/yama/internal/diffplan"
	"github.com/betagors/yama/internal/model"
	"github.com/betagors/yama/internal/transition"
)

// ConflictKind discriminates the conflict variants of §4.7.
type ConflictKind string

const (
	AmbiguousChange       ConflictKind = "ambiguous_change"
	EntityRemovedButUsed  ConflictKind = "entity_removed_but_used"
	FieldRemovedButUsed   ConflictKind = "field_removed_but_used"
	FieldTypeMismatch     ConflictKind = "field_type_mismatch"
	FieldRequiredMismatch ConflictKind = "field_required_mismatch"
)

// Conflict is one unresolvable divergence between local and remote,
// relative to base.
type Conflict struct {
	Kind   ConflictKind
	Entity string
	Field  string
	Detail string
}

// Result is the outcome of a merge attempt. When Conflicts is non-empty,
// Merged and the two step lists below are not populated — no partial
// merge is ever persisted.
//
// On success, per spec.md §4.7's Output, the caller builds a merge
// snapshot of Merged whose parent pointer is baseHash, and two
// transitions — local→merged and remote→merged — from LocalToMergedSteps
// and RemoteToMergedSteps respectively. Merge synthesizes those step
// lists itself (via the diff planner, same as any other model-to-model
// diff) so the caller only has to assign hashes and persist.
type Result struct {
	Merged              map[string]model.Entity
	Conflicts           []Conflict
	LocalToMergedSteps  []transition.Step
	RemoteToMergedSteps []transition.Step
}

// Merge walks the union of entity names across base, local, and remote
// and applies spec.md §4.7's entity- and field-level rules. Local wins on
// any non-conflicting field change — a documented, deterministic choice,
// not a heuristic. On success it also returns the diff-planner step
// lists from local and from remote to the merged model, per §4.7's
// Output; it errors only if the merged, local, or remote entity set fails
// to build a model (e.g. a name collision introduced by the merge).
func Merge(base, local, remote map[string]model.Entity) (Result, error) {
	names := unionKeys(base, local, remote)

	merged := make(map[string]model.Entity, len(names))
	var conflicts []Conflict

	for _, name := range names {
		b, inBase := base[name]
		l, inLocal := local[name]
		r, inRemote := remote[name]

		switch {
		case !inBase && inLocal && inRemote:
			if l.Table != "" && r.Table != "" && l.Table != r.Table {
				conflicts = append(conflicts, Conflict{
					Kind:   AmbiguousChange,
					Entity: name,
					Detail: "both sides introduced the entity with different table names",
				})
				continue
			}
			me, fieldConflicts := mergeFields(name, model.Entity{}, l, r, false, false)
			conflicts = append(conflicts, fieldConflicts...)
			if len(fieldConflicts) == 0 {
				merged[name] = me
			}

		case !inBase && inLocal && !inRemote:
			merged[name] = l
		case !inBase && !inLocal && inRemote:
			merged[name] = r

		case inBase && !inLocal && inRemote:
			if !entityEqual(b, r) {
				conflicts = append(conflicts, Conflict{Kind: EntityRemovedButUsed, Entity: name, Detail: "removed locally, modified remotely"})
				continue
			}
			// Remote made no real change beyond base; local's removal wins.
		case inBase && inLocal && !inRemote:
			if !entityEqual(b, l) {
				conflicts = append(conflicts, Conflict{Kind: EntityRemovedButUsed, Entity: name, Detail: "removed remotely, modified locally"})
				continue
			}
			// Local made no real change beyond base; remote's removal wins.

		case inBase && inLocal && inRemote:
			me, fieldConflicts := mergeFields(name, b, l, r, true, true)
			conflicts = append(conflicts, fieldConflicts...)
			if len(fieldConflicts) == 0 {
				merged[name] = me
			}

		case inBase && !inLocal && !inRemote:
			// Removed on both sides; nothing to merge.
		}
	}

	if len(conflicts) > 0 {
		return Result{Conflicts: conflicts}, nil
	}

	localSteps, remoteSteps, err := synthesizeMergeSteps(local, remote, merged)
	if err != nil {
		return Result{}, err
	}
	return Result{Merged: merged, LocalToMergedSteps: localSteps, RemoteToMergedSteps: remoteSteps}, nil
}

// synthesizeMergeSteps builds the local→merged and remote→merged step
// lists spec.md §4.7 requires the caller to turn into transitions.
func synthesizeMergeSteps(local, remote, merged map[string]model.Entity) (localSteps, remoteSteps []transition.Step, err error) {
	mergedModel, err := model.BuildModel(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("merge: build model of merged entities: %w", err)
	}
	localModel, err := model.BuildModel(local)
	if err != nil {
		return nil, nil, fmt.Errorf("merge: build model of local entities: %w", err)
	}
	remoteModel, err := model.BuildModel(remote)
	if err != nil {
		return nil, nil, fmt.Errorf("merge: build model of remote entities: %w", err)
	}
	localSteps = diffplan.Plan(diffplan.Diff(localModel, mergedModel))
	remoteSteps = diffplan.Plan(diffplan.Diff(remoteModel, mergedModel))
	return localSteps, remoteSteps, nil
}

func unionKeys(maps ...map[string]model.Entity) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func entityEqual(a, b model.Entity) bool {
	return reflect.DeepEqual(a, b)
}
