package merge

import "github.com/betagors/yama/internal/model"

// mergeFields merges base/local/remote field sets for one entity, per
// spec.md §4.7's per-field rules. hasBase/hasRemote-adjacent semantics
// don't change the rule table; when an entity is new on both sides (no
// base), base is passed as the zero value and every field is treated as
// "added on both sides" rather than "modified from base".
func mergeFields(entityName string, base, local, remote model.Entity, _, _ bool) (model.Entity, []Conflict) {
	merged := model.NewEntity()
	merged.Table = pickTable(base, local, remote)

	names := unionFieldNames(base, local, remote)
	var conflicts []Conflict

	for _, name := range names {
		bf, inBase := base.Fields[name]
		lf, inLocal := local.Fields[name]
		rf, inRemote := remote.Fields[name]

		switch {
		case !inBase && inLocal && !inRemote:
			merged.SetField(name, lf)
		case !inBase && !inLocal && inRemote:
			merged.SetField(name, rf)
		case !inBase && inLocal && inRemote:
			mf, conflict := mergeFieldPair(entityName, name, model.FieldDescriptor{}, lf, rf, false)
			if conflict != nil {
				conflicts = append(conflicts, *conflict)
				continue
			}
			merged.SetField(name, mf)

		case inBase && !inLocal && inRemote:
			if !fieldEqual(bf, rf) {
				conflicts = append(conflicts, Conflict{Kind: FieldRemovedButUsed, Entity: entityName, Field: name, Detail: "removed locally, modified remotely"})
				continue
			}
			// remote made no real change; local's removal wins.
		case inBase && inLocal && !inRemote:
			if !fieldEqual(bf, lf) {
				conflicts = append(conflicts, Conflict{Kind: FieldRemovedButUsed, Entity: entityName, Field: name, Detail: "removed remotely, modified locally"})
				continue
			}
			// local made no real change; remote's removal wins.

		case inBase && inLocal && inRemote:
			mf, conflict := mergeFieldPair(entityName, name, bf, lf, rf, true)
			if conflict != nil {
				conflicts = append(conflicts, *conflict)
				continue
			}
			merged.SetField(name, mf)

		case inBase && !inLocal && !inRemote:
			// removed on both sides; nothing to merge.
		}
	}

	merged.Indexes = unionIndexes(local.Indexes, remote.Indexes)
	merged.Relations = unionRelations(local.Relations, remote.Relations)

	return merged, conflicts
}

// mergeFieldPair resolves one field present (by name) on both local and
// remote, relative to base (base may be the zero value when the field has
// no prior history — hasBase distinguishes that case).
func mergeFieldPair(entityName, field string, base, local, remote model.FieldDescriptor, hasBase bool) (model.FieldDescriptor, *Conflict) {
	localChanged := !hasBase || !fieldEqual(base, local)
	remoteChanged := !hasBase || !fieldEqual(base, remote)

	if !localChanged {
		return remote, nil
	}
	if !remoteChanged {
		return local, nil
	}

	if fieldEqual(local, remote) {
		return local, nil
	}

	if local.Type != remote.Type {
		return model.FieldDescriptor{}, &Conflict{
			Kind:   FieldTypeMismatch,
			Entity: entityName,
			Field:  field,
			Detail: "both sides changed the field's type differently",
		}
	}

	if requiredDiffers(local, remote) {
		return model.FieldDescriptor{}, &Conflict{
			Kind:   FieldRequiredMismatch,
			Entity: entityName,
			Field:  field,
			Detail: "both sides changed required/nullable differently",
		}
	}

	// Non-conflicting divergence: local wins, deterministically.
	return local, nil
}

func requiredDiffers(local, remote model.FieldDescriptor) bool {
	if local.RequiredIsSet() != remote.RequiredIsSet() {
		return true
	}
	if local.RequiredIsSet() && local.Required != remote.Required {
		return true
	}
	ln := local.Nullable != nil && *local.Nullable
	rn := remote.Nullable != nil && *remote.Nullable
	lnSet := local.Nullable != nil
	rnSet := remote.Nullable != nil
	if lnSet != rnSet {
		return true
	}
	return lnSet && ln != rn
}

func fieldEqual(a, b model.FieldDescriptor) bool {
	if a.Type != b.Type || a.NamedType != b.NamedType || a.MaxLength != b.MaxLength {
		return false
	}
	if a.Column != b.Column || a.DBType != b.DBType {
		return false
	}
	if a.PrimaryKey != b.PrimaryKey || a.Unique != b.Unique || a.Index != b.Index || a.Generated != b.Generated {
		return false
	}
	if a.References != b.References {
		return false
	}
	if requiredDiffers(a, b) {
		return false
	}
	return a.Default == b.Default
}

func pickTable(base, local, remote model.Entity) string {
	if local.Table != "" {
		return local.Table
	}
	if remote.Table != "" {
		return remote.Table
	}
	return base.Table
}

func unionFieldNames(entities ...model.Entity) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entities {
		for _, name := range e.FieldOrder {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// unionIndexes merges local and remote index declarations by name; local
// wins on a name collision.
func unionIndexes(local, remote []model.IndexDeclaration) []model.IndexDeclaration {
	byName := make(map[string]model.IndexDeclaration)
	var order []string
	for _, idx := range remote {
		if _, exists := byName[idx.Name]; !exists {
			order = append(order, idx.Name)
		}
		byName[idx.Name] = idx
	}
	for _, idx := range local {
		if _, exists := byName[idx.Name]; !exists {
			order = append(order, idx.Name)
		}
		byName[idx.Name] = idx
	}
	out := make([]model.IndexDeclaration, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// unionRelations merges local and remote relation declarations by name;
// local wins on a name collision.
func unionRelations(local, remote []model.RelationDeclaration) []model.RelationDeclaration {
	byName := make(map[string]model.RelationDeclaration)
	var order []string
	for _, rel := range remote {
		if _, exists := byName[rel.Name]; !exists {
			order = append(order, rel.Name)
		}
		byName[rel.Name] = rel
	}
	for _, rel := range local {
		if _, exists := byName[rel.Name]; !exists {
			order = append(order, rel.Name)
		}
		byName[rel.Name] = rel
	}
	out := make([]model.RelationDeclaration, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}
