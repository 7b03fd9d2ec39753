package safety

import "github.com/betagors/yama/internal/transition"

// DowntimeEstimate is a crude, step-count-derived downtime bucket.
type DowntimeEstimate string

const (
	DowntimeNone     DowntimeEstimate = "0"
	DowntimeUnder10s DowntimeEstimate = "<10s"
	DowntimeUnder30s DowntimeEstimate = "<30s"
	DowntimeUnder1m  DowntimeEstimate = "<1min"
)

// Impact is the derived per-plan impact analysis of spec.md §4.6.
type Impact struct {
	AffectedTables  []string
	Downtime        DowntimeEstimate
	RequiresBackup  bool
	Breaking        bool
	Reversible      bool
}

// AnalyzeImpact derives Impact from a plan's steps. Reversible is always
// true for the core step set: rollback is synthesized from the `from`
// model by diffplan.Rollback, not tracked per-step here.
func AnalyzeImpact(steps []transition.Step) Impact {
	imp := Impact{Reversible: true}

	seen := make(map[string]bool)
	for _, s := range steps {
		if s.Table != "" && !seen[s.Table] {
			seen[s.Table] = true
			imp.AffectedTables = append(imp.AffectedTables, s.Table)
		}

		switch s.Kind {
		case transition.DropColumn, transition.DropTable, transition.ModifyColumn:
			imp.RequiresBackup = true
			imp.Breaking = true
		case transition.AddColumn:
			if s.ColDef != nil && !s.ColDef.Nullable && s.ColDef.Default == nil {
				imp.Breaking = true
			}
		}
	}

	imp.Downtime = downtimeFor(len(steps))
	return imp
}

func downtimeFor(stepCount int) DowntimeEstimate {
	switch {
	case stepCount == 0:
		return DowntimeNone
	case stepCount < 10:
		return DowntimeUnder10s
	case stepCount < 30:
		return DowntimeUnder30s
	default:
		return DowntimeUnder1m
	}
}
