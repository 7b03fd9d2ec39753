// Package safety implements the safety classifier (C6): an ordered
// per-step risk scale, environment policy, and impact analysis.
package safety

import "github.com/betagors/yama/internal/transition"

// SafetyLevel is an ordered enum: Safe < RequiresReview < Unsafe <
// Dangerous. The source corpus carries both a numeric ordered form and a
// duplicate string-valued one; this implementation adopts the numeric
// form so comparisons are total (see DESIGN.md's Open Question note).
type SafetyLevel int

const (
	Safe SafetyLevel = iota
	RequiresReview
	Unsafe
	Dangerous
)

func (l SafetyLevel) String() string {
	switch l {
	case Safe:
		return "safe"
	case RequiresReview:
		return "requires_review"
	case Unsafe:
		return "unsafe"
	case Dangerous:
		return "dangerous"
	default:
		return "unknown"
	}
}

// Classification is a step's score plus the carried rationale.
type Classification struct {
	Step      transition.Step
	Level     SafetyLevel
	Rationale string
}

// ClassifyStep scores a single step per spec.md §4.6's classification
// table.
func ClassifyStep(s transition.Step) Classification {
	switch s.Kind {
	case transition.AddTable:
		return Classification{Step: s, Level: Safe, Rationale: "non-breaking"}

	case transition.AddColumn:
		if s.ColDef != nil && !s.ColDef.Nullable && s.ColDef.Default == nil {
			return Classification{Step: s, Level: RequiresReview, Rationale: "needs default or data backfill"}
		}
		return Classification{Step: s, Level: Safe, Rationale: "non-breaking"}

	case transition.AddIndex:
		return Classification{Step: s, Level: Safe, Rationale: "non-breaking; may be long on large tables"}

	case transition.AddForeignKey:
		return Classification{Step: s, Level: RequiresReview, Rationale: "requires referential validation of existing rows"}

	case transition.ModifyColumn:
		return Classification{Step: s, Level: RequiresReview, Rationale: "may require data transformation"}

	case transition.RenameColumn:
		return Classification{Step: s, Level: RequiresReview, Rationale: "may break dependent code"}

	case transition.DropIndex, transition.DropForeignKey:
		return Classification{Step: s, Level: Safe, Rationale: "structural only"}

	case transition.DropColumn:
		return Classification{Step: s, Level: Dangerous, Rationale: "data loss"}

	case transition.DropTable:
		return Classification{Step: s, Level: Dangerous, Rationale: "data loss"}

	default:
		return Classification{Step: s, Level: Unsafe, Rationale: "unrecognized step kind"}
	}
}

// ClassifyPlan scores every step and returns the plan's overall level:
// the maximum over its steps.
func ClassifyPlan(steps []transition.Step) (SafetyLevel, []Classification) {
	classifications := make([]Classification, 0, len(steps))
	level := Safe
	for _, s := range steps {
		c := ClassifyStep(s)
		classifications = append(classifications, c)
		if c.Level > level {
			level = c.Level
		}
	}
	return level, classifications
}
