// Package output formats plan and status payloads for human consumption.
// It mirrors the teacher's compact summary-payload idiom: counts first,
// details indented underneath, never raw struct dumps.
package output

import (
	"fmt"
	"strings"

	"github.com/betagors/yama/internal/environment"
	"github.com/betagors/yama/internal/safety"
	"github.com/betagors/yama/internal/transition"
)

// FormatGraphStats renders a transition.Graph.Stats summary.
//
// Example output:
//
//	Graph Summary
//	=============
//	Nodes: 4, Edges: 5, Roots: 1, Leaves: 1
//	Total steps across all transitions: 12
//	Busiest node fans out to: 3
func FormatGraphStats(s transition.Stats) string {
	var sb strings.Builder
	sb.WriteString("Graph Summary\n")
	sb.WriteString("=============\n")
	fmt.Fprintf(&sb, "Nodes: %d, Edges: %d, Roots: %d, Leaves: %d\n", s.NodeCount, s.EdgeCount, s.RootCount, s.LeafCount)
	fmt.Fprintf(&sb, "Total steps across all transitions: %d\n", s.TotalStepCount)
	fmt.Fprintf(&sb, "Busiest node fans out to: %d\n", s.MaxFanOut)
	return sb.String()
}

// FormatEnvironmentState renders a single environment's current pointer.
func FormatEnvironmentState(st environment.State) string {
	if st.CurrentSnapshot == "" {
		return fmt.Sprintf("%s: no schema installed yet\n", st.Environment)
	}
	return fmt.Sprintf("%s: %s (updated %s)\n", st.Environment, st.CurrentSnapshot, st.UpdatedAt)
}

// FormatPlan renders a transition path plus its safety classification as
// a compact plan summary, the same shape as the teacher's migration
// summary: statement counts up top, breaking/unresolved details below.
//
// Example output:
//
//	Plan Summary
//	============
//	Hops: 2, Steps: 5
//	Safety: requires_review
//
//	Warnings: 2
//	   - test on staging
//	   - create backup
func FormatPlan(path transition.Path, classifications []safety.Classification, level safety.SafetyLevel, policy safety.PolicyResult) string {
	var sb strings.Builder
	sb.WriteString("Plan Summary\n")
	sb.WriteString("============\n")
	fmt.Fprintf(&sb, "Hops: %d, Steps: %d\n", len(path.TransitionSequence), path.TotalStepCount)
	fmt.Fprintf(&sb, "Safety: %s\n", level)

	if policy.Blocked {
		sb.WriteString("\nBLOCKED by environment policy\n")
	}

	if n := countAtOrAbove(classifications, safety.Unsafe); n > 0 {
		fmt.Fprintf(&sb, "\nUnsafe or worse steps: %d\n", n)
		for _, c := range classifications {
			if c.Level >= safety.Unsafe {
				fmt.Fprintf(&sb, "   - %s.%s: %s\n", c.Step.Table, c.Step.Column, c.Rationale)
			}
		}
	}

	if len(policy.Warnings) > 0 {
		fmt.Fprintf(&sb, "\nWarnings: %d\n", len(policy.Warnings))
		for _, w := range policy.Warnings {
			fmt.Fprintf(&sb, "   - %s\n", w)
		}
	}

	return sb.String()
}

func countAtOrAbove(cs []safety.Classification, level safety.SafetyLevel) int {
	n := 0
	for _, c := range cs {
		if c.Level >= level {
			n++
		}
	}
	return n
}
