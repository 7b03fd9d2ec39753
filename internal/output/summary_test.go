package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betagors/yama/internal/environment"
	"github.com/betagors/yama/internal/safety"
	"github.com/betagors/yama/internal/transition"
)

func TestFormatGraphStats(t *testing.T) {
	s := transition.Stats{NodeCount: 4, EdgeCount: 5, TotalStepCount: 12, MaxFanOut: 3, RootCount: 1, LeafCount: 1}
	out := FormatGraphStats(s)
	assert.Contains(t, out, "Nodes: 4, Edges: 5, Roots: 1, Leaves: 1")
	assert.Contains(t, out, "Total steps across all transitions: 12")
	assert.Contains(t, out, "Busiest node fans out to: 3")
}

func TestFormatEnvironmentStateNotInstalled(t *testing.T) {
	out := FormatEnvironmentState(environment.State{Environment: "staging"})
	assert.Equal(t, "staging: no schema installed yet\n", out)
}

func TestFormatEnvironmentStateInstalled(t *testing.T) {
	out := FormatEnvironmentState(environment.State{Environment: "production", CurrentSnapshot: "abc123", UpdatedAt: "2026-01-01T00:00:00Z"})
	assert.Equal(t, "production: abc123 (updated 2026-01-01T00:00:00Z)\n", out)
}

func TestFormatPlanReportsBlockedAndWarnings(t *testing.T) {
	path := transition.Path{TransitionSequence: []string{"t1", "t2"}, TotalStepCount: 5}
	classifications := []safety.Classification{
		{Step: transitionStep("users", "email"), Level: safety.Unsafe, Rationale: "drops data"},
	}
	policy := safety.PolicyResult{Blocked: true, Warnings: []string{"test on staging", "create backup"}}

	out := FormatPlan(path, classifications, safety.Unsafe, policy)

	assert.True(t, strings.Contains(out, "Hops: 2, Steps: 5"))
	assert.Contains(t, out, "BLOCKED by environment policy")
	assert.Contains(t, out, "users.email: drops data")
	assert.Contains(t, out, "Warnings: 2")
}

func transitionStep(table, column string) transition.Step {
	return transition.Step{Kind: transition.DropColumn, Table: table, Column: column}
}
