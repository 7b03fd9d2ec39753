package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betagors/yama/internal/transition"
)

func TestClassifyStepTable(t *testing.T) {
	cases := []struct {
		name string
		step transition.Step
		want SafetyLevel
	}{
		{"add_table", transition.Step{Kind: transition.AddTable}, Safe},
		{"add_column nullable", transition.Step{Kind: transition.AddColumn, ColDef: &transition.ColumnDef{Nullable: true}}, Safe},
		{"add_column non-null no default", transition.Step{Kind: transition.AddColumn, ColDef: &transition.ColumnDef{Nullable: false}}, RequiresReview},
		{"add_index", transition.Step{Kind: transition.AddIndex}, Safe},
		{"add_foreign_key", transition.Step{Kind: transition.AddForeignKey}, RequiresReview},
		{"modify_column", transition.Step{Kind: transition.ModifyColumn}, RequiresReview},
		{"rename_column", transition.Step{Kind: transition.RenameColumn}, RequiresReview},
		{"drop_index", transition.Step{Kind: transition.DropIndex}, Safe},
		{"drop_foreign_key", transition.Step{Kind: transition.DropForeignKey}, Safe},
		{"drop_column", transition.Step{Kind: transition.DropColumn}, Dangerous},
		{"drop_table", transition.Step{Kind: transition.DropTable}, Dangerous},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyStep(tc.step)
			assert.Equal(t, tc.want, got.Level)
		})
	}
}

func TestClassifyPlanTakesMaxOverSteps(t *testing.T) {
	steps := []transition.Step{
		{Kind: transition.AddTable},
		{Kind: transition.DropColumn},
		{Kind: transition.AddIndex},
	}
	level, classifications := ClassifyPlan(steps)
	assert.Equal(t, Dangerous, level)
	assert.Len(t, classifications, 3)
}

func TestSafetyLevelOrdering(t *testing.T) {
	assert.True(t, Safe < RequiresReview)
	assert.True(t, RequiresReview < Unsafe)
	assert.True(t, Unsafe < Dangerous)
}
