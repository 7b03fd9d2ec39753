package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFieldDescriptorRequiredSurvivesJSONRoundTrip grounds spec.md §8's
// load(save(S))==S invariant: a field marked explicitly required via
// SetRequired must still report RequiredIsSet()==true after the
// FieldDescriptor is marshaled and unmarshaled, the way a Snapshot is
// persisted and reloaded.
func TestFieldDescriptorRequiredSurvivesJSONRoundTrip(t *testing.T) {
	f := FieldDescriptor{Type: TypeString}
	f.SetRequired(true)

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var reloaded FieldDescriptor
	require.NoError(t, json.Unmarshal(data, &reloaded))

	assert.True(t, reloaded.RequiredIsSet())
	assert.True(t, reloaded.Required)
}

// TestFieldDescriptorUnsetRequiredStaysAmbiguousAfterRoundTrip is the
// converse: a field that never called SetRequired must still report
// RequiredIsSet()==false after round-tripping, not silently become
// "explicitly not required".
func TestFieldDescriptorUnsetRequiredStaysAmbiguousAfterRoundTrip(t *testing.T) {
	f := FieldDescriptor{Type: TypeString}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var reloaded FieldDescriptor
	require.NoError(t, json.Unmarshal(data, &reloaded))

	assert.False(t, reloaded.RequiredIsSet())
}

// TestEntityRequiredFieldSurvivesBuildColumnAfterRoundTrip is the
// end-to-end regression for the bug this guards against: before
// RequiredExplicit was exported, buildColumn resolved a reloaded
// required field as nullable because the explicit-required bit was lost
// on unmarshal.
func TestEntityRequiredFieldSurvivesBuildColumnAfterRoundTrip(t *testing.T) {
	e := NewEntity()
	e.Table = "users"
	f := FieldDescriptor{Type: TypeString, MaxLength: 255}
	f.SetRequired(true)
	e.SetField("email", f)

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var reloaded Entity
	require.NoError(t, json.Unmarshal(data, &reloaded))

	table, err := buildTable("users", reloaded)
	require.NoError(t, err)
	assert.False(t, table.Columns["email"].Nullable)
}
