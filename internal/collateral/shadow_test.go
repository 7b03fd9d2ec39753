package collateral

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShadowNameFormat(t *testing.T) {
	name := ShadowName("displayName", "a1b2c3", "2026-07-30T10:00:00Z")
	assert.Equal(t, "_shadow_displayName_a1b2c3_20260730T100000Z", name)
}

func TestNewShadowColumnDefaultsRetentionTo30Days(t *testing.T) {
	s, err := NewShadowColumn("users", "displayName", "snap123", "a1b2c3", "2026-07-30T10:00:00Z", 0)
	require.NoError(t, err)
	assert.Equal(t, ShadowActive, s.Status)
	expires, err := time.Parse(time.RFC3339, s.ExpiresAt)
	require.NoError(t, err)
	created, _ := time.Parse(time.RFC3339, s.CreatedAt)
	assert.Equal(t, DefaultShadowRetention, expires.Sub(created))
}

func TestShadowColumnIsExpired(t *testing.T) {
	s, err := NewShadowColumn("users", "displayName", "snap123", "a1b2c3", "2026-01-01T00:00:00Z", 24*time.Hour)
	require.NoError(t, err)

	assert.False(t, s.IsExpired(mustParseTime(t, "2026-01-01T12:00:00Z")))
	assert.True(t, s.IsExpired(mustParseTime(t, "2026-01-02T00:00:01Z")))
}

func TestShadowColumnRestoredNeverExpires(t *testing.T) {
	s, err := NewShadowColumn("users", "displayName", "snap123", "a1b2c3", "2020-01-01T00:00:00Z", time.Hour)
	require.NoError(t, err)
	s.Status = ShadowRestored

	assert.False(t, s.IsExpired(mustParseTime(t, "2030-01-01T00:00:00Z")))
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}
