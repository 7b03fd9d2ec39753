// Package collateral implements safety collateral (C8): shadow columns,
// data-copy snapshots, backups, and the audit log that together let
// destructive operations stay reversible or at least observable, per
// spec.md §4.8.
package collateral

import (
	"fmt"
	"time"
)

// ShadowStatus is the lifecycle state of a shadow column.
type ShadowStatus string

const (
	ShadowActive   ShadowStatus = "active"
	ShadowRestored ShadowStatus = "restored"
	ShadowExpired  ShadowStatus = "expired"
)

// DefaultShadowRetention is how long a shadow column survives before a
// retention sweep expires it, absent an explicit override.
const DefaultShadowRetention = 30 * 24 * time.Hour

// ShadowColumn records a renamed-aside column standing in for a
// drop_column the target database can defer physically deleting.
type ShadowColumn struct {
	Table        string       `json:"table"`
	Column       string       `json:"column"`
	OriginalName string       `json:"originalName"`
	Snapshot     string       `json:"snapshot"`
	CreatedAt    string       `json:"createdAt"`
	ExpiresAt    string       `json:"expiresAt"`
	Status       ShadowStatus `json:"status"`
}

// ShadowName derives the physical column name a shadowed drop_column
// renames to: `_shadow_{originalName}_{snapshotPrefix}_{timestamp}`.
// snapshotPrefix is the short form of a content hash (see
// snapshot.FileStore.Find's prefix semantics); timestamp is a compact,
// filesystem- and identifier-safe stamp (RFC3339 with separators
// stripped).
func ShadowName(originalName, snapshotPrefix, timestamp string) string {
	return fmt.Sprintf("_shadow_%s_%s_%s", originalName, snapshotPrefix, compactTimestamp(timestamp))
}

func compactTimestamp(ts string) string {
	out := make([]byte, 0, len(ts))
	for _, r := range ts {
		switch r {
		case '-', ':', '.', '+':
			continue
		default:
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// NewShadowColumn builds a ShadowColumn record active from createdAt,
// expiring after retention (DefaultShadowRetention when retention <= 0).
func NewShadowColumn(table, originalName, snapshot, snapshotPrefix, createdAt string, retention time.Duration) (ShadowColumn, error) {
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return ShadowColumn{}, fmt.Errorf("collateral: invalid createdAt %q: %w", createdAt, err)
	}
	if retention <= 0 {
		retention = DefaultShadowRetention
	}
	return ShadowColumn{
		Table:        table,
		Column:       ShadowName(originalName, snapshotPrefix, createdAt),
		OriginalName: originalName,
		Snapshot:     snapshot,
		CreatedAt:    createdAt,
		ExpiresAt:    created.Add(retention).UTC().Format(time.RFC3339),
		Status:       ShadowActive,
	}, nil
}

// IsExpired reports whether s's retention window has elapsed as of now.
// A non-active shadow (already restored or expired) is never re-expired.
func (s ShadowColumn) IsExpired(now time.Time) bool {
	if s.Status != ShadowActive {
		return false
	}
	expires, err := time.Parse(time.RFC3339, s.ExpiresAt)
	if err != nil {
		return false
	}
	return !now.Before(expires)
}
