package collateral

import (
	"fmt"
	"time"
)

// DataSnapshotStatus is the lifecycle state of a data snapshot.
type DataSnapshotStatus string

const (
	DataSnapshotActive  DataSnapshotStatus = "active"
	DataSnapshotExpired DataSnapshotStatus = "expired"
)

// DefaultDataSnapshotRetention is how long a data snapshot's physical
// copy table survives before a retention sweep drops it, absent an
// explicit override.
const DefaultDataSnapshotRetention = 30 * 24 * time.Hour

// DataSnapshot is the descriptor for a physical table copy made ahead of
// a drop_table, so the data stays queryable in the same database until a
// retention sweep removes it.
type DataSnapshot struct {
	Table           string             `json:"table"`
	CopyTable       string             `json:"copyTable"`
	Snapshot        string             `json:"snapshot"`
	CreatedAt       string             `json:"createdAt"`
	ExpiresAt       string             `json:"expiresAt"`
	RetentionPolicy string             `json:"retentionPolicy"`
	Status          DataSnapshotStatus `json:"status"`
}

// DataSnapshotTableName derives the physical copy table name for table,
// per spec.md §4.8: `{table}_before_{snapshotPrefix}`.
func DataSnapshotTableName(table, snapshotPrefix string) string {
	return fmt.Sprintf("%s_before_%s", table, snapshotPrefix)
}

// NewDataSnapshot builds a DataSnapshot record active from createdAt,
// expiring after retention (DefaultDataSnapshotRetention when
// retention <= 0).
func NewDataSnapshot(table, snapshot, snapshotPrefix, createdAt string, retention time.Duration) (DataSnapshot, error) {
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return DataSnapshot{}, fmt.Errorf("collateral: invalid createdAt %q: %w", createdAt, err)
	}
	if retention <= 0 {
		retention = DefaultDataSnapshotRetention
	}
	return DataSnapshot{
		Table:           table,
		CopyTable:       DataSnapshotTableName(table, snapshotPrefix),
		Snapshot:        snapshot,
		CreatedAt:       createdAt,
		ExpiresAt:       created.Add(retention).UTC().Format(time.RFC3339),
		RetentionPolicy: "30d",
		Status:          DataSnapshotActive,
	}, nil
}

// IsExpired reports whether d's retention window has elapsed as of now.
// A non-active snapshot (already expired) is never re-expired.
func (d DataSnapshot) IsExpired(now time.Time) bool {
	if d.Status != DataSnapshotActive {
		return false
	}
	expires, err := time.Parse(time.RFC3339, d.ExpiresAt)
	if err != nil {
		return false
	}
	return !now.Before(expires)
}
