// Package snapshot implements the content-addressed snapshot store (C2):
// immutable records of a declared schema state, persisted under
// .yama/snapshots and indexed by an append-only manifest.
package snapshot

import "github.com/betagors/yama/internal/model"

// Metadata carries informational, non-structural facts about a snapshot.
type Metadata struct {
	CreatedAt   string `json:"createdAt"`
	CreatedBy   string `json:"createdBy,omitempty"`
	Description string `json:"description,omitempty"`
}

// Snapshot is an immutable, content-addressed record of a schema state.
// Hash is always model.BuildModel(Entities).Hash; ParentHash is
// informational only, never structural (it does not participate in the
// DAG — transitions do).
type Snapshot struct {
	Hash       string                    `json:"hash"`
	ParentHash string                    `json:"parentHash,omitempty"`
	Entities   map[string]model.Entity   `json:"entities"`
	Metadata   Metadata                  `json:"metadata"`
}

// ManifestEntry is the enumerable, lightweight projection of a Snapshot
// kept in manifest.json for fast listing without loading every blob.
type ManifestEntry struct {
	Hash       string   `json:"hash"`
	ParentHash string   `json:"parentHash,omitempty"`
	Metadata   Metadata `json:"metadata"`
}
