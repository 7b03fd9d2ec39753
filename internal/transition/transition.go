// Package transition implements the transition store and DAG cache (C3):
// immutable directed edges between snapshot hashes, each carrying the
// ordered step sequence that realizes the change, plus an append-only
// graph cache for path finding.
package transition

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Metadata carries informational facts about a transition.
type Metadata struct {
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// Transition is an immutable directed edge in the schema graph: applying
// Steps in order against the model identified by FromHash produces the
// model identified by ToHash. Hash covers fromHash, toHash, and the full
// ordered step sequence, so two distinct step sequences between the same
// pair of snapshots are two distinct transitions and two distinct edges.
type Transition struct {
	Hash     string   `json:"hash"`
	FromHash string   `json:"fromHash"`
	ToHash   string   `json:"toHash"`
	Steps    []Step   `json:"steps"`
	Metadata Metadata `json:"metadata"`
}

// canonical is the deterministic encoding hashed to produce Transition.Hash.
type canonical struct {
	FromHash string `json:"fromHash"`
	ToHash   string `json:"toHash"`
	Steps    []Step `json:"steps"`
}

// ComputeHash returns SHA-256(canonical(fromHash, toHash, steps)).
func ComputeHash(fromHash, toHash string, steps []Step) (string, error) {
	data, err := json.Marshal(canonical{FromHash: fromHash, ToHash: toHash, Steps: steps})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// New builds a Transition with its hash computed from fromHash, toHash,
// and steps.
func New(fromHash, toHash string, steps []Step, meta Metadata) (Transition, error) {
	hash, err := ComputeHash(fromHash, toHash, steps)
	if err != nil {
		return Transition{}, err
	}
	return Transition{
		Hash:     hash,
		FromHash: fromHash,
		ToHash:   toHash,
		Steps:    steps,
		Metadata: meta,
	}, nil
}
