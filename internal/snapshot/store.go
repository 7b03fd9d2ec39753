package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/betagors/yama/internal/model"
	"github.com/betagors/yama/internal/yamaerr"
)

// Clock produces ISO-8601 timestamps; injectable per spec.md §6.4 so tests
// can pin deterministic output.
type Clock interface {
	Now() string
}

// FileStore persists snapshots under a project's .yama/snapshots
// directory: one blob per hash plus an append-indexed manifest.json for
// enumeration. The manifest is a hint; RebuildManifest recovers it from the
// blobs directory alone, which is always authoritative.
type FileStore struct {
	dir string

	mu       sync.Mutex
	manifest []ManifestEntry
	loaded   bool
}

// NewFileStore returns a FileStore rooted at dir (typically
// "<project>/.yama/snapshots").
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) blobPath(hash string) string {
	return filepath.Join(s.dir, hash+".json")
}

func (s *FileStore) manifestPath() string {
	return filepath.Join(s.dir, "manifest.json")
}

func (s *FileStore) lockPath() string {
	return filepath.Join(s.dir, "manifest.lock")
}

// Save persists a snapshot, verifying the content-addressing invariant
// (Hash must equal model.BuildModel(Entities).Hash) and upserting the
// manifest. Save is idempotent: saving an existing hash is a no-op beyond
// confirming membership.
func (s *FileStore) Save(snap Snapshot) error {
	m, err := model.BuildModel(snap.Entities)
	if err != nil {
		return fmt.Errorf("snapshot: resolving model for hash verification: %w", err)
	}
	if m.Hash != snap.Hash {
		return &yamaerr.ValidationError{
			Entity:  "snapshot",
			Name:    snap.Hash,
			Message: fmt.Sprintf("declared hash %s does not match resolved model hash %s", snap.Hash, m.Hash),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: creating store directory: %w", err)
	}

	exists, err := s.blobExists(snap.Hash)
	if err != nil {
		return err
	}
	if !exists {
		if err := writeAtomic(s.blobPath(snap.Hash), snap); err != nil {
			return fmt.Errorf("snapshot: writing blob: %w", err)
		}
	}

	return s.withManifestLock(func() error {
		if err := s.loadManifestLocked(); err != nil {
			return err
		}
		s.upsertManifestLocked(ManifestEntry{Hash: snap.Hash, ParentHash: snap.ParentHash, Metadata: snap.Metadata})
		return s.writeManifestLocked()
	})
}

// Load reads a snapshot by its full hash. Readers tolerate a blob that
// exists without a manifest entry by going straight to the blob file.
func (s *FileStore) Load(hash string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, &yamaerr.NotFoundError{Kind: "snapshot", ID: hash}
		}
		return Snapshot{}, fmt.Errorf("snapshot: reading blob: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decoding blob: %w", err)
	}
	return snap, nil
}

// Exists is a pure membership test against the blob directory.
func (s *FileStore) Exists(hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobExists(hash)
}

func (s *FileStore) blobExists(hash string) (bool, error) {
	_, err := os.Stat(s.blobPath(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("snapshot: statting blob: %w", err)
}

// FindResult is the outcome of resolving a (possibly partial) hash
// prefix: either exactly one match (Hash populated), no matches, or an
// ambiguous set of Candidates.
type FindResult struct {
	Hash       string
	Candidates []string
}

// Find resolves an unambiguous hash prefix to its full hash. An ambiguous
// prefix returns every candidate in FindResult.Candidates without an
// error, so the caller can present the choice; a prefix matching nothing
// returns a NotFoundError.
func (s *FileStore) Find(prefix string) (FindResult, error) {
	all, err := s.list()
	if err != nil {
		return FindResult{}, err
	}

	var matches []string
	for _, hash := range all {
		if strings.HasPrefix(hash, prefix) {
			matches = append(matches, hash)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return FindResult{}, &yamaerr.NotFoundError{Kind: "snapshot", ID: prefix}
	case 1:
		return FindResult{Hash: matches[0]}, nil
	default:
		return FindResult{Candidates: matches}, nil
	}
}

// Delete removes a snapshot's blob and manifest entry. Callers must
// verify no transition references the hash before calling Delete; the
// store itself enforces no such invariant (that is the transition
// store's job, which knows about edges).
func (s *FileStore) Delete(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.blobPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: removing blob: %w", err)
	}

	return s.withManifestLock(func() error {
		if err := s.loadManifestLocked(); err != nil {
			return err
		}
		out := s.manifest[:0:0]
		for _, e := range s.manifest {
			if e.Hash != hash {
				out = append(out, e)
			}
		}
		s.manifest = out
		return s.writeManifestLocked()
	})
}

// List returns every manifest entry, sorted by hash.
func (s *FileStore) List() ([]ManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadManifestLocked(); err != nil {
		return nil, err
	}
	out := make([]ManifestEntry, len(s.manifest))
	copy(out, s.manifest)
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

// list returns every blob hash found on disk, independent of the
// manifest — the recovery path when the manifest is lost or corrupted.
func (s *FileStore) list() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: listing store directory: %w", err)
	}

	var hashes []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || name == "manifest.json" {
			continue
		}
		hashes = append(hashes, strings.TrimSuffix(name, ".json"))
	}
	return hashes, nil
}

// RebuildManifest regenerates manifest.json purely from the blobs
// directory, discarding whatever manifest state existed before. This is
// the documented recovery path when the manifest is lost or corrupted
// (spec.md §4.2).
func (s *FileStore) RebuildManifest() error {
	hashes, err := s.list()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rebuilt := make([]ManifestEntry, 0, len(hashes))
	for _, hash := range hashes {
		data, err := os.ReadFile(s.blobPath(hash))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		rebuilt = append(rebuilt, ManifestEntry{Hash: snap.Hash, ParentHash: snap.ParentHash, Metadata: snap.Metadata})
	}
	sort.Slice(rebuilt, func(i, j int) bool { return rebuilt[i].Hash < rebuilt[j].Hash })

	s.manifest = rebuilt
	s.loaded = true
	return s.writeManifestLocked()
}

func (s *FileStore) loadManifestLocked() error {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.manifest = nil
			s.loaded = true
			return nil
		}
		return fmt.Errorf("snapshot: reading manifest: %w", err)
	}

	var entries []ManifestEntry
	// A corrupted manifest defaults to empty rather than surfacing a
	// parse error to the caller; RebuildManifest is the recovery path.
	if err := json.Unmarshal(data, &entries); err != nil {
		s.manifest = nil
		s.loaded = true
		return nil
	}
	s.manifest = entries
	s.loaded = true
	return nil
}

func (s *FileStore) upsertManifestLocked(e ManifestEntry) {
	for i, existing := range s.manifest {
		if existing.Hash == e.Hash {
			s.manifest[i] = e
			return
		}
	}
	s.manifest = append(s.manifest, e)
}

func (s *FileStore) writeManifestLocked() error {
	return writeAtomic(s.manifestPath(), s.manifest)
}

// withManifestLock serializes manifest writes across processes using a
// short-lived lock file, per spec.md §5's shared-resource policy.
func (s *FileStore) withManifestLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: creating store directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	for err != nil && os.IsExist(err) {
		lock, err = os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return fmt.Errorf("snapshot: acquiring manifest lock: %w", err)
	}
	defer func() {
		_ = lock.Close()
		_ = os.Remove(s.lockPath())
	}()

	return fn()
}

// writeAtomic marshals v and writes it to path via a temp file followed
// by os.Rename, so readers never observe a partially written blob.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
