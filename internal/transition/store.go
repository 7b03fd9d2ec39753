package transition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/betagors/yama/internal/yamaerr"
)

// ManifestEntry is the lightweight, enumerable projection of a Transition
// kept in manifest.json.
type ManifestEntry struct {
	Hash     string   `json:"hash"`
	FromHash string   `json:"fromHash"`
	ToHash   string   `json:"toHash"`
	Metadata Metadata `json:"metadata"`
}

// FileStore persists transitions under a project's .yama/transitions
// directory, mirroring snapshot.FileStore's blob-plus-manifest layout.
type FileStore struct {
	dir string

	mu       sync.Mutex
	manifest []ManifestEntry
}

// NewFileStore returns a FileStore rooted at dir (typically
// "<project>/.yama/transitions").
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) blobPath(hash string) string  { return filepath.Join(s.dir, hash+".json") }
func (s *FileStore) manifestPath() string         { return filepath.Join(s.dir, "manifest.json") }
func (s *FileStore) lockPath() string             { return filepath.Join(s.dir, "manifest.lock") }

// Save persists a transition, verifying its hash and upserting the
// manifest. Idempotent: saving an existing hash is a no-op beyond
// confirming membership.
func (s *FileStore) Save(t Transition) error {
	want, err := ComputeHash(t.FromHash, t.ToHash, t.Steps)
	if err != nil {
		return fmt.Errorf("transition: computing hash: %w", err)
	}
	if want != t.Hash {
		return &yamaerr.ValidationError{
			Entity:  "transition",
			Name:    t.Hash,
			Message: fmt.Sprintf("declared hash %s does not match recomputed hash %s", t.Hash, want),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("transition: creating store directory: %w", err)
	}

	exists, err := s.blobExistsLocked(t.Hash)
	if err != nil {
		return err
	}
	if !exists {
		if err := writeAtomic(s.blobPath(t.Hash), t); err != nil {
			return fmt.Errorf("transition: writing blob: %w", err)
		}
	}

	return s.withManifestLock(func() error {
		if err := s.loadManifestLocked(); err != nil {
			return err
		}
		s.upsertManifestLocked(ManifestEntry{Hash: t.Hash, FromHash: t.FromHash, ToHash: t.ToHash, Metadata: t.Metadata})
		return s.writeManifestLocked()
	})
}

// Load reads a transition by its full hash.
func (s *FileStore) Load(hash string) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return Transition{}, &yamaerr.NotFoundError{Kind: "transition", ID: hash}
		}
		return Transition{}, fmt.Errorf("transition: reading blob: %w", err)
	}

	var t Transition
	if err := json.Unmarshal(data, &t); err != nil {
		return Transition{}, fmt.Errorf("transition: decoding blob: %w", err)
	}
	return t, nil
}

func (s *FileStore) blobExistsLocked(hash string) (bool, error) {
	_, err := os.Stat(s.blobPath(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("transition: statting blob: %w", err)
}

// Delete removes a transition's blob and manifest entry. Callers are
// responsible for checking the transition is not load-bearing in the
// graph cache before deleting; FileStore enforces no such invariant.
func (s *FileStore) Delete(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.blobPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transition: removing blob: %w", err)
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
// manifest.
func (s *FileStore) list() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("transition: listing store directory: %w", err)
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
// directory, in hash order. The graph cache is derived from this store
// alone (BuildGraph reads only the transition manifest and blobs), so a
// snapshot that no transition touches is not a node of it.
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
		var t Transition
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		rebuilt = append(rebuilt, ManifestEntry{Hash: t.Hash, FromHash: t.FromHash, ToHash: t.ToHash, Metadata: t.Metadata})
	}
	sort.Slice(rebuilt, func(i, j int) bool { return rebuilt[i].Hash < rebuilt[j].Hash })

	s.manifest = rebuilt
	return s.writeManifestLocked()
}

func (s *FileStore) loadManifestLocked() error {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.manifest = nil
			return nil
		}
		return fmt.Errorf("transition: reading manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.manifest = nil
		return nil
	}
	s.manifest = entries
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

func (s *FileStore) withManifestLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("transition: creating store directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	for err != nil && os.IsExist(err) {
		lock, err = os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return fmt.Errorf("transition: acquiring manifest lock: %w", err)
	}
	defer func() {
		_ = lock.Close()
		_ = os.Remove(s.lockPath())
	}()

	return fn()
}

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
