package lbledit

// Per-image annotation persistence: one JSON file per image key, fronted by
// an in-memory cache.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPersistence wraps I/O failures against the backing annotation files.
var ErrPersistence = errors.New("annotation persistence failure")

// KeyPath maps an image key to the file that persists its annotations.
type KeyPath func(key string) string

// DirKeyPath persists each key as <dir>/<key>.json.
func DirKeyPath(dir string) KeyPath {
	return func(key string) string {
		return filepath.Join(dir, key+".json")
	}
}

// Store is the authoritative holder of annotation sets, keyed by image
// identity. Writes go through to the backing file; reads are served from the
// cache once a key has been loaded.
//
// A Store is not safe for concurrent use.
type Store struct {
	keyPath KeyPath
	cache   map[string]AnnotationSet
}

// NewStore creates a store that persists through the given key mapping.
func NewStore(keyPath KeyPath) *Store {
	return &Store{
		keyPath: keyPath,
		cache:   make(map[string]AnnotationSet),
	}
}

// Get returns the annotation set for key.
//
// A key with no cached and no persisted annotations yields an empty set, not
// an error. The returned set is a copy and may be modified freely.
func (s *Store) Get(key string) (AnnotationSet, error) {
	if set, ok := s.cache[key]; ok {
		return set.Clone(), nil
	}

	set, err := s.load(key)
	if err != nil {
		return nil, err
	}
	s.cache[key] = set

	return set.Clone(), nil
}

// Save persists set as the annotations for key and updates the cache.
//
// Saving an empty set is a no-op: the persisted file and the cache are left
// untouched. Use Clear to remove a previously saved set.
func (s *Store) Save(key string, set AnnotationSet) error {
	if len(set) == 0 {
		return nil
	}
	return s.write(key, set)
}

// Replace installs snapshot as the annotation set for key. This is the write
// path for command execution and undo/redo: a non-empty snapshot persists
// like Save, while an empty snapshot clears the key, so that undone additions
// disappear from disk as well as from memory.
func (s *Store) Replace(key string, snapshot AnnotationSet) error {
	if len(snapshot) == 0 {
		return s.Clear(key)
	}
	return s.write(key, snapshot)
}

// Clear empties the cached set for key and removes its persisted file. This
// is the only path that deletes a previously saved annotation file.
func (s *Store) Clear(key string) error {
	s.cache[key] = AnnotationSet{}

	path := s.keyPath(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: cannot remove %q: %v", ErrPersistence, path, err)
	}
	return nil
}

// Has reports whether a persisted annotation set exists for key, regardless
// of what is cached.
func (s *Store) Has(key string) bool {
	info, err := os.Stat(s.keyPath(key))
	return err == nil && !info.IsDir()
}

// Stats summarises the annotation state across cached image keys.
type Stats struct {
	Images      int
	Annotations int
	PerClass    map[int64]int // Annotation count per class id.
}

// Statistics reports totals over every key the store has touched.
func (s *Store) Statistics() Stats {
	stats := Stats{
		Images:   len(s.cache),
		PerClass: make(map[int64]int),
	}
	for _, set := range s.cache {
		stats.Annotations += len(set)
		for _, a := range set {
			stats.PerClass[a.ClassID]++
		}
	}

	return stats
}

// load reads the persisted set for key. A missing file is an empty set.
func (s *Store) load(key string) (AnnotationSet, error) {
	path := s.keyPath(key)
	enc, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return AnnotationSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %q: %v", ErrPersistence, path, err)
	}

	var set AnnotationSet
	if err := json.Unmarshal(enc, &set); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %q: %v", ErrPersistence, path, err)
	}

	// The persisted format has no identity field; loaded annotations receive
	// fresh identities.
	set.assignIDs()

	return set, nil
}

// write persists a non-empty set and updates the cache.
func (s *Store) write(key string, set AnnotationSet) error {
	enc, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode the set for %q: %v", ErrPersistence, key, err)
	}

	path := s.keyPath(key)
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("%w: cannot write %q: %v", ErrPersistence, path, err)
	}

	c := set.Clone()
	c.assignIDs()
	s.cache[key] = c

	return nil
}
