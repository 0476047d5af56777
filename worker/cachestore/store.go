// Package cachestore is a durable, content-addressed store for
// downloaded card images. Keys are derived from the source URL, blobs
// live as plain files under the cache directory, and entry metadata is
// kept in a single index file rewritten atomically on mutation.
//
// Staleness policy: entries are never revalidated proactively. An
// entry is superseded when a re-fetch produces a different content
// hash, dropped by Invalidate, or swept by Cleanup based on last
// access time.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCacheWrite marks a disk-write failure. Callers holding freshly
// downloaded bytes must treat it as "not cached" rather than losing
// the bytes.
var ErrCacheWrite = errors.New("cache write failed")

// ErrMiss is returned by Read for keys with no active entry.
var ErrMiss = errors.New("cache miss")

type Status string

const (
	StatusActive Status = "active"
	StatusStale  Status = "stale"
)

// Entry describes one cached image.
type Entry struct {
	Key         string    `json:"key"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	FetchedAt   time.Time `json:"fetched_at"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount int64     `json:"access_count"`
	Status      Status    `json:"status"`
}

// Key derives the cache key for a source URL. Identical URLs always
// produce identical keys, across processes.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// HashContent returns the content hash recorded for a blob.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

const indexFile = "index.json"

// Store is safe for concurrent lookups and puts.
type Store struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// Open loads (or creates) a cache rooted at dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		logger:  logger,
		entries: make(map[string]*Entry),
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh cache.
	case err != nil:
		return nil, fmt.Errorf("read cache index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.entries); err != nil {
			// A corrupt index loses metadata, not blobs. Start over
			// rather than refusing to export.
			logger.Warn("Cache index unreadable, resetting", zap.Error(err))
			s.entries = make(map[string]*Entry)
		}
	}

	return s, nil
}

// Lookup reports whether key has an active entry, bumping its access
// metadata on hit. It never touches the network.
func (s *Store) Lookup(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.Status != StatusActive {
		return Entry{}, false
	}
	if _, err := os.Stat(s.blobPath(key)); err != nil {
		// Blob vanished out from under the index.
		delete(s.entries, key)
		s.persistLocked()
		return Entry{}, false
	}

	e.LastAccess = time.Now().UTC()
	e.AccessCount++
	s.persistLocked()
	return *e, true
}

// Read returns the cached bytes for key.
func (s *Store) Read(key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	if !ok || e.Status != StatusActive {
		s.mu.RUnlock()
		return nil, ErrMiss
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.blobPath(key))
	if err != nil {
		return nil, fmt.Errorf("read cached blob %s: %w", key, err)
	}
	return data, nil
}

// Put stores data under key. A repeat put with the same content hash
// refreshes metadata only; a put with a different hash supersedes the
// prior entry, and subsequent lookups return the new one.
func (s *Store) Put(key string, data []byte, contentHash string) (Entry, error) {
	if contentHash == "" {
		contentHash = HashContent(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if e, ok := s.entries[key]; ok && e.Status == StatusActive && e.ContentHash == contentHash {
		e.LastAccess = now
		e.AccessCount++
		s.persistLocked()
		return *e, nil
	}

	if err := s.writeBlob(key, data); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}

	e := &Entry{
		Key:         key,
		ContentHash: contentHash,
		Size:        int64(len(data)),
		FetchedAt:   now,
		LastAccess:  now,
		AccessCount: 1,
		Status:      StatusActive,
	}
	s.entries[key] = e
	if err := s.persistLocked(); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	return *e, nil
}

// Invalidate marks an entry stale; lookups miss until the next Put.
func (s *Store) Invalidate(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	e.Status = StatusStale
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	return nil
}

// Stats returns the number of active entries and their total size.
func (s *Store) Stats() (count int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Status == StatusActive {
			count++
			bytes += e.Size
		}
	}
	return count, bytes
}

// Cleanup removes entries (and their blobs) not accessed within
// maxAge, plus anything already marked stale.
func (s *Store) Cleanup(maxAge time.Duration) (removed int, freed int64) {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.Status == StatusActive && e.LastAccess.After(cutoff) {
			continue
		}
		if err := os.Remove(s.blobPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove cached blob",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		delete(s.entries, key)
		removed++
		freed += e.Size
	}
	s.persistLocked()
	return removed, freed
}

func (s *Store) blobPath(key string) string {
	return filepath.Join(s.dir, "blobs", key[:2], key)
}

// writeBlob writes via temp file and rename so a concurrent reader
// never observes a partially-written blob.
func (s *Store) writeBlob(key string, data []byte) error {
	path := s.blobPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".index-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, indexFile)); err != nil {
		return err
	}
	return nil
}
