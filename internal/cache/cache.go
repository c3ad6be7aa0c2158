// Package cache keeps the HTTP validators seen for each feed endpoint so the
// next poll can ask the server whether anything changed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rss-watcher/internal/storage"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusNotModified Status = "not_modified"
	StatusError       Status = "error"
)

// Record is the last fetch outcome for one endpoint.
type Record struct {
	ETag         string
	LastModified string
	FetchedAt    time.Time
	Status       Status
	Error        string
	// LastSuccess is when the endpoint last answered with content or a 304.
	LastSuccess time.Time
}

// HasValidators reports whether a conditional request can be made.
func (r Record) HasValidators() bool {
	return r.ETag != "" || r.LastModified != ""
}

// Touched returns the record with its validators unchanged and a new
// timestamp and status. Used for 304s and failures.
func (r Record) Touched(at time.Time, status Status, errMsg string) Record {
	r.FetchedAt = at
	r.Status = status
	r.Error = errMsg
	if status != StatusError {
		r.LastSuccess = at
	}
	return r
}

// Store holds one Record per endpoint. It is not safe for concurrent use;
// the watcher mutates it from a single goroutine.
type Store struct {
	records map[string]Record
}

func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

func (s *Store) Get(endpoint string) (Record, bool) {
	r, ok := s.records[endpoint]
	return r, ok
}

func (s *Store) Put(endpoint string, r Record) {
	s.records[endpoint] = r
}

func (s *Store) Len() int {
	return len(s.records)
}

type persistedRecord struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	FetchedAt    int64  `json:"fetched_at"`
	Status       Status `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
	LastSuccess  int64  `json:"last_success,omitempty"`
}

// Load reads the cache artifact. It always returns a usable store: a missing
// artifact yields an empty one, and an unreadable one yields an empty store
// together with a *storage.CorruptError describing what was discarded.
func Load(ctx context.Context, b storage.Backend, key string) (*Store, error) {
	s := NewStore()

	data, err := b.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, &storage.CorruptError{Key: key, Err: err}
	}

	var raw map[string]persistedRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return s, &storage.CorruptError{Key: key, Err: err}
	}

	for endpoint, p := range raw {
		r := Record{
			ETag:         p.ETag,
			LastModified: p.LastModified,
			Status:       p.Status,
			Error:        p.Error,
		}
		if p.FetchedAt > 0 {
			r.FetchedAt = time.Unix(p.FetchedAt, 0).UTC()
		}
		if p.LastSuccess > 0 {
			r.LastSuccess = time.Unix(p.LastSuccess, 0).UTC()
		}
		s.records[endpoint] = r
	}
	return s, nil
}

// Save writes the whole store as one artifact.
func (s *Store) Save(ctx context.Context, b storage.Backend, key string) error {
	raw := make(map[string]persistedRecord, len(s.records))
	for endpoint, r := range s.records {
		p := persistedRecord{
			ETag:         r.ETag,
			LastModified: r.LastModified,
			Status:       r.Status,
			Error:        r.Error,
		}
		if !r.FetchedAt.IsZero() {
			p.FetchedAt = r.FetchedAt.Unix()
		}
		if !r.LastSuccess.IsZero() {
			p.LastSuccess = r.LastSuccess.Unix()
		}
		raw[endpoint] = p
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache state: %w", err)
	}
	if err := b.Write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write cache state: %w", err)
	}
	return nil
}
