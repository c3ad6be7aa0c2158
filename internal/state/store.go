// Package state records which entry fingerprints have already been reported
// for each feed, so a restarted watcher never notifies the same entry twice
// while it is inside the retention window.
package state

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rss-watcher/internal/storage"
)

// EvictionPolicy bounds the seen set. A zero field disables that bound.
type EvictionPolicy struct {
	MaxAge            time.Duration
	MaxEntriesPerFeed int
}

// Store is the dedup state. It is not safe for concurrent use; the watcher
// touches it only from its sequential phase.
type Store struct {
	feeds   map[string]*feedIndex
	lastRun time.Time
}

func NewStore() *Store {
	return &Store{feeds: make(map[string]*feedIndex)}
}

func (s *Store) HasSeen(endpoint, fingerprint string) bool {
	idx, ok := s.feeds[endpoint]
	if !ok {
		return false
	}
	_, ok = idx.items[fingerprint]
	return ok
}

// MarkSeen records fingerprint for endpoint. Marking an existing fingerprint
// again only refreshes its timestamp.
func (s *Store) MarkSeen(endpoint, fingerprint string, at time.Time) {
	idx, ok := s.feeds[endpoint]
	if !ok {
		idx = newFeedIndex()
		s.feeds[endpoint] = idx
	}
	idx.mark(fingerprint, at)
}

// Evict drops fingerprints older than now-MaxAge, then trims every feed to
// its newest MaxEntriesPerFeed fingerprints. Equal timestamps are evicted in
// ascending fingerprint order. Returns the number of fingerprints removed.
func (s *Store) Evict(now time.Time, policy EvictionPolicy) int {
	removed := 0
	for endpoint, idx := range s.feeds {
		if policy.MaxAge > 0 {
			cutoff := now.Add(-policy.MaxAge)
			for idx.byAge.Len() > 0 && idx.byAge[0].at.Before(cutoff) {
				idx.popOldest()
				removed++
			}
		}
		if policy.MaxEntriesPerFeed > 0 {
			for idx.byAge.Len() > policy.MaxEntriesPerFeed {
				idx.popOldest()
				removed++
			}
		}
		if idx.byAge.Len() == 0 {
			delete(s.feeds, endpoint)
		}
	}
	return removed
}

// Count returns the number of fingerprints held for endpoint.
func (s *Store) Count(endpoint string) int {
	idx, ok := s.feeds[endpoint]
	if !ok {
		return 0
	}
	return len(idx.items)
}

// Feeds returns the number of endpoints with at least one fingerprint.
func (s *Store) Feeds() int {
	return len(s.feeds)
}

// seenAt returns the timestamp recorded for a fingerprint.
func (s *Store) seenAt(endpoint, fingerprint string) (time.Time, bool) {
	idx, ok := s.feeds[endpoint]
	if !ok {
		return time.Time{}, false
	}
	item, ok := idx.items[fingerprint]
	if !ok {
		return time.Time{}, false
	}
	return item.at, true
}

// LastRun is the completion time of the previous run, zero if there was none.
func (s *Store) LastRun() time.Time {
	return s.lastRun
}

func (s *Store) SetLastRun(t time.Time) {
	s.lastRun = t
}

type persisted struct {
	Seen    map[string]map[string]int64 `json:"seen"`
	LastRun int64                       `json:"last_run"`
}

// Load reads the dedup artifact. Like cache.Load it always returns a usable
// store; an unreadable artifact is reported as *storage.CorruptError and
// replaced by empty state.
func Load(ctx context.Context, b storage.Backend, key string) (*Store, error) {
	s := NewStore()

	data, err := b.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, &storage.CorruptError{Key: key, Err: err}
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return s, &storage.CorruptError{Key: key, Err: err}
	}

	for endpoint, seen := range p.Seen {
		for fp, ts := range seen {
			s.MarkSeen(endpoint, fp, time.Unix(ts, 0).UTC())
		}
	}
	if p.LastRun > 0 {
		s.lastRun = time.Unix(p.LastRun, 0).UTC()
	}
	return s, nil
}

// Save writes the whole store as one artifact.
func (s *Store) Save(ctx context.Context, b storage.Backend, key string) error {
	p := persisted{Seen: make(map[string]map[string]int64, len(s.feeds))}
	for endpoint, idx := range s.feeds {
		seen := make(map[string]int64, len(idx.items))
		for fp, item := range idx.items {
			seen[fp] = item.at.Unix()
		}
		p.Seen[endpoint] = seen
	}
	if !s.lastRun.IsZero() {
		p.LastRun = s.lastRun.Unix()
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dedup state: %w", err)
	}
	if err := b.Write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write dedup state: %w", err)
	}
	return nil
}

type seenItem struct {
	fingerprint string
	at          time.Time
	index       int
}

// feedIndex pairs a lookup map with a min-heap ordered by (at, fingerprint),
// so eviction pops the oldest entries without sorting the whole feed.
type feedIndex struct {
	items map[string]*seenItem
	byAge ageHeap
}

func newFeedIndex() *feedIndex {
	return &feedIndex{items: make(map[string]*seenItem)}
}

func (f *feedIndex) mark(fingerprint string, at time.Time) {
	if item, ok := f.items[fingerprint]; ok {
		item.at = at
		heap.Fix(&f.byAge, item.index)
		return
	}
	item := &seenItem{fingerprint: fingerprint, at: at}
	f.items[fingerprint] = item
	heap.Push(&f.byAge, item)
}

func (f *feedIndex) popOldest() {
	item := heap.Pop(&f.byAge).(*seenItem)
	delete(f.items, item.fingerprint)
}

type ageHeap []*seenItem

func (h ageHeap) Len() int { return len(h) }

func (h ageHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].fingerprint < h[j].fingerprint
	}
	return h[i].at.Before(h[j].at)
}

func (h ageHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ageHeap) Push(x any) {
	item := x.(*seenItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *ageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
