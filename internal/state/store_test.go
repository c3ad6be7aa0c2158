package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss-watcher/internal/storage"
)

const feedA = "https://a.example/rss"

func TestStore_MarkSeenIsIdempotent(t *testing.T) {
	s := NewStore()
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)

	assert.False(t, s.HasSeen(feedA, "fp"))

	s.MarkSeen(feedA, "fp", t1)
	s.MarkSeen(feedA, "fp", t2)

	assert.True(t, s.HasSeen(feedA, "fp"))
	assert.False(t, s.HasSeen("https://b.example/rss", "fp"), "seen sets are per feed")
	assert.Equal(t, 1, s.Count(feedA))

	at, ok := s.seenAt(feedA, "fp")
	require.True(t, ok)
	assert.Equal(t, t2, at, "re-marking refreshes the timestamp")
}

func TestStore_EvictByAge(t *testing.T) {
	s := NewStore()
	now := time.Unix(100*86400, 0)

	s.MarkSeen(feedA, "old", now.Add(-31*24*time.Hour))
	s.MarkSeen(feedA, "edge", now.Add(-30*24*time.Hour))
	s.MarkSeen(feedA, "new", now.Add(-time.Hour))
	s.MarkSeen("https://b.example/rss", "stale", now.Add(-40*24*time.Hour))

	removed := s.Evict(now, EvictionPolicy{MaxAge: 30 * 24 * time.Hour})

	assert.Equal(t, 2, removed)
	assert.False(t, s.HasSeen(feedA, "old"))
	assert.True(t, s.HasSeen(feedA, "edge"), "exactly at the cutoff is retained")
	assert.True(t, s.HasSeen(feedA, "new"))
	assert.Equal(t, 1, s.Feeds(), "feeds emptied by eviction are dropped")
}

func TestStore_EvictByCapacityKeepsNewest(t *testing.T) {
	s := NewStore()
	base := time.Unix(1_000_000, 0)
	for i := 0; i < 10; i++ {
		s.MarkSeen(feedA, fmt.Sprintf("fp-%02d", i), base.Add(time.Duration(i)*time.Minute))
	}

	removed := s.Evict(base.Add(time.Hour), EvictionPolicy{MaxEntriesPerFeed: 3})

	assert.Equal(t, 7, removed)
	assert.Equal(t, 3, s.Count(feedA))
	for _, fp := range []string{"fp-07", "fp-08", "fp-09"} {
		assert.True(t, s.HasSeen(feedA, fp), fp)
	}
}

func TestStore_EvictTiesBreakByFingerprint(t *testing.T) {
	s := NewStore()
	at := time.Unix(5000, 0)
	for _, fp := range []string{"d", "b", "a", "c"} {
		s.MarkSeen(feedA, fp, at)
	}

	s.Evict(at, EvictionPolicy{MaxEntriesPerFeed: 2})

	assert.False(t, s.HasSeen(feedA, "a"))
	assert.False(t, s.HasSeen(feedA, "b"))
	assert.True(t, s.HasSeen(feedA, "c"))
	assert.True(t, s.HasSeen(feedA, "d"))
}

func TestStore_EvictAfterRefresh(t *testing.T) {
	s := NewStore()
	now := time.Unix(10*86400, 0)
	s.MarkSeen(feedA, "x", now.Add(-5*24*time.Hour))
	s.MarkSeen(feedA, "y", now.Add(-4*24*time.Hour))
	// x matched again recently; the heap must reorder it
	s.MarkSeen(feedA, "x", now)

	s.Evict(now, EvictionPolicy{MaxEntriesPerFeed: 1})

	assert.True(t, s.HasSeen(feedA, "x"))
	assert.False(t, s.HasSeen(feedA, "y"))
}

func TestStore_EvictionBound(t *testing.T) {
	s := NewStore()
	now := time.Unix(50*86400, 0)
	policy := EvictionPolicy{MaxAge: 7 * 24 * time.Hour, MaxEntriesPerFeed: 25}

	for f := 0; f < 4; f++ {
		endpoint := fmt.Sprintf("https://feed%d.example/rss", f)
		for i := 0; i < 100; i++ {
			s.MarkSeen(endpoint, fmt.Sprintf("%d-%d", f, i), now.Add(-time.Duration(i*3)*time.Hour))
		}
	}

	s.Evict(now, policy)

	cutoff := now.Add(-policy.MaxAge)
	for endpoint, idx := range s.feeds {
		assert.LessOrEqual(t, len(idx.items), policy.MaxEntriesPerFeed, endpoint)
		for fp, item := range idx.items {
			assert.False(t, item.at.Before(cutoff), "%s/%s older than cutoff", endpoint, fp)
		}
	}
}

func TestStore_ZeroPolicyKeepsEverything(t *testing.T) {
	s := NewStore()
	s.MarkSeen(feedA, "a", time.Unix(1, 0))
	assert.Equal(t, 0, s.Evict(time.Now(), EvictionPolicy{}))
	assert.True(t, s.HasSeen(feedA, "a"))
}

func TestLoadSave_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()

	s := NewStore()
	s.MarkSeen(feedA, "one", time.Unix(1700000000, 0))
	s.MarkSeen(feedA, "two", time.Unix(1700000100, 0))
	s.SetLastRun(time.Unix(1700000200, 0))
	require.NoError(t, s.Save(ctx, b, "seen.json"))

	loaded, err := Load(ctx, b, "seen.json")
	require.NoError(t, err)
	assert.True(t, loaded.HasSeen(feedA, "one"))
	assert.True(t, loaded.HasSeen(feedA, "two"))
	assert.Equal(t, int64(1700000200), loaded.LastRun().Unix())

	at, _ := loaded.seenAt(feedA, "two")
	assert.Equal(t, int64(1700000100), at.Unix())
}

func TestLoad_ReadsPersistedFormat(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()
	doc := `{"seen": {"https://a.example/rss": {"guid-1": 1700000000}}, "last_run": 1700000500}`
	require.NoError(t, b.Write(ctx, "seen.json", []byte(doc)))

	s, err := Load(ctx, b, "seen.json")
	require.NoError(t, err)
	assert.True(t, s.HasSeen(feedA, "guid-1"))
	assert.Equal(t, int64(1700000500), s.LastRun().Unix())
}

func TestLoad_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()

	s, err := Load(ctx, b, "seen.json")
	require.NoError(t, err)
	assert.True(t, s.LastRun().IsZero())

	require.NoError(t, b.Write(ctx, "seen.json", []byte("[]garbage")))
	s, err = Load(ctx, b, "seen.json")
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Feeds())

	var corrupt *storage.CorruptError
	assert.True(t, errors.As(err, &corrupt))
}
