package feed

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// Entry is one parsed feed item. Only its Fingerprint outlives a run.
type Entry struct {
	Fingerprint string
	Title       string
	Link        string
	PublishedAt *time.Time
	Summary     string
}

// Text is what keyword rules are evaluated against.
func (e Entry) Text() string {
	return e.Title + "\n" + e.Summary
}

// Matches groups the entries one endpoint contributed to a run.
type Matches struct {
	Endpoint string
	Entries  []Entry
}

// Identity carries the fields a fingerprint can be derived from.
type Identity struct {
	GUID      string
	Link      string
	Title     string
	Published string
}

// Fingerprint returns the GUID, or else the Link, when set. Entries
// with none of them get "h:" plus a SHA-1 over title, link and the raw
// published string, which stays stable while the feed content does.
func (id Identity) Fingerprint() string {
	for _, v := range []string{id.GUID, id.Link} {
		if v != "" {
			return v
		}
	}
	sum := sha1.Sum([]byte(id.Title + "|" + id.Link + "|" + id.Published))
	return "h:" + hex.EncodeToString(sum[:])
}

// Keep reports whether e is recent enough to consider. Entries published
// before cutoff are dropped. Entries without a publish time are kept, and a
// zero cutoff keeps everything.
func Keep(e Entry, cutoff time.Time) bool {
	if cutoff.IsZero() || e.PublishedAt == nil {
		return true
	}
	return !e.PublishedAt.Before(cutoff)
}
