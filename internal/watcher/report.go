package watcher

import (
	"time"

	"rss-watcher/internal/feed"
)

type Kind string

const (
	KindFetched     Kind = "fetched"
	KindNotModified Kind = "not_modified"
	KindFetchError  Kind = "fetch_error"
	KindParseError  Kind = "parse_error"
)

// Outcome is what happened to one endpoint during a run.
type Outcome struct {
	Endpoint string
	Kind     Kind
	// Entries is the number of entries parsed, before any filtering.
	Entries int
	Matched int
	// Primed is set when the endpoint's entries were marked seen unmatched.
	Primed bool
	Err    error

	matched []feed.Entry
}

type Report struct {
	Outcomes []Outcome
	// Matches holds only endpoints that matched something, in endpoint order.
	Matches  []feed.Matches
	Evicted  int
	Duration time.Duration
}

func (r *Report) Count(kind Kind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Report) Primed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Primed {
			n++
		}
	}
	return n
}

func (r *Report) MatchCount() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m.Entries)
	}
	return n
}

// Outcome returns the outcome recorded for endpoint.
func (r *Report) Outcome(endpoint string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Endpoint == endpoint {
			return o, true
		}
	}
	return Outcome{}, false
}
