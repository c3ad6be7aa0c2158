// Package watcher drives a full run: fetch every endpoint, parse, filter by
// age, drop entries already seen, match the rest and remember what matched.
//
// Fetching is the only concurrent phase. Once FetchAll returns, a single
// goroutine owns every mutation of the dedup and cache stores.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rss-watcher/internal/cache"
	"rss-watcher/internal/feed"
	"rss-watcher/internal/match"
	"rss-watcher/internal/state"
	"rss-watcher/internal/storage"
)

// Fetcher is satisfied by *feed.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, reqs []feed.Request) []feed.Result
}

// Notifier receives the entries matched by a run.
type Notifier interface {
	Notify(ctx context.Context, matches []feed.Matches) error
}

type Deps struct {
	Fetcher  Fetcher
	Parser   feed.Parser
	Rule     *match.Rule
	Seen     *state.Store
	Cache    *cache.Store
	Notifier Notifier

	SeenBackend  storage.Backend
	CacheBackend storage.Backend

	Logger *slog.Logger
}

type Options struct {
	// MaxEntryAge drops entries published longer ago than this. Zero keeps all.
	MaxEntryAge time.Duration
	Eviction    state.EvictionPolicy
	// Prime marks everything seen without notifying for endpoints that have
	// never been fetched successfully and hold no fingerprints.
	Prime bool

	SeenKey  string
	CacheKey string
}

type Watcher struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, opts Options) *Watcher {
	if deps.Parser == nil {
		deps.Parser = feed.NewGofeedParser()
	}
	if deps.Seen == nil {
		deps.Seen = state.NewStore()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Watcher{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger,
		now:    time.Now,
	}
}

// PersistError means a store could not be written. The run's dedup marks are
// lost, so the next run may notify again.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// NotifyError wraps a notifier failure. Matched entries stay marked seen.
type NotifyError struct {
	Matches int
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %d matched entries: %v", e.Matches, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// RunOnce performs one run against the in-memory stores. It never persists
// and never notifies; see Cycle.
func (w *Watcher) RunOnce(ctx context.Context, endpoints []string) *Report {
	started := w.now()
	logger := w.logger.With("run_id", uuid.NewString())

	reqs := make([]feed.Request, len(endpoints))
	for i, ep := range endpoints {
		prev, _ := w.deps.Cache.Get(ep)
		reqs[i] = feed.Request{Endpoint: ep, Prev: prev}
	}

	results := w.deps.Fetcher.FetchAll(ctx, reqs)

	now := w.now().UTC()
	var cutoff time.Time
	if w.opts.MaxEntryAge > 0 {
		cutoff = now.Add(-w.opts.MaxEntryAge)
	}

	report := &Report{Outcomes: make([]Outcome, 0, len(results))}
	for i, res := range results {
		out := w.process(logger, reqs[i], res, cutoff, now, w.priming(reqs[i]))
		if out.Kind == KindFetched && len(out.matched) > 0 {
			report.Matches = append(report.Matches, feed.Matches{Endpoint: res.Endpoint, Entries: out.matched})
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	report.Evicted = w.deps.Seen.Evict(now, w.opts.Eviction)
	if ctx.Err() == nil {
		w.deps.Seen.SetLastRun(now)
	}
	report.Duration = w.now().Sub(started)

	observe(report)
	logger.Info("Run finished",
		"feeds", len(endpoints),
		"fetched", report.Count(KindFetched),
		"primed", report.Primed(),
		"not_modified", report.Count(KindNotModified),
		"failed", report.Count(KindFetchError)+report.Count(KindParseError),
		"matched", report.MatchCount(),
		"evicted", report.Evicted,
		"duration", report.Duration)

	return report
}

// priming reports whether req's endpoint should be primed. An endpoint stays
// eligible until a fetch of it succeeds, so a failed first run primes nothing
// and loses nothing.
func (w *Watcher) priming(req feed.Request) bool {
	return w.opts.Prime &&
		req.Prev.LastSuccess.IsZero() &&
		w.deps.Seen.Count(req.Endpoint) == 0
}

// process handles one fetch result. It commits the cache record, and for
// fresh content parses, filters, dedups and matches.
func (w *Watcher) process(logger *slog.Logger, req feed.Request, res feed.Result, cutoff, now time.Time, priming bool) Outcome {
	logger = logger.With("feed", res.Endpoint)
	out := Outcome{Endpoint: res.Endpoint}

	switch {
	case res.Err != nil:
		w.deps.Cache.Put(res.Endpoint, res.Record)
		logger.Warn("Failed to fetch feed", "error", res.Err)
		out.Kind = KindFetchError
		out.Err = res.Err
		return out
	case res.NotModified:
		w.deps.Cache.Put(res.Endpoint, res.Record)
		out.Kind = KindNotModified
		return out
	}

	entries, err := w.deps.Parser.Parse(res.Body)
	if err != nil {
		// Keep the validators from before this fetch so the next run asks for
		// the full document again.
		perr := &feed.ParseError{Endpoint: res.Endpoint, Err: err}
		w.deps.Cache.Put(res.Endpoint, req.Prev.Touched(res.Record.FetchedAt, cache.StatusError, perr.Error()))
		logger.Warn("Failed to parse feed", "error", err)
		out.Kind = KindParseError
		out.Err = perr
		return out
	}
	w.deps.Cache.Put(res.Endpoint, res.Record)

	out.Kind = KindFetched
	out.Entries = len(entries)
	out.Primed = priming

	for _, e := range entries {
		if !feed.Keep(e, cutoff) {
			continue
		}
		if w.deps.Seen.HasSeen(res.Endpoint, e.Fingerprint) {
			continue
		}
		if priming {
			w.deps.Seen.MarkSeen(res.Endpoint, e.Fingerprint, now)
			continue
		}
		if !w.deps.Rule.Matches(e.Text()) {
			continue
		}
		w.deps.Seen.MarkSeen(res.Endpoint, e.Fingerprint, now)
		out.matched = append(out.matched, e)
	}
	out.Matched = len(out.matched)

	if priming {
		logger.Info("Primed feed without notifications", "marked", w.deps.Seen.Count(res.Endpoint))
	} else if out.Matched > 0 {
		logger.Info("Found matching items", "count", out.Matched)
	} else {
		logger.Debug("No new matching items", "entries", out.Entries)
	}
	return out
}

// Cycle runs once, hands the matches to the notifier and persists both
// stores. Persisting happens even when notification fails or ctx has been
// cancelled, so marks made by the run are not lost.
func (w *Watcher) Cycle(ctx context.Context, endpoints []string) (*Report, error) {
	report := w.RunOnce(ctx, endpoints)

	var notifyErr error
	if n := report.MatchCount(); n > 0 && w.deps.Notifier != nil {
		if err := w.deps.Notifier.Notify(ctx, report.Matches); err != nil {
			w.logger.Error("Failed to notify", "matched", n, "error", err)
			notifyErr = &NotifyError{Matches: n, Err: err}
		}
	}

	if err := w.Persist(context.WithoutCancel(ctx)); err != nil {
		return report, err
	}
	return report, notifyErr
}

// Persist writes the dedup and cache stores. Both writes are attempted.
func (w *Watcher) Persist(ctx context.Context) error {
	var errs []error
	if w.deps.SeenBackend != nil {
		if err := w.deps.Seen.Save(ctx, w.deps.SeenBackend, w.opts.SeenKey); err != nil {
			errs = append(errs, &PersistError{Key: w.opts.SeenKey, Err: err})
		}
	}
	if w.deps.CacheBackend != nil {
		if err := w.deps.Cache.Save(ctx, w.deps.CacheBackend, w.opts.CacheKey); err != nil {
			errs = append(errs, &PersistError{Key: w.opts.CacheKey, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Run cycles immediately and then on every tick until ctx is done. Notifier
// failures are logged and the loop carries on. A persist failure stops it.
func (w *Watcher) Run(ctx context.Context, endpoints []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.Cycle(ctx, endpoints); err != nil {
			var pe *PersistError
			if errors.As(err, &pe) {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
