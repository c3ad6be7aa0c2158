package watcher

import (
	"context"
	"log/slog"
	"time"

	"rss-watcher/internal/feed"
)

// LogNotifier writes matches to the log instead of sending them anywhere.
// Used for dry runs.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, matches []feed.Matches) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range matches {
		for _, e := range m.Entries {
			args := []any{"feed", m.Endpoint, "title", e.Title, "link", e.Link}
			if e.PublishedAt != nil {
				args = append(args, "published_at", e.PublishedAt.Format(time.RFC3339))
			}
			logger.Info("Matched item", args...)
		}
	}
	return nil
}
