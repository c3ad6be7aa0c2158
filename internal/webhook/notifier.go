package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"rss-watcher/internal/config"
	"rss-watcher/internal/feed"
)

const summaryLimit = 500

// Notifier posts every matched entry to every configured webhook.
type Notifier struct {
	client   *Client
	webhooks []config.Webhook
	logger   *slog.Logger
}

func NewNotifier(client *Client, webhooks []config.Webhook, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:   client,
		webhooks: webhooks,
		logger:   logger,
	}
}

// Notify keeps going after a failed post so one broken webhook does not
// starve the others. All failures are returned joined.
func (n *Notifier) Notify(ctx context.Context, matches []feed.Matches) error {
	var errs []error

	for _, wh := range n.webhooks {
		for _, m := range matches {
			for _, e := range m.Entries {
				if err := ctx.Err(); err != nil {
					return errors.Join(append(errs, err)...)
				}

				payload := Payload{
					FeedURL:     m.Endpoint,
					ItemTitle:   e.Title,
					ItemURL:     e.Link,
					PublishedAt: e.PublishedAt,
					Summary:     PlainText(e.Summary, summaryLimit),
				}
				if err := n.client.SendWithRateLimit(ctx, wh, payload); err != nil {
					n.logger.Error("Failed to post webhook", "name", wh.Name, "feed", m.Endpoint, "item", e.Title, "error", err)
					errs = append(errs, fmt.Errorf("webhook %s: %w", wh.Name, err))
					continue
				}
				n.logger.Debug("Posted webhook", "name", wh.Name, "feed", m.Endpoint, "item", e.Title)
			}
		}
	}

	return errors.Join(errs...)
}

// PlainText strips markup from an HTML fragment, collapses whitespace and
// cuts the result to at most limit runes.
func PlainText(fragment string, limit int) string {
	if fragment == "" {
		return ""
	}
	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		text = doc.Text()
	}
	return truncate(strings.Join(strings.Fields(text), " "), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
