package feed

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// Parser turns a fetched document into entries.
type Parser interface {
	Parse(data []byte) ([]Entry, error)
}

// ParseError marks an endpoint whose content could not be parsed.
type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// GofeedParser parses RSS, Atom and JSON Feed documents.
type GofeedParser struct {
	parser *gofeed.Parser
}

func NewGofeedParser() *GofeedParser {
	return &GofeedParser{
		parser: gofeed.NewParser(),
	}
}

func (p *GofeedParser) Parse(data []byte) ([]Entry, error) {
	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.entry(item))
	}
	return entries, nil
}

func (p *GofeedParser) entry(item *gofeed.Item) Entry {
	// gofeed already maps Atom <id> and RSS <guid> onto GUID.
	id := Identity{
		GUID:      item.GUID,
		Link:      item.Link,
		Title:     item.Title,
		Published: item.Published,
	}

	e := Entry{
		Fingerprint: id.Fingerprint(),
		Title:       item.Title,
		Link:        item.Link,
		Summary:     item.Description,
	}
	if e.Summary == "" {
		e.Summary = item.Content
	}

	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		e.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		e.PublishedAt = &t
	}

	return e
}
