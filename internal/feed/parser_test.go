package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Kinh te</title>
    <link>https://example.com</link>
    <item>
      <title>Startup huy dong von AI</title>
      <link>https://example.com/a</link>
      <guid>guid-a</guid>
      <description>Mot startup AI</description>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Gia xang tang</title>
      <link>https://example.com/b</link>
      <description>Gia dau va xang</description>
    </item>
    <item>
      <title>No identity</title>
      <description>Only text</description>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom</title>
  <id>urn:feed</id>
  <updated>2023-07-03T12:00:00Z</updated>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom1"/>
    <id>urn:entry:1</id>
    <updated>2023-07-03T10:00:00Z</updated>
    <summary>Summary text</summary>
  </entry>
</feed>`

func TestGofeedParser_RSS(t *testing.T) {
	entries, err := NewGofeedParser().Parse([]byte(rssFixture))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	a := entries[0]
	assert.Equal(t, "guid-a", a.Fingerprint)
	assert.Equal(t, "Startup huy dong von AI", a.Title)
	assert.Equal(t, "Mot startup AI", a.Summary)
	require.NotNil(t, a.PublishedAt)
	assert.True(t, a.PublishedAt.Equal(time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)))

	b := entries[1]
	assert.Equal(t, "https://example.com/b", b.Fingerprint, "link is used when there is no guid")
	assert.Nil(t, b.PublishedAt)

	c := entries[2]
	assert.True(t, strings.HasPrefix(c.Fingerprint, "h:"))
}

func TestGofeedParser_AtomUsesIDAndUpdated(t *testing.T) {
	entries, err := NewGofeedParser().Parse([]byte(atomFixture))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "urn:entry:1", entries[0].Fingerprint)
	assert.Equal(t, "Summary text", entries[0].Summary)
	require.NotNil(t, entries[0].PublishedAt, "updated is used when published is missing")
	assert.True(t, entries[0].PublishedAt.Equal(time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)))
}

func TestGofeedParser_FingerprintsAreStable(t *testing.T) {
	p := NewGofeedParser()
	first, err := p.Parse([]byte(rssFixture))
	require.NoError(t, err)
	second, err := p.Parse([]byte(rssFixture))
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Fingerprint, second[i].Fingerprint)
	}
}

func TestGofeedParser_Malformed(t *testing.T) {
	_, err := NewGofeedParser().Parse([]byte("<html><body>not a feed"))
	assert.Error(t, err)
}

func TestIdentity_Fingerprint(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{"guid wins", Identity{GUID: "guid", Link: "link"}, "guid"},
		{"link last", Identity{Link: "link"}, "link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Fingerprint())
		})
	}

	h1 := Identity{Title: "t", Published: "p"}.Fingerprint()
	h2 := Identity{Title: "t", Published: "p"}.Fingerprint()
	h3 := Identity{Title: "t", Published: "q"}.Fingerprint()
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 2+40)
}

func TestKeep(t *testing.T) {
	cutoff := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before := cutoff.Add(-time.Second)
	after := cutoff.Add(time.Second)

	assert.False(t, Keep(Entry{PublishedAt: &before}, cutoff))
	assert.True(t, Keep(Entry{PublishedAt: &cutoff}, cutoff))
	assert.True(t, Keep(Entry{PublishedAt: &after}, cutoff))
	assert.True(t, Keep(Entry{}, cutoff), "entries without a publish time pass")
	assert.True(t, Keep(Entry{PublishedAt: &before}, time.Time{}), "zero cutoff disables the filter")
}

func TestEntry_Text(t *testing.T) {
	e := Entry{Title: "Title", Summary: "Body"}
	assert.Equal(t, "Title\nBody", e.Text())
}
