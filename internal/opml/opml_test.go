package opml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NestedAndDeduplicated(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Feeds</title></head>
  <body>
    <outline text="Kinh te">
      <outline text="A" type="rss" xmlUrl="https://a.example/rss"/>
      <outline text="B" type="rss" xmlurl=" https://b.example/rss "/>
      <outline text="Nested">
        <outline text="C" type="rss" xmlUrl="https://c.example/rss"/>
      </outline>
    </outline>
    <outline text="A again" type="rss" xmlUrl="https://a.example/rss"/>
    <outline text="No url"/>
  </body>
</opml>`

	urls, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://a.example/rss",
		"https://b.example/rss",
		"https://c.example/rss",
	}, urls)
}

func TestParse_Empty(t *testing.T) {
	urls, err := Parse(strings.NewReader(`<opml version="2.0"><head/></opml>`))
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader(`<opml><body><outline`))
	assert.Error(t, err)
}
