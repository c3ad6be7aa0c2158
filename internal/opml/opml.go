// Package opml reads feed subscription lists.
package opml

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	goopml "github.com/gilliek/go-opml/opml"
)

// Some exporters write the attribute in lower case. XML attributes are case
// sensitive, so it is rewritten before decoding.
var lowerXMLURL = []byte(" xmlurl=")

// Parse returns every xmlUrl in document order, nested outlines included,
// without duplicates.
func Parse(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read opml: %w", err)
	}
	data = bytes.ReplaceAll(data, lowerXMLURL, []byte(" xmlUrl="))

	doc, err := goopml.NewOPML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opml: %w", err)
	}

	var urls []string
	seen := make(map[string]bool)
	var walk func([]goopml.Outline)
	walk = func(outlines []goopml.Outline) {
		for _, o := range outlines {
			u := strings.TrimSpace(o.XMLURL)
			if u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)

	return urls, nil
}

func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
