// Package tags extracts link and image tags from an HTML stream. The parser
// is an incremental consumer: it reads from the body as tokens are needed
// and never buffers a page wholesale.
package tags

import (
	"io"

	"golang.org/x/net/html"
)

// Tag is one extracted markup element. URL is empty until resolution
// succeeds, and stays empty when the tag carries no usable href/src
// attribute; only tags with a resolved URL belong in the sitemap.
type Tag struct {
	Name  string            `yaml:"name"`
	URL   string            `yaml:"url,omitempty"`
	Attrs map[string]string `yaml:"attrs"`
}

// Parser yields matching start tags from an HTML stream in document order.
// State is per page: create one Parser per fetched body.
type Parser struct {
	tokenizer *html.Tokenizer
	collect   map[string]struct{}
}

// NewParser returns a Parser that reads r and yields start tags whose name
// is in collect (e.g. "a", "img").
func NewParser(r io.Reader, collect ...string) *Parser {
	set := make(map[string]struct{}, len(collect))
	for _, name := range collect {
		set[name] = struct{}{}
	}
	return &Parser{
		tokenizer: html.NewTokenizer(r),
		collect:   set,
	}
}

// Next returns the next matching tag. It returns io.EOF when the stream is
// exhausted. Malformed markup is not an error: the tokenizer extracts what
// it can, and anything it cannot tokenize simply yields no further tags.
// A transport error from the underlying reader is returned as-is so the
// caller can tell an abandoned page from a finished one.
func (p *Parser) Next() (Tag, error) {
	for {
		switch p.tokenizer.Next() {
		case html.ErrorToken:
			return Tag{}, p.tokenizer.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			token := p.tokenizer.Token()
			if _, ok := p.collect[token.Data]; !ok {
				continue
			}
			attrs := make(map[string]string, len(token.Attr))
			for _, a := range token.Attr {
				attrs[a.Key] = a.Val
			}
			return Tag{Name: token.Data, Attrs: attrs}, nil
		}
	}
}
