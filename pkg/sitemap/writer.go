// Package sitemap serializes discovered tags to the output stream.
package sitemap

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"sitemapper/pkg/tags"
)

// Writer appends batches of tags to an output stream as YAML sequences.
// YAML list documents concatenate cleanly, so the output can be tailed or
// cat-ed together while the crawl is still running. Writes are serialized
// with a mutex; concurrent workers flush whole page batches, never
// interleaved fragments.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter creates a Writer targeting out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WritePage appends one page's tags as a single YAML sequence. Tags without
// a resolved URL are not part of the sitemap and must be filtered by the
// caller before this point. An empty batch writes nothing.
func (w *Writer) WritePage(batch []tags.Tag) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := yaml.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling %d tag(s): %w", len(batch), err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("writing sitemap batch: %w", err)
	}
	return nil
}
