package index

import (
	"fmt"
	"time"

	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/stats"
)

type pageError struct {
	page int
	err  error
}

func (e *pageError) Error() string { return fmt.Sprintf("page %d: %v", e.page, e.err) }
func (e *pageError) Unwrap() error { return e.err }

type pageResult struct {
	text string
	err  error
}

// pageCache memoizes page text for one document, so nested sections that
// share pages read each page once. Failures are cached too.
type pageCache struct {
	src     parser.Source
	latency *stats.Latency
	pages   map[int]pageResult
}

func newPageCache(src parser.Source, latency *stats.Latency) *pageCache {
	return &pageCache{src: src, latency: latency, pages: make(map[int]pageResult)}
}

func (c *pageCache) get(i int) (string, error) {
	if r, ok := c.pages[i]; ok {
		return r.text, r.err
	}
	start := time.Now()
	text, err := c.src.PageText(i)
	if c.latency != nil {
		c.latency.Record(time.Since(start), err != nil)
	}
	c.pages[i] = pageResult{text: text, err: err}
	return text, err
}

// span returns the text of pages [start, end), one string per page.
func (c *pageCache) span(start, end int) ([]string, error) {
	out := make([]string, 0, max(end-start, 0))
	for p := start; p < end; p++ {
		text, err := c.get(p)
		if err != nil {
			return nil, &pageError{page: p, err: err}
		}
		out = append(out, text)
	}
	return out, nil
}
