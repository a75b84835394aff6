package index

import (
	"context"
	"strings"

	"github.com/dgallion1/filingdrift/internal/store"
)

// Reader is the read side of the section store.
type Reader interface {
	Sections(ctx context.Context, table string) ([]store.SectionRow, error)
	SectionsByKeyword(ctx context.Context, table, keyword string) ([]store.SectionRow, error)
	Section(ctx context.Context, table, title string) (*store.SectionRow, error)
}

// Catalog answers section lookups over indexed documents.
type Catalog struct {
	r Reader
}

func NewCatalog(r Reader) *Catalog {
	return &Catalog{r: r}
}

// Search returns the extracted text of every section whose title contains
// any of the keywords, ignoring case, keyed by title. Pages are joined with
// a newline.
func (c *Catalog) Search(ctx context.Context, table string, keywords ...string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		rows, err := c.r.SectionsByKeyword(ctx, table, kw)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.Title] = strings.Join(row.Pages, "\n")
		}
	}
	return out, nil
}

// Sections returns every section of a document in document order.
func (c *Catalog) Sections(ctx context.Context, table string) ([]store.SectionRow, error) {
	return c.r.Sections(ctx, table)
}

// Section returns one section by exact title.
func (c *Catalog) Section(ctx context.Context, table, title string) (*store.SectionRow, error) {
	return c.r.Section(ctx, table, title)
}
