package parser

import (
	"fmt"
	"strings"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

// PagedSource is a fully extracted, unencrypted source held in memory.
// Formats without physical pages (markdown, HTML, DOCX, text) start a new
// virtual page at every heading, so a heading's bookmark points at the page
// it opens.
type PagedSource struct {
	pages   []string
	outline doctree.Outline
}

func (s *PagedSource) Outline() (doctree.Outline, error) { return s.outline, nil }
func (s *PagedSource) PageCount() int                    { return len(s.pages) }
func (s *PagedSource) IsEncrypted() bool                 { return false }
func (s *PagedSource) Decrypt(string) error              { return nil }
func (s *PagedSource) Close() error                      { return nil }

func (s *PagedSource) PageText(i int) (string, error) {
	if i < 0 || i >= len(s.pages) {
		return "", fmt.Errorf("page %d of %d: %w", i, len(s.pages), ErrPageOutOfRange)
	}
	return s.pages[i], nil
}

// headingNode is a bookmark under construction.
type headingNode struct {
	title    string
	page     int
	children []*headingNode
}

// pageBuilder accumulates blocks into virtual pages and builds the outline
// from heading levels.
type pageBuilder struct {
	pages   []string
	current strings.Builder
	opened  bool // a page is in progress

	root  headingNode
	stack []stackEntry
}

type stackEntry struct {
	node  *headingNode
	level int
}

func newPageBuilder() *pageBuilder {
	b := &pageBuilder{}
	// Root is level 0, all headings nest under it.
	b.stack = []stackEntry{{node: &b.root, level: 0}}
	return b
}

// heading closes the current page and opens a new one titled title.
func (b *pageBuilder) heading(title string, level int) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	b.flush()
	b.bookmark(title, level, len(b.pages))
	b.opened = true
	b.current.WriteString(title)
}

// bookmark places a heading in the outline without touching pages.
func (b *pageBuilder) bookmark(title string, level, page int) {
	// Pop stack until we find a parent with lower level.
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	node := &headingNode{title: title, page: page}
	parent := b.stack[len(b.stack)-1].node
	parent.children = append(parent.children, node)
	b.stack = append(b.stack, stackEntry{node: node, level: level})
}

// text appends a block of body text to the current page.
func (b *pageBuilder) text(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.current.Len() > 0 {
		b.current.WriteString("\n\n")
	}
	b.opened = true
	b.current.WriteString(t)
}

func (b *pageBuilder) flush() {
	if !b.opened {
		return
	}
	b.pages = append(b.pages, b.current.String())
	b.current.Reset()
	b.opened = false
}

func (b *pageBuilder) build() *PagedSource {
	b.flush()
	return &PagedSource{pages: b.pages, outline: toOutline(b.root.children)}
}

// toOutline renders headings as a bookmark tree: each heading is a leaf,
// followed by a nested list holding its subheadings. A heading whose page is
// Unresolved is left out and its subheadings take its place.
func toOutline(nodes []*headingNode) doctree.Outline {
	type frame struct {
		nodes  []*headingNode
		out    *doctree.Outline
		parent *doctree.Outline // nil when out is shared with the enclosing frame
	}
	root := doctree.Outline{}
	stack := []*frame{{nodes: nodes, out: &root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if len(f.nodes) == 0 {
			stack = stack[:len(stack)-1]
			if f.parent != nil && len(*f.out) > 0 {
				*f.parent = append(*f.parent, doctree.List(*f.out...))
			}
			continue
		}
		n := f.nodes[0]
		f.nodes = f.nodes[1:]

		if n.page == doctree.Unresolved {
			stack = append(stack, &frame{nodes: n.children, out: f.out})
			continue
		}
		*f.out = append(*f.out, doctree.Leaf(n.title, n.page))
		if len(n.children) > 0 {
			stack = append(stack, &frame{nodes: n.children, out: &doctree.Outline{}, parent: f.out})
		}
	}
	return root
}
