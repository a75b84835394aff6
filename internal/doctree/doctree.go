package doctree

import "time"

// Unresolved marks an Entry whose end page has not been assigned yet.
const Unresolved = -1

// Bookmark is a named navigation target with a 0-indexed start page.
type Bookmark struct {
	Title string
	Page  int
}

// Node is one element of a bookmark tree. A node is either a leaf
// (Bookmark set) or a nested list (Bookmark nil, Children holds the list).
type Node struct {
	Bookmark *Bookmark
	Children []Node
}

// Outline is the outermost list of a bookmark tree.
type Outline []Node

// Leaf returns a bookmark node.
func Leaf(title string, page int) Node {
	return Node{Bookmark: &Bookmark{Title: title, Page: page}}
}

// List returns a nested list node holding children.
func List(children ...Node) Node {
	if children == nil {
		children = []Node{}
	}
	return Node{Children: children}
}

// IsLeaf reports whether n is a bookmark rather than a nested list.
func (n Node) IsLeaf() bool { return n.Bookmark != nil }

// Entry is one flattened bookmark. EndPage is exclusive and stays
// Unresolved until page ranges are assigned.
type Entry struct {
	Title     string `json:"title"`
	Level     int    `json:"level"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
}

// Resolved reports whether the entry has an end page.
func (e Entry) Resolved() bool { return e.EndPage != Unresolved }

// PageCount is the number of pages in [StartPage, EndPage).
func (e Entry) PageCount() int {
	if !e.Resolved() || e.EndPage < e.StartPage {
		return 0
	}
	return e.EndPage - e.StartPage
}

// Section is an Entry plus its extracted page text.
type Section struct {
	Entry
	Pages []string `json:"pages"` // one string per page in range
	Text  string   `json:"text"`  // normalized text used for similarity
}

// Identity names a filing.
type Identity struct {
	Ticker   string    `json:"ticker"`
	Category string    `json:"category"` // e.g. 10-K, 10-Q
	Date     time.Time `json:"date"`
}

// Document is one indexed filing. Sections keep document order; the title
// index lets a later duplicate title shadow an earlier one.
type Document struct {
	Identity   Identity  `json:"identity"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	TotalPages int       `json:"total_pages"`
	Sections   []Section `json:"sections"`

	byTitle map[string]int
}

// AddSection appends s and indexes it by title. It returns true when s
// replaced an earlier section with the same title in the index.
func (d *Document) AddSection(s Section) (replaced bool) {
	if d.byTitle == nil {
		d.byTitle = make(map[string]int)
	}
	_, replaced = d.byTitle[s.Title]
	d.Sections = append(d.Sections, s)
	d.byTitle[s.Title] = len(d.Sections) - 1
	return replaced
}

// Section returns the indexed section for title.
func (d *Document) Section(title string) (Section, bool) {
	i, ok := d.byTitle[title]
	if !ok {
		return Section{}, false
	}
	return d.Sections[i], true
}

// Indexed returns the sections visible through the title index, in
// document order. Shadowed duplicates are left out.
func (d *Document) Indexed() []Section {
	out := make([]Section, 0, len(d.byTitle))
	for i, s := range d.Sections {
		if d.byTitle[s.Title] == i {
			out = append(out, s)
		}
	}
	return out
}

// Metrics is the similarity of one section (or whole document) against the
// prior-year filing. Nil fields were not computed.
type Metrics struct {
	Cosine       *float64 `json:"cosine,omitempty" yaml:"cosine,omitempty"`
	Jaccard      *float64 `json:"jaccard,omitempty" yaml:"jaccard,omitempty"`
	EditDistance *int     `json:"edit_distance,omitempty" yaml:"edit_distance,omitempty"`
}

// Empty reports whether no metric was computed.
func (m Metrics) Empty() bool {
	return m.Cosine == nil && m.Jaccard == nil && m.EditDistance == nil
}
