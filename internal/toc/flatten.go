// Package toc turns a bookmark tree into an ordered table of contents and
// infers the page span of every section.
package toc

import "github.com/dgallion1/filingdrift/internal/doctree"

type frame struct {
	node  doctree.Node
	level int
}

// Flatten walks the outline depth-first, left to right, and emits one Entry
// per bookmark. Entries in the outermost list get level 0; each nested list
// adds one. The result is in document order and must not be re-sorted.
func Flatten(outline doctree.Outline) []doctree.Entry {
	entries := make([]doctree.Entry, 0, len(outline))

	stack := make([]frame, 0, len(outline))
	for i := len(outline) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: outline[i], level: 0})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.node.IsLeaf() {
			entries = append(entries, doctree.Entry{
				Title:     top.node.Bookmark.Title,
				Level:     top.level,
				StartPage: top.node.Bookmark.Page,
				EndPage:   doctree.Unresolved,
			})
			continue
		}

		children := top.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], level: top.level + 1})
		}
	}

	return entries
}
