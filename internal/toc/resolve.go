package toc

import (
	"fmt"
	"sort"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

// MalformedOutlineError reports an entry whose range could not be derived
// from the outline alone. It is never fatal.
type MalformedOutlineError struct {
	Title     string
	StartPage int
	Reason    string
}

func (e *MalformedOutlineError) Error() string {
	return fmt.Sprintf("malformed outline entry %q (start page %d): %s", e.Title, e.StartPage, e.Reason)
}

// Resolve assigns an exclusive end page to every entry. A section ends where
// the next entry at the same or a shallower level begins; with no such
// successor it runs to totalPages. Deeper levels are resolved first.
//
// The input slice is not modified. Resolve is idempotent: feeding its output
// back in yields the same ranges.
func Resolve(entries []doctree.Entry, totalPages int) ([]doctree.Entry, doctree.Diagnostics) {
	var diags doctree.Diagnostics
	if totalPages < 0 {
		totalPages = 0
	}

	snapshot := make([]doctree.Entry, len(entries))
	for i, e := range entries {
		switch {
		case e.StartPage < 0:
			diags.Add(doctree.KindMalformedOutline, e.Title, &MalformedOutlineError{
				Title: e.Title, StartPage: e.StartPage, Reason: "start page before first page, clamped to 0",
			})
			e.StartPage = 0
		case e.StartPage > totalPages:
			diags.Add(doctree.KindMalformedOutline, e.Title, &MalformedOutlineError{
				Title: e.Title, StartPage: e.StartPage, Reason: fmt.Sprintf("start page beyond last page, clamped to %d", totalPages),
			})
			e.StartPage = totalPages
		}
		e.EndPage = doctree.Unresolved
		snapshot[i] = e
	}

	ends := make([]int, len(snapshot))
	for i := range ends {
		ends[i] = doctree.Unresolved
	}

	for _, level := range levelsDeepestFirst(snapshot) {
		for i, e := range snapshot {
			if e.Level != level {
				continue
			}
			ends[i] = totalPages
			for j := i + 1; j < len(snapshot); j++ {
				if snapshot[j].Level <= e.Level {
					ends[i] = snapshot[j].StartPage
					break
				}
			}
		}
	}

	out := make([]doctree.Entry, len(snapshot))
	for i, e := range snapshot {
		end := ends[i]
		if end == doctree.Unresolved {
			diags.Add(doctree.KindMalformedOutline, e.Title, &MalformedOutlineError{
				Title: e.Title, StartPage: e.StartPage, Reason: "no range derivable from outline, assuming rest of document",
			})
			end = totalPages
		}
		if end < e.StartPage {
			diags.Add(doctree.KindMalformedOutline, e.Title, &MalformedOutlineError{
				Title: e.Title, StartPage: e.StartPage, Reason: fmt.Sprintf("next section starts earlier (page %d), treated as empty", end),
			})
			end = e.StartPage
		}
		e.EndPage = end
		out[i] = e
	}

	return out, diags
}

func levelsDeepestFirst(entries []doctree.Entry) []int {
	seen := make(map[int]struct{})
	var levels []int
	for _, e := range entries {
		if _, ok := seen[e.Level]; ok {
			continue
		}
		seen[e.Level] = struct{}{}
		levels = append(levels, e.Level)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))
	return levels
}
