package parser

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// Filing headings in plain text: "PART II" opens a part, "Item 1A. Risk
// Factors" an item within it.
var (
	partHeading = regexp.MustCompile(`(?i)^PART[\s\p{Z}]+[IVX]+\b`)
	itemHeading = regexp.MustCompile(`(?i)^Item[\s\p{Z}]+\d+[A-Z]?\b`)
)

const maxHeadingLen = 120

// textHeadingLevel classifies a line as a part (1) or item (2) heading.
func textHeadingLevel(line string) int {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeadingLen {
		return 0
	}
	switch {
	case partHeading.MatchString(line):
		return 1
	case itemHeading.MatchString(line):
		return 2
	}
	return 0
}

// NewTextSource reads a plain text filing. Text containing form feeds keeps
// one page per form-feed-separated block, and headings bookmark the page
// they appear on. Otherwise paragraphs are grouped into virtual pages that
// start at each heading paragraph.
func NewTextSource(r io.Reader) (*PagedSource, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := string(src)
	if strings.Contains(text, "\f") {
		return pagedText(text), nil
	}

	paragraphs, err := splitParagraphs(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	b := newPageBuilder()
	for _, para := range paragraphs {
		first, rest, _ := strings.Cut(para, "\n")
		if level := textHeadingLevel(first); level > 0 {
			b.heading(first, level)
			b.text(rest)
			continue
		}
		b.text(para)
	}
	return b.build(), nil
}

func pagedText(text string) *PagedSource {
	pages := strings.Split(text, "\f")
	b := newPageBuilder()
	for i, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			if level := textHeadingLevel(line); level > 0 {
				b.bookmark(strings.TrimSpace(line), level, i)
			}
		}
	}
	return &PagedSource{pages: pages, outline: toOutline(b.root.children)}
}

func splitParagraphs(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return paragraphs, nil
}
