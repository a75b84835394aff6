package parser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/dgallion1/filingdrift/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// Object references print as "12 0 R".
var (
	objectRef = regexp.MustCompile(`(\d+) (\d+) R`)
	leadRef   = regexp.MustCompile(`^\[(\d+) (\d+) R`)
)

// maxWalk bounds every walk over PDF object graphs; cyclic Next/Kids links
// in damaged files would otherwise never terminate.
const maxWalk = 1 << 20

// PDFSource reads bookmarks and page text from a PDF. It tries the Go
// library first, then falls back to pdftotext per page if enabled.
type PDFSource struct {
	path      string
	file      *os.File
	size      int64
	reader    *pdflib.Reader
	encrypted bool
	password  string
	fallback  bool

	pageIndex map[string]int         // "id gen" of each page object
	named     map[string]pdflib.Value // named destinations
}

// OpenPDF opens the PDF at path. An encrypted file opens successfully but
// must be unlocked with Decrypt before use.
func OpenPDF(path string, opts Options) (*PDFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	s := &PDFSource{path: path, file: f, size: fi.Size(), fallback: opts.FallbackPdftotext}
	err = guard(func() error {
		var err error
		s.reader, err = pdflib.NewReader(f, s.size)
		return err
	})
	switch {
	case errors.Is(err, pdflib.ErrInvalidPassword):
		s.encrypted = true
	case err != nil:
		f.Close()
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}
	return s, nil
}

// IsEncrypted reports whether the file needs a passphrase.
func (s *PDFSource) IsEncrypted() bool { return s.encrypted }

// Decrypt unlocks an encrypted file. It is a no-op once unlocked.
func (s *PDFSource) Decrypt(passphrase string) error {
	if !s.encrypted || s.reader != nil {
		return nil
	}
	tried := false
	pw := func() string {
		if tried {
			return ""
		}
		tried = true
		return passphrase
	}
	err := guard(func() error {
		var err error
		s.reader, err = pdflib.NewReaderEncrypted(s.file, s.size, pw)
		return err
	})
	if err != nil {
		s.reader = nil
		return &EncryptedDocumentError{Path: s.path, Err: err}
	}
	s.password = passphrase
	return nil
}

func (s *PDFSource) locked() error {
	if s.reader == nil {
		return &EncryptedDocumentError{Path: s.path}
	}
	return nil
}

// PageCount returns the number of pages, or 0 while the file is locked.
func (s *PDFSource) PageCount() int {
	if s.reader == nil {
		return 0
	}
	var n int
	_ = guard(func() error {
		n = s.reader.NumPage()
		return nil
	})
	return n
}

// PageText returns the plain text of page i (0-indexed).
func (s *PDFSource) PageText(i int) (string, error) {
	if err := s.locked(); err != nil {
		return "", err
	}
	if i < 0 || i >= s.PageCount() {
		return "", fmt.Errorf("page %d of %d: %w", i, s.PageCount(), ErrPageOutOfRange)
	}

	var text string
	err := guard(func() error {
		page := s.reader.Page(i + 1)
		if page.V.IsNull() {
			return fmt.Errorf("page %d not found in page tree", i)
		}
		var err error
		text, err = page.GetPlainText(nil)
		return err
	})
	if err != nil && s.fallback {
		text, err = s.pdftotextPage(i + 1)
	}
	if err != nil {
		return "", fmt.Errorf("extract page %d: %w", i, err)
	}
	return text, nil
}

func (s *PDFSource) pdftotextPage(num int) (string, error) {
	n := strconv.Itoa(num)
	args := []string{"-f", n, "-l", n, "-layout"}
	if s.password != "" {
		args = append(args, "-upw", s.password)
	}
	args = append(args, s.path, "-")
	out, err := exec.Command("pdftotext", args...).Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// Outline returns the bookmark tree with each bookmark's destination page.
// Bookmarks whose destination cannot be resolved are dropped and their
// children take their place.
func (s *PDFSource) Outline() (doctree.Outline, error) {
	if err := s.locked(); err != nil {
		return nil, err
	}
	var outline doctree.Outline
	err := guard(func() error {
		outline = s.outline()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	return outline, nil
}

func (s *PDFSource) outline() doctree.Outline {
	first := s.reader.Trailer().Key("Root").Key("Outlines").Key("First")
	if first.Kind() != pdflib.Dict {
		return doctree.Outline{}
	}

	type frame struct {
		item   pdflib.Value
		parent *headingNode
	}
	var root headingNode
	stack := []frame{{item: first, parent: &root}}
	steps := 0

	for len(stack) > 0 && steps < maxWalk {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Siblings attach in order; their children are walked later.
		for item := f.item; item.Kind() == pdflib.Dict && steps < maxWalk; item = item.Key("Next") {
			steps++
			page, ok := s.destPage(item)
			if !ok {
				page = doctree.Unresolved
			}
			node := &headingNode{title: item.Key("Title").Text(), page: page}
			f.parent.children = append(f.parent.children, node)
			if child := item.Key("First"); child.Kind() == pdflib.Dict {
				stack = append(stack, frame{item: child, parent: node})
			}
		}
	}
	return toOutline(root.children)
}

// destPage resolves an outline item's /Dest or GoTo action to a page index.
func (s *PDFSource) destPage(item pdflib.Value) (int, bool) {
	dest := item.Key("Dest")
	if dest.IsNull() {
		if a := item.Key("A"); a.Key("S").Name() == "GoTo" {
			dest = a.Key("D")
		}
	}
	// Named destinations may point at a dict holding /D; allow a few hops.
	for hop := 0; hop < 4; hop++ {
		switch dest.Kind() {
		case pdflib.Name:
			dest = s.namedDest(dest.Name())
		case pdflib.String:
			dest = s.namedDest(dest.RawString())
		case pdflib.Dict:
			dest = dest.Key("D")
		case pdflib.Array:
			return s.arrayDestPage(dest)
		default:
			return 0, false
		}
	}
	return 0, false
}

func (s *PDFSource) arrayDestPage(dest pdflib.Value) (int, bool) {
	if first := dest.Index(0); first.Kind() == pdflib.Integer {
		// Remote-style destination: already a page number.
		return int(first.Int64()), true
	}
	m := leadRef.FindStringSubmatch(dest.String())
	if m == nil {
		return 0, false
	}
	if s.pageIndex == nil {
		s.pageIndex = s.buildPageIndex()
	}
	page, ok := s.pageIndex[m[1]+" "+m[2]]
	return page, ok
}

// buildPageIndex maps each page object reference to its 0-based position
// in the page tree.
func (s *PDFSource) buildPageIndex() map[string]int {
	type frame struct {
		node pdflib.Value
		ref  string
	}
	index := make(map[string]int)
	stack := []frame{{node: s.reader.Trailer().Key("Root").Key("Pages")}}
	next := 0

	for steps := 0; len(stack) > 0 && steps < maxWalk; steps++ {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node.Key("Type").Name() != "Pages" {
			if f.ref != "" {
				index[f.ref] = next
			}
			next++
			continue
		}

		kids := f.node.Key("Kids")
		refs := objectRef.FindAllStringSubmatch(kids.String(), -1)
		if len(refs) != kids.Len() {
			// Inline kid dictionaries; positions still count.
			refs = nil
		}
		for i := kids.Len() - 1; i >= 0; i-- {
			var ref string
			if refs != nil {
				ref = refs[i][1] + " " + refs[i][2]
			}
			stack = append(stack, frame{node: kids.Index(i), ref: ref})
		}
	}
	return index
}

// namedDest looks a destination up in the catalog's /Dests dictionary or
// the /Names /Dests name tree.
func (s *PDFSource) namedDest(name string) pdflib.Value {
	if s.named == nil {
		s.named = s.buildNamedDests()
	}
	return s.named[name]
}

func (s *PDFSource) buildNamedDests() map[string]pdflib.Value {
	named := make(map[string]pdflib.Value)
	root := s.reader.Trailer().Key("Root")

	if dests := root.Key("Dests"); dests.Kind() == pdflib.Dict {
		for _, k := range dests.Keys() {
			named[k] = dests.Key(k)
		}
	}

	stack := []pdflib.Value{root.Key("Names").Key("Dests")}
	for steps := 0; len(stack) > 0 && steps < maxWalk; steps++ {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.Kind() != pdflib.Dict {
			continue
		}
		names := node.Key("Names")
		for i := 0; i+1 < names.Len(); i += 2 {
			named[names.Index(i).RawString()] = names.Index(i + 1)
		}
		kids := node.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			stack = append(stack, kids.Index(i))
		}
	}
	return named
}

// Close releases the underlying file.
func (s *PDFSource) Close() error {
	return s.file.Close()
}

// guard turns panics from the PDF reader on malformed input into errors.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return fn()
}
