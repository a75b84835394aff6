package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

// Source is an opened filing: a bookmark tree plus per-page text.
// Page indices are 0-based.
type Source interface {
	Outline() (doctree.Outline, error)
	PageCount() int
	PageText(i int) (string, error)
	IsEncrypted() bool
	Decrypt(passphrase string) error
	Close() error
}

// EncryptedDocumentError is returned when a source is encrypted and no
// passphrase unlocks it.
type EncryptedDocumentError struct {
	Path string
	Err  error
}

func (e *EncryptedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encrypted document %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("encrypted document %s", e.Path)
}

func (e *EncryptedDocumentError) Unwrap() error { return e.Err }

// ErrPageOutOfRange is returned by PageText for an index outside the source.
var ErrPageOutOfRange = errors.New("page out of range")

// Options tune how sources are opened.
type Options struct {
	// FallbackPdftotext retries failed PDF pages with the pdftotext binary.
	FallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Open opens the file at path with the source matching its extension.
func Open(path string, opts Options) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return OpenPDF(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch ext {
	case ".txt":
		return NewTextSource(f)
	case ".md", ".markdown":
		return NewMarkdownSource(f)
	case ".html", ".htm":
		return NewHTMLSource(f)
	case ".docx":
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		return NewDOCXSource(f, fi.Size())
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
