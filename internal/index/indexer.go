// Package index extracts section text from a source and persists it, one
// transaction per document.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/stats"
	"github.com/dgallion1/filingdrift/internal/store"
	"github.com/dgallion1/filingdrift/internal/textnorm"
	"github.com/dgallion1/filingdrift/internal/toc"
)

// ExtractionFailure reports a section left out because one of its pages
// could not be read.
type ExtractionFailure struct {
	Title string
	Page  int
	Err   error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extract %q: page %d: %v", e.Title, e.Page, e.Err)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// Store is the write side the indexer needs.
type Store interface {
	InTx(ctx context.Context, fn func(w *store.Writer) error) error
}

// Options configure an Indexer.
type Options struct {
	// Passphrase is tried on encrypted sources.
	Passphrase string
	// Latency, if set, receives one sample per extracted page.
	Latency *stats.Latency
}

// Result summarizes one indexed document.
type Result struct {
	Document    *doctree.Document   `json:"document"`
	Indexed     int                 `json:"sections_indexed"`
	Failed      int                 `json:"sections_failed"`
	Diagnostics doctree.Diagnostics `json:"diagnostics"`
}

// Indexer turns a source's outline into stored sections.
type Indexer struct {
	store Store
	norm  *textnorm.Normalizer
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

func NewIndexer(s Store, norm *textnorm.Normalizer, opts Options, log *slog.Logger) *Indexer {
	if norm == nil {
		norm = textnorm.New(false)
	}
	return &Indexer{store: s, norm: norm, opts: opts, log: log, now: time.Now}
}

// Index extracts every section of src and writes the sections plus a
// summary row. Only source-level failures (decrypt, outline) and storage
// failures are returned as errors; a section whose pages cannot be read is
// reported in Result.Diagnostics and skipped.
func (ix *Indexer) Index(ctx context.Context, src parser.Source, id doctree.Identity, sourcePath string) (*Result, error) {
	name := store.TableName(id)
	log := ix.log.With("doc", name, "ticker", id.Ticker)

	if src.IsEncrypted() {
		if err := src.Decrypt(ix.opts.Passphrase); err != nil {
			var enc *parser.EncryptedDocumentError
			if !errors.As(err, &enc) {
				err = &parser.EncryptedDocumentError{Path: sourcePath, Err: err}
			}
			return nil, err
		}
	}

	outline, err := src.Outline()
	if err != nil {
		return nil, fmt.Errorf("read outline of %s: %w", sourcePath, err)
	}
	total := src.PageCount()
	entries, diags := toc.Resolve(toc.Flatten(outline), total)

	doc := &doctree.Document{
		Identity:   id,
		Name:       name,
		SourcePath: sourcePath,
		TotalPages: total,
	}
	pages := newPageCache(src, ix.opts.Latency)
	failed := 0

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := pages.span(e.StartPage, e.EndPage)
		if err != nil {
			failure := &ExtractionFailure{Title: e.Title, Page: e.StartPage, Err: err}
			var pe *pageError
			if errors.As(err, &pe) {
				failure.Page, failure.Err = pe.page, pe.err
			}
			diags.Add(doctree.KindExtractionFailure, e.Title, failure)
			log.Warn("section extraction failed", "section", e.Title, "page", failure.Page, "error", failure.Err)
			failed++
			continue
		}

		s := doctree.Section{Entry: e, Pages: text, Text: ix.norm.Normalize(text)}
		if doc.AddSection(s) {
			diags.Add(doctree.KindDuplicateTitle, e.Title,
				fmt.Errorf("title appears more than once, later section at page %d replaces earlier", e.StartPage))
		}
	}

	indexed := len(doc.Indexed())
	err = ix.store.InTx(ctx, func(w *store.Writer) error {
		if err := w.DropSectionTable(ctx, name); err != nil {
			return err
		}
		if err := w.CreateSectionTable(ctx, name); err != nil {
			return err
		}
		for i, s := range doc.Sections {
			if err := w.UpsertSection(ctx, name, i, s); err != nil {
				return err
			}
		}
		return w.UpsertSummary(ctx, store.Summary{
			Name:            name,
			Identity:        id,
			SourcePath:      sourcePath,
			TotalPages:      total,
			SectionsIndexed: indexed,
			SectionsFailed:  failed,
			IngestedAt:      ix.now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}

	diags = diags.WithDocument(name)
	log.Info("document indexed",
		"pages", total,
		"entries", len(entries),
		"indexed", indexed,
		"failed", failed,
		"diagnostics", len(diags),
	)
	return &Result{Document: doc, Indexed: indexed, Failed: failed, Diagnostics: diags}, nil
}
