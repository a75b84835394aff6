package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/filingdrift/internal/config"
	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/index"
	"github.com/dgallion1/filingdrift/internal/manifest"
	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/similarity"
	"github.com/dgallion1/filingdrift/internal/store"
	"github.com/dgallion1/filingdrift/internal/textnorm"
)

type runReport struct {
	Documents  []documentResult     `yaml:"documents,omitempty"`
	Similarity []*similarity.Report `yaml:"similarity,omitempty"`
}

type documentResult struct {
	Name        string              `yaml:"name,omitempty"`
	Path        string              `yaml:"path"`
	Ticker      string              `yaml:"ticker"`
	Category    string              `yaml:"category"`
	Date        string              `yaml:"date"`
	Indexed     int                 `yaml:"sections_indexed"`
	Failed      int                 `yaml:"sections_failed"`
	Error       string              `yaml:"error,omitempty"`
	Diagnostics doctree.Diagnostics `yaml:"diagnostics,omitempty"`
}

type sectionView struct {
	Title     string          `yaml:"title"`
	Level     int             `yaml:"level"`
	StartPage int             `yaml:"start_page"`
	EndPage   int             `yaml:"end_page"`
	Metrics   doctree.Metrics `yaml:"metrics,omitempty"`
	Text      string          `yaml:"text,omitempty"`
}

type documentView struct {
	Name            string `yaml:"name"`
	Ticker          string `yaml:"ticker"`
	Category        string `yaml:"category"`
	Date            string `yaml:"date"`
	Pages           int    `yaml:"pages"`
	SectionsIndexed int    `yaml:"sections_indexed"`
	SectionsFailed  int    `yaml:"sections_failed"`
}

type env struct {
	cfg config.Config
	db  *store.DB
	log *slog.Logger
}

// setup applies global flags over the environment configuration and opens
// the database.
func setup(c *cli.Context) (*env, error) {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: logLevel}))

	cfg := config.Load()
	if c.IsSet("db") {
		cfg.DatabasePath = c.String("db")
	}
	if c.IsSet("stem") {
		cfg.StemTokens = c.Bool("stem")
	}
	if c.IsSet("passphrase") {
		cfg.PDFPassphrase = c.String("passphrase")
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &env{cfg: cfg, db: db, log: logger}, nil
}

func IngestAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.db.Close()

	entries, err := manifest.Load(c.String("manifest"))
	if err != nil {
		return err
	}

	ix := index.NewIndexer(e.db, textnorm.New(e.cfg.StemTokens), index.Options{Passphrase: e.cfg.PDFPassphrase}, e.log)
	opts := parser.Options{FallbackPdftotext: e.cfg.PDFFallbackPdftotext}

	var (
		report  runReport
		tickers []string
		seen    = make(map[string]bool)
		failed  int
	)
	for _, entry := range entries {
		res := ingestOne(c.Context, ix, opts, entry)
		if res.Error != "" {
			e.log.Error("ingest failed", "path", entry.Path, "error", res.Error)
			failed++
		}
		report.Documents = append(report.Documents, res)
		if !seen[entry.Ticker] {
			seen[entry.Ticker] = true
			tickers = append(tickers, entry.Ticker)
		}
	}

	if c.Bool("compare") {
		eng := similarity.NewEngine(e.db, e.log)
		for _, t := range tickers {
			r, err := eng.Run(c.Context, t)
			if err != nil {
				return fmt.Errorf("compare %s: %w", t, err)
			}
			report.Similarity = append(report.Similarity, r)
		}
	}

	if err := printYAML(c.App.Writer, report); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d filings failed", failed, len(entries)), 1)
	}
	return nil
}

func ingestOne(ctx context.Context, ix *index.Indexer, opts parser.Options, entry manifest.Entry) documentResult {
	res := documentResult{
		Path:     entry.Path,
		Ticker:   entry.Ticker,
		Category: entry.Category,
		Date:     entry.Date,
	}

	src, err := parser.Open(entry.Path, opts)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer src.Close()

	if entry.Passphrase != "" && src.IsEncrypted() {
		if err := src.Decrypt(entry.Passphrase); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	out, err := ix.Index(ctx, src, entry.Identity(), entry.Path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Name = out.Document.Name
	res.Indexed = out.Indexed
	res.Failed = out.Failed
	res.Diagnostics = out.Diagnostics
	return res
}

func CompareAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.db.Close()

	var report runReport
	eng := similarity.NewEngine(e.db, e.log)
	for _, t := range c.StringSlice("ticker") {
		r, err := eng.Run(c.Context, t)
		if err != nil {
			return fmt.Errorf("compare %s: %w", t, err)
		}
		report.Similarity = append(report.Similarity, r)
	}
	return printYAML(c.App.Writer, report)
}

func DocumentsAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.db.Close()

	summaries, err := e.db.Summaries(c.Context, c.String("ticker"))
	if err != nil {
		return err
	}
	docs := make([]documentView, 0, len(summaries))
	for _, s := range summaries {
		docs = append(docs, documentView{
			Name:            s.Name,
			Ticker:          s.Identity.Ticker,
			Category:        s.Identity.Category,
			Date:            s.Identity.Date.Format("2006-01-02"),
			Pages:           s.TotalPages,
			SectionsIndexed: s.SectionsIndexed,
			SectionsFailed:  s.SectionsFailed,
		})
	}
	return printYAML(c.App.Writer, docs)
}

func SectionsAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.db.Close()

	rows, err := index.NewCatalog(e.db).Sections(c.Context, c.String("document"))
	if err != nil {
		return err
	}
	withText := c.Bool("text")
	out := make([]sectionView, 0, len(rows))
	for _, r := range rows {
		v := sectionView{
			Title:     r.Title,
			Level:     r.Level,
			StartPage: r.StartPage,
			EndPage:   r.EndPage,
			Metrics:   r.Metrics,
		}
		if withText {
			v.Text = r.Text
		}
		out = append(out, v)
	}
	return printYAML(c.App.Writer, out)
}

func SearchAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.db.Close()

	matches, err := index.NewCatalog(e.db).Search(c.Context, c.String("document"), c.StringSlice("q")...)
	if err != nil {
		return err
	}
	return printYAML(c.App.Writer, matches)
}

func printYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = w.Write(out)
	return err
}
