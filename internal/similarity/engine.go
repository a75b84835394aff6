package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/store"
)

// ErrNoPredecessor means a filing has no same-category filing dated one
// year earlier. It is an expected condition, not a failure.
var ErrNoPredecessor = errors.New("no prior-year filing")

// Store is the persistence the engine reads pairs from and writes scores to.
type Store interface {
	RefreshTicker(ctx context.Context, ticker string) error
	DocumentsForTicker(ctx context.Context, ticker string) ([]store.TickerDocument, error)
	Sections(ctx context.Context, table string) ([]store.SectionRow, error)
	InTx(ctx context.Context, fn func(w *store.Writer) error) error
}

// SectionScore is the drift of one shared section.
type SectionScore struct {
	Title   string          `json:"title" yaml:"title"`
	Metrics doctree.Metrics `json:"metrics" yaml:"metrics"`
}

// PairReport is the outcome of scoring one filing against its predecessor.
type PairReport struct {
	Current  string          `json:"current" yaml:"current"`
	Previous string          `json:"previous" yaml:"previous"`
	Scored   int             `json:"sections_scored" yaml:"sections_scored"`
	Skipped  int             `json:"sections_skipped" yaml:"sections_skipped"`
	Sections []SectionScore  `json:"sections" yaml:"sections,omitempty"`
	Document doctree.Metrics `json:"document" yaml:"document"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the outcome of a similarity run for one ticker.
type Report struct {
	Ticker        string              `json:"ticker" yaml:"ticker"`
	Pairs         []PairReport        `json:"pairs" yaml:"pairs"`
	NoPredecessor []string            `json:"no_predecessor" yaml:"no_predecessor"`
	Diagnostics   doctree.Diagnostics `json:"diagnostics" yaml:"diagnostics,omitempty"`
}

// Engine pairs each filing of a ticker with its prior-year filing and
// persists section and whole-document drift onto the prior-year filing.
type Engine struct {
	store Store
	log   *slog.Logger
}

func NewEngine(s Store, log *slog.Logger) *Engine {
	return &Engine{store: s, log: log}
}

// FindPredecessor returns the first filing in docs with the same category
// as d, dated in the year before d's. docs must be ordered by date, then
// name.
func FindPredecessor(docs []store.TickerDocument, d store.TickerDocument) (store.TickerDocument, error) {
	want := d.Identity.Date.Year() - 1
	for _, p := range docs {
		if p.Identity.Category == d.Identity.Category && p.Identity.Date.Year() == want {
			return p, nil
		}
	}
	return store.TickerDocument{}, fmt.Errorf("%s: %w", d.Name, ErrNoPredecessor)
}

// Run scores every filing of ticker that has a predecessor. Failures local
// to a section or a pair are recorded in the report; only failing to list
// the ticker's filings is returned as an error.
func (e *Engine) Run(ctx context.Context, ticker string) (*Report, error) {
	log := e.log.With("ticker", ticker)

	if err := e.store.RefreshTicker(ctx, ticker); err != nil {
		return nil, err
	}
	docs, err := e.store.DocumentsForTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	report := &Report{Ticker: ticker, Pairs: []PairReport{}, NoPredecessor: []string{}}
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := FindPredecessor(docs, d)
		if errors.Is(err, ErrNoPredecessor) {
			report.NoPredecessor = append(report.NoPredecessor, d.Name)
			report.Diagnostics = append(report.Diagnostics, doctree.Diagnostic{
				Kind: doctree.KindNoPredecessor, Document: d.Name, Message: err.Error(), Err: err,
			})
			continue
		}

		pair, diags := e.scorePair(ctx, d, p)
		report.Pairs = append(report.Pairs, pair)
		report.Diagnostics = append(report.Diagnostics, diags...)
		if pair.Error != "" {
			log.Error("pair scoring failed", "current", d.Name, "previous", p.Name, "error", pair.Error)
			continue
		}
		log.Info("pair scored", "current", d.Name, "previous", p.Name, "scored", pair.Scored, "skipped", pair.Skipped)
	}
	return report, nil
}

func (e *Engine) scorePair(ctx context.Context, d, p store.TickerDocument) (PairReport, doctree.Diagnostics) {
	pair := PairReport{Current: d.Name, Previous: p.Name, Sections: []SectionScore{}}

	dSecs, err := e.store.Sections(ctx, d.Name)
	if err != nil {
		pair.Error = err.Error()
		return pair, nil
	}
	pSecs, err := e.store.Sections(ctx, p.Name)
	if err != nil {
		pair.Error = err.Error()
		return pair, nil
	}

	scores, skipped, diags := CompareSections(dSecs, pSecs)
	pair.Sections = scores
	pair.Scored = len(scores)
	pair.Skipped = skipped

	docMetrics, errs := Score(concatTokens(dSecs), concatTokens(pSecs))
	for _, err := range errs {
		diags.Add(doctree.KindComputationFailed, "", err)
	}
	pair.Document = docMetrics
	diags = diags.WithDocument(d.Name)

	err = e.store.InTx(ctx, func(w *store.Writer) error {
		for _, s := range scores {
			if err := w.SetSectionMetrics(ctx, p.Name, s.Title, s.Metrics); err != nil {
				return err
			}
		}
		return w.SetDocumentMetrics(ctx, p.Name, d.Name, docMetrics)
	})
	if err != nil {
		pair.Error = fmt.Sprintf("persist scores: %v", err)
	}
	return pair, diags
}

// CompareSections scores the titles current and previous share, in
// current's order. A section with no text on either side is skipped.
func CompareSections(current, previous []store.SectionRow) ([]SectionScore, int, doctree.Diagnostics) {
	var diags doctree.Diagnostics
	prevByTitle := make(map[string]store.SectionRow, len(previous))
	for _, s := range previous {
		prevByTitle[s.Title] = s
	}

	scores := []SectionScore{}
	skipped := 0
	for _, cur := range current {
		prev, ok := prevByTitle[cur.Title]
		if !ok {
			continue
		}
		if strings.TrimSpace(cur.Text) == "" || strings.TrimSpace(prev.Text) == "" {
			diags.Add(doctree.KindSectionSkipped, cur.Title, errors.New("no text in one of the filings"))
			skipped++
			continue
		}

		m, errs := Score(Tokens(cur.Text), Tokens(prev.Text))
		for _, err := range errs {
			diags.Add(doctree.KindComputationFailed, cur.Title, err)
		}
		scores = append(scores, SectionScore{Title: cur.Title, Metrics: m})
	}
	return scores, skipped, diags
}

func concatTokens(sections []store.SectionRow) []string {
	var out []string
	for _, s := range sections {
		out = append(out, Tokens(s.Text)...)
	}
	return out
}
