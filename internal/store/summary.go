package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

const dateLayout = "2006-01-02"

// Summary is one row of the document summary table.
type Summary struct {
	Name            string           `json:"name"`
	Identity        doctree.Identity `json:"identity"`
	SourcePath      string           `json:"source_path"`
	TotalPages      int              `json:"total_pages"`
	SectionsIndexed int              `json:"sections_indexed"`
	SectionsFailed  int              `json:"sections_failed"`
	IngestedAt      time.Time        `json:"ingested_at"`
}

// TickerDocument is one row of the per-ticker view, with whole-document
// drift against the filing it was compared with.
type TickerDocument struct {
	Name         string           `json:"name"`
	Identity     doctree.Identity `json:"identity"`
	ComparedWith string           `json:"compared_with,omitempty"`
	Metrics      doctree.Metrics  `json:"metrics"`
}

// UpsertSummary writes the summary row for a document.
func (w *Writer) UpsertSummary(ctx context.Context, s Summary) error {
	ingested := s.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now()
	}
	_, err := w.ex.ExecContext(ctx, `
		INSERT INTO summary (name, ticker, category, filing_date, source_path, total_pages,
			sections_indexed, sections_failed, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source_path = excluded.source_path,
			total_pages = excluded.total_pages,
			sections_indexed = excluded.sections_indexed,
			sections_failed = excluded.sections_failed,
			ingested_at = excluded.ingested_at
	`, s.Name, s.Identity.Ticker, s.Identity.Category, s.Identity.Date.Format(dateLayout),
		s.SourcePath, s.TotalPages, s.SectionsIndexed, s.SectionsFailed,
		ingested.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert summary %s: %w", s.Name, err)
	}
	return nil
}

// SetDocumentMetrics records whole-document drift on the per-ticker row.
func (w *Writer) SetDocumentMetrics(ctx context.Context, name, comparedWith string, m doctree.Metrics) error {
	res, err := w.ex.ExecContext(ctx, `
		UPDATE ticker_documents
		SET compared_with = ?, cosine_similarity = ?, jaccard_similarity = ?, min_edit_distance = ?
		WHERE name = ?
	`, comparedWith, roundedOrNull(m.Cosine), roundedOrNull(m.Jaccard), intOrNull(m.EditDistance), name)
	if err != nil {
		return fmt.Errorf("failed to set document metrics for %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ticker document %s: %w", name, ErrNotFound)
	}
	return nil
}

// SetDocumentMetrics is the auto-committing form of Writer.SetDocumentMetrics.
func (db *DB) SetDocumentMetrics(ctx context.Context, name, comparedWith string, m doctree.Metrics) error {
	return db.Writer().SetDocumentMetrics(ctx, name, comparedWith, m)
}

// RefreshTicker rebuilds the per-ticker rows from the summary table.
// Existing metrics are kept for documents that are still present.
func (db *DB) RefreshTicker(ctx context.Context, ticker string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ticker_documents (name, ticker, category, filing_date)
		SELECT name, ticker, category, filing_date FROM summary WHERE ticker = ?
		ON CONFLICT(name) DO UPDATE SET
			ticker = excluded.ticker,
			category = excluded.category,
			filing_date = excluded.filing_date
	`, ticker)
	if err != nil {
		return fmt.Errorf("failed to refresh ticker %s: %w", ticker, err)
	}
	return nil
}

// DocumentsForTicker returns the per-ticker rows ordered by filing date,
// then name.
func (db *DB) DocumentsForTicker(ctx context.Context, ticker string) ([]TickerDocument, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, ticker, category, filing_date, compared_with,
			cosine_similarity, jaccard_similarity, min_edit_distance
		FROM ticker_documents
		WHERE ticker = ?
		ORDER BY filing_date, name
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticker documents: %w", err)
	}
	defer rows.Close()

	var out []TickerDocument
	for rows.Next() {
		var (
			d        TickerDocument
			date     string
			compared sql.NullString
			cosine   sql.NullFloat64
			jaccard  sql.NullFloat64
			edit     sql.NullInt64
		)
		if err := rows.Scan(&d.Name, &d.Identity.Ticker, &d.Identity.Category, &date, &compared,
			&cosine, &jaccard, &edit); err != nil {
			return nil, fmt.Errorf("failed to scan ticker document: %w", err)
		}
		if d.Identity.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("bad filing date %q for %s: %w", date, d.Name, err)
		}
		d.ComparedWith = compared.String
		d.Metrics = metricsFromNull(cosine, jaccard, edit)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Summary returns the summary row for a document.
func (db *DB) Summary(ctx context.Context, name string) (*Summary, error) {
	rows, err := db.querySummaries(ctx, "WHERE name = ?", name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("document %s: %w", name, ErrNotFound)
	}
	return &rows[0], nil
}

// Summaries returns every summary row, optionally filtered by ticker.
func (db *DB) Summaries(ctx context.Context, ticker string) ([]Summary, error) {
	if ticker == "" {
		return db.querySummaries(ctx, "")
	}
	return db.querySummaries(ctx, "WHERE ticker = ?", ticker)
}

func (db *DB) querySummaries(ctx context.Context, where string, args ...any) ([]Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, ticker, category, filing_date, source_path, total_pages,
			sections_indexed, sections_failed, ingested_at
		FROM summary `+where+`
		ORDER BY ticker, filing_date, name
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s              Summary
			date, ingested string
		)
		if err := rows.Scan(&s.Name, &s.Identity.Ticker, &s.Identity.Category, &date, &s.SourcePath,
			&s.TotalPages, &s.SectionsIndexed, &s.SectionsFailed, &ingested); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if s.Identity.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("bad filing date %q for %s: %w", date, s.Name, err)
		}
		// ingested_at is informational; tolerate rows written by hand.
		s.IngestedAt, _ = time.Parse(time.RFC3339, ingested)
		out = append(out, s)
	}
	return out, rows.Err()
}
