package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

// SectionRow is one persisted section with its drift metrics.
type SectionRow struct {
	doctree.Section
	Position int             `json:"position"`
	Metrics  doctree.Metrics `json:"metrics"`
}

// Writer performs the write half of the persistence capability, either
// inside a transaction (DB.InTx) or auto-committing (DB.Writer).
type Writer struct {
	ex execer
}

// CreateSectionTable creates the section table for a document.
func (w *Writer) CreateSectionTable(ctx context.Context, table string) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	if _, err := w.ex.ExecContext(ctx, fmt.Sprintf(sectionTableDDL, quoted)); err != nil {
		return fmt.Errorf("failed to create section table %s: %w", table, err)
	}
	return nil
}

// DropSectionTable removes a document's section table if it exists, so a
// re-ingested filing does not keep sections its new outline no longer has.
func (w *Writer) DropSectionTable(ctx context.Context, table string) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	if _, err := w.ex.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop section table %s: %w", table, err)
	}
	return nil
}

// UpsertSection inserts a section or replaces the row with the same title.
// Replacing clears previously computed metrics.
func (w *Writer) UpsertSection(ctx context.Context, table string, position int, s doctree.Section) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	pages := s.Pages
	if pages == nil {
		pages = []string{}
	}
	pageJSON, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("failed to encode page text: %w", err)
	}

	_, err = w.ex.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (section, position, nesting_level, start_page, end_page, page_text, section_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(section) DO UPDATE SET
			position = excluded.position,
			nesting_level = excluded.nesting_level,
			start_page = excluded.start_page,
			end_page = excluded.end_page,
			page_text = excluded.page_text,
			section_text = excluded.section_text,
			cosine_similarity = NULL,
			jaccard_similarity = NULL,
			min_edit_distance = NULL
	`, quoted), s.Title, position, s.Level, s.StartPage, s.EndPage, string(pageJSON), s.Text)
	if err != nil {
		return fmt.Errorf("failed to upsert section %q: %w", s.Title, err)
	}
	return nil
}

// SetSectionMetrics writes metrics onto a section row. Fractional values are
// rounded to three decimals here and nowhere else. Nil metrics are stored as
// NULL.
func (w *Writer) SetSectionMetrics(ctx context.Context, table, title string, m doctree.Metrics) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	res, err := w.ex.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET cosine_similarity = ?, jaccard_similarity = ?, min_edit_distance = ?
		WHERE section = ?
	`, quoted), roundedOrNull(m.Cosine), roundedOrNull(m.Jaccard), intOrNull(m.EditDistance), title)
	if err != nil {
		return fmt.Errorf("failed to set metrics for %q: %w", title, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("section %q in %s: %w", title, table, ErrNotFound)
	}
	return nil
}

const sectionColumns = `section, position, nesting_level, start_page, end_page, page_text, section_text,
	cosine_similarity, jaccard_similarity, min_edit_distance`

// Sections returns every section of a document in document order.
func (db *DB) Sections(ctx context.Context, table string) ([]SectionRow, error) {
	quoted, err := db.existingTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return querySections(ctx, db.DB, fmt.Sprintf("SELECT %s FROM %s ORDER BY position", sectionColumns, quoted))
}

// SectionsByKeyword returns sections whose title contains keyword,
// ignoring case, in document order.
func (db *DB) SectionsByKeyword(ctx context.Context, table, keyword string) ([]SectionRow, error) {
	quoted, err := db.existingTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return querySections(ctx, db.DB,
		fmt.Sprintf("SELECT %s FROM %s WHERE instr(lower(section), lower(?)) > 0 ORDER BY position", sectionColumns, quoted),
		keyword)
}

// Section returns the section with exactly the given title.
func (db *DB) Section(ctx context.Context, table, title string) (*SectionRow, error) {
	quoted, err := db.existingTable(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := querySections(ctx, db.DB,
		fmt.Sprintf("SELECT %s FROM %s WHERE section = ?", sectionColumns, quoted), title)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("section %q in %s: %w", title, table, ErrNotFound)
	}
	return &rows[0], nil
}

// SetSectionMetrics is the auto-committing form of Writer.SetSectionMetrics.
func (db *DB) SetSectionMetrics(ctx context.Context, table, title string, m doctree.Metrics) error {
	return db.Writer().SetSectionMetrics(ctx, table, title, m)
}

func (db *DB) existingTable(ctx context.Context, table string) (string, error) {
	quoted, err := quoteTable(table)
	if err != nil {
		return "", fmt.Errorf("document %q: %w", table, ErrNotFound)
	}
	ok, err := tableExists(ctx, db.DB, table)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("document %q: %w", table, ErrNotFound)
	}
	return quoted, nil
}

func querySections(ctx context.Context, ex execer, query string, args ...any) ([]SectionRow, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var out []SectionRow
	for rows.Next() {
		var (
			row      SectionRow
			pageJSON string
			cosine   sql.NullFloat64
			jaccard  sql.NullFloat64
			edit     sql.NullInt64
		)
		if err := rows.Scan(&row.Title, &row.Position, &row.Level, &row.StartPage, &row.EndPage,
			&pageJSON, &row.Text, &cosine, &jaccard, &edit); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if err := json.Unmarshal([]byte(pageJSON), &row.Pages); err != nil {
			return nil, fmt.Errorf("failed to decode page text for %q: %w", row.Title, err)
		}
		row.Metrics = metricsFromNull(cosine, jaccard, edit)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sections: %w", err)
	}
	return out, nil
}

func metricsFromNull(cosine, jaccard sql.NullFloat64, edit sql.NullInt64) doctree.Metrics {
	var m doctree.Metrics
	if cosine.Valid {
		v := cosine.Float64
		m.Cosine = &v
	}
	if jaccard.Valid {
		v := jaccard.Float64
		m.Jaccard = &v
	}
	if edit.Valid {
		v := int(edit.Int64)
		m.EditDistance = &v
	}
	return m
}

// Round3 rounds to three decimal places.
func Round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func roundedOrNull(f *float64) any {
	if f == nil {
		return nil
	}
	return Round3(*f)
}

func intOrNull(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
