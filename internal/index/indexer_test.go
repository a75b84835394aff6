package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/stats"
	"github.com/dgallion1/filingdrift/internal/store"
	"github.com/dgallion1/filingdrift/internal/textnorm"
)

type fakeSource struct {
	outline   doctree.Outline
	pages     []string
	failPages map[int]bool
	calls     map[int]int

	encrypted  bool
	passphrase string
	unlocked   bool
}

func newFakeSource(outline doctree.Outline, n int) *fakeSource {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = fmt.Sprintf("Page %d revenue", i)
	}
	return &fakeSource{outline: outline, pages: pages, failPages: map[int]bool{}, calls: map[int]int{}}
}

func (f *fakeSource) Outline() (doctree.Outline, error) {
	if f.encrypted && !f.unlocked {
		return nil, &parser.EncryptedDocumentError{Path: "fake"}
	}
	return f.outline, nil
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) PageText(i int) (string, error) {
	f.calls[i]++
	if f.failPages[i] {
		return "", errors.New("corrupt content stream")
	}
	return f.pages[i], nil
}

func (f *fakeSource) IsEncrypted() bool { return f.encrypted }

func (f *fakeSource) Decrypt(pass string) error {
	if pass != f.passphrase {
		return errors.New("invalid password")
	}
	f.unlocked = true
	return nil
}

func (f *fakeSource) Close() error { return nil }

// A at 0 with children B at 2 and C at 5, then D at 9, over 12 pages.
func twoLevelOutline() doctree.Outline {
	return doctree.Outline{
		doctree.Leaf("A", 0),
		doctree.List(doctree.Leaf("B", 2), doctree.Leaf("C", 5)),
		doctree.Leaf("D", 9),
	}
}

func setupIndexer(t *testing.T, opts Options) (*Indexer, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewIndexer(db, textnorm.New(false), opts, log), db
}

func identity(year int) doctree.Identity {
	return doctree.Identity{Ticker: "XOM", Category: "10-K", Date: time.Date(year, 2, 26, 0, 0, 0, 0, time.UTC)}
}

func TestIndex_SectionsAndRanges(t *testing.T) {
	ix, db := setupIndexer(t, Options{})
	src := newFakeSource(twoLevelOutline(), 12)

	res, err := ix.Index(context.Background(), src, identity(2019), "/filings/xom-2019.pdf")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.Indexed != 4 || res.Failed != 0 {
		t.Fatalf("expected 4 indexed 0 failed, got %d/%d", res.Indexed, res.Failed)
	}

	rows, err := db.Sections(context.Background(), res.Document.Name)
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	want := map[string][2]int{"A": {0, 9}, "B": {2, 5}, "C": {5, 9}, "D": {9, 12}}
	for _, r := range rows {
		if got := [2]int{r.StartPage, r.EndPage}; got != want[r.Title] {
			t.Errorf("%s: range %v, want %v", r.Title, got, want[r.Title])
		}
		if len(r.Pages) != r.EndPage-r.StartPage {
			t.Errorf("%s: %d pages stored, want %d", r.Title, len(r.Pages), r.EndPage-r.StartPage)
		}
	}
	b, err := db.Section(context.Background(), res.Document.Name, "B")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if b.Pages[0] != "Page 2 revenue" || b.Text != "page revenue page revenue page revenue" {
		t.Errorf("unexpected section B: pages=%q text=%q", b.Pages, b.Text)
	}

	// Parent and children share pages; each page is read once.
	for i := 0; i < 12; i++ {
		if src.calls[i] != 1 {
			t.Errorf("page %d read %d times", i, src.calls[i])
		}
	}

	sum, err := db.Summary(context.Background(), res.Document.Name)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalPages != 12 || sum.SectionsIndexed != 4 || sum.SourcePath != "/filings/xom-2019.pdf" {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestIndex_EmptyOutline(t *testing.T) {
	ix, db := setupIndexer(t, Options{})
	src := newFakeSource(doctree.Outline{}, 3)

	res, err := ix.Index(context.Background(), src, identity(2019), "/filings/empty.pdf")
	if err != nil {
		t.Fatalf("expected no error for empty outline, got %v", err)
	}
	if res.Indexed != 0 || len(res.Document.Sections) != 0 {
		t.Errorf("expected zero sections, got %d", res.Indexed)
	}
	if _, err := db.Summary(context.Background(), res.Document.Name); err != nil {
		t.Errorf("expected summary row, got %v", err)
	}
	rows, err := db.Sections(context.Background(), res.Document.Name)
	if err != nil || len(rows) != 0 {
		t.Errorf("expected empty section table, got %d rows, %v", len(rows), err)
	}
}

func TestIndex_ExtractionFailureIsolated(t *testing.T) {
	latency := stats.NewLatency(time.Hour)
	ix, db := setupIndexer(t, Options{Latency: latency})
	src := newFakeSource(twoLevelOutline(), 12)
	src.failPages[6] = true

	res, err := ix.Index(context.Background(), src, identity(2019), "/filings/xom-2019.pdf")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	// Page 6 sits inside A (0-9) and C (5-9); B and D are unaffected.
	if res.Indexed != 2 || res.Failed != 2 {
		t.Fatalf("expected 2 indexed 2 failed, got %d/%d", res.Indexed, res.Failed)
	}
	if n := res.Diagnostics.Count(doctree.KindExtractionFailure); n != 2 {
		t.Fatalf("expected 2 extraction diagnostics, got %d", n)
	}
	var ef *ExtractionFailure
	if !errors.As(res.Diagnostics[0].Err, &ef) || ef.Page != 6 {
		t.Errorf("expected ExtractionFailure at page 6, got %v", res.Diagnostics[0].Err)
	}
	if res.Diagnostics[0].Document != res.Document.Name {
		t.Errorf("diagnostic not stamped with document name: %+v", res.Diagnostics[0])
	}

	rows, _ := db.Sections(context.Background(), res.Document.Name)
	if len(rows) != 2 || rows[0].Title != "B" || rows[1].Title != "D" {
		t.Errorf("expected B and D stored, got %+v", rows)
	}
	if src.calls[6] != 1 {
		t.Errorf("failed page should be cached, read %d times", src.calls[6])
	}

	snap := latency.Snapshot()
	if snap.Failures != 1 || snap.Count != 9 {
		t.Errorf("expected 9 page samples and 1 failure, got %+v", snap)
	}
}

func TestIndex_MalformedOutlineDiagnostics(t *testing.T) {
	ix, _ := setupIndexer(t, Options{})
	outline := doctree.Outline{doctree.Leaf("Late", 8), doctree.Leaf("Early", 2), doctree.Leaf("Beyond", 40)}
	src := newFakeSource(outline, 10)

	res, err := ix.Index(context.Background(), src, identity(2019), "/filings/odd.pdf")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n := res.Diagnostics.Count(doctree.KindMalformedOutline); n != 2 {
		t.Errorf("expected 2 malformed outline diagnostics, got %d: %v", n, res.Diagnostics)
	}
	for _, s := range res.Document.Sections {
		if s.EndPage < s.StartPage || s.EndPage > 10 {
			t.Errorf("section %s has bad range [%d,%d)", s.Title, s.StartPage, s.EndPage)
		}
	}
}

func TestIndex_DuplicateTitleLaterWins(t *testing.T) {
	ix, db := setupIndexer(t, Options{})
	outline := doctree.Outline{doctree.Leaf("Risk Factors", 0), doctree.Leaf("Risk Factors", 3)}
	src := newFakeSource(outline, 5)

	res, err := ix.Index(context.Background(), src, identity(2019), "/filings/dup.pdf")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.Indexed != 1 || res.Diagnostics.Count(doctree.KindDuplicateTitle) != 1 {
		t.Fatalf("expected 1 indexed section and a duplicate diagnostic, got %d, %v", res.Indexed, res.Diagnostics)
	}
	row, err := db.Section(context.Background(), res.Document.Name, "Risk Factors")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if row.StartPage != 3 {
		t.Errorf("expected later duplicate (page 3), got start %d", row.StartPage)
	}
}

func TestIndex_Encrypted(t *testing.T) {
	src := newFakeSource(twoLevelOutline(), 12)
	src.encrypted = true
	src.passphrase = "s3cret"

	ix, _ := setupIndexer(t, Options{Passphrase: "wrong"})
	_, err := ix.Index(context.Background(), src, identity(2019), "/filings/locked.pdf")
	var enc *parser.EncryptedDocumentError
	if !errors.As(err, &enc) {
		t.Fatalf("expected EncryptedDocumentError, got %v", err)
	}

	ix, _ = setupIndexer(t, Options{Passphrase: "s3cret"})
	res, err := ix.Index(context.Background(), src, identity(2019), "/filings/locked.pdf")
	if err != nil {
		t.Fatalf("Index with passphrase: %v", err)
	}
	if res.Indexed != 4 {
		t.Errorf("expected 4 sections, got %d", res.Indexed)
	}
}

func TestIndex_FailedSummaryRollsBack(t *testing.T) {
	ix, db := setupIndexer(t, Options{})
	ctx := context.Background()
	if _, err := ix.Index(ctx, newFakeSource(twoLevelOutline(), 12), identity(2019), "/filings/xom-2019.pdf"); err != nil {
		t.Fatalf("first Index: %v", err)
	}

	// The summary insert fails only after the section table was written.
	_, err := db.ExecContext(ctx, `
		CREATE TRIGGER reject_2020 BEFORE INSERT ON summary
		WHEN NEW.filing_date LIKE '2020-%'
		BEGIN SELECT RAISE(ABORT, 'summary rejected'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := ix.Index(ctx, newFakeSource(twoLevelOutline(), 12), identity(2020), "/filings/xom-2020.pdf"); err == nil {
		t.Fatal("expected rejected summary to fail the document")
	}
	if _, err := db.Sections(ctx, store.TableName(identity(2020))); !store.IsNotFound(err) {
		t.Errorf("expected no section table for failed document, got %v", err)
	}
	if _, err := db.Sections(ctx, store.TableName(identity(2019))); err != nil {
		t.Errorf("first document should be intact: %v", err)
	}
}

func TestIndex_SameSourceTwoFilings(t *testing.T) {
	ix, db := setupIndexer(t, Options{})
	ctx := context.Background()
	for _, year := range []int{2018, 2019} {
		if _, err := ix.Index(ctx, newFakeSource(twoLevelOutline(), 12), identity(year), "/filings/shared.pdf"); err != nil {
			t.Fatalf("Index %d: %v", year, err)
		}
	}
	for _, year := range []int{2018, 2019} {
		rows, err := db.Sections(ctx, store.TableName(identity(year)))
		if err != nil || len(rows) != 4 {
			t.Errorf("%d: expected 4 sections, got %d (%v)", year, len(rows), err)
		}
	}
}

func TestIndex_ReingestReplacesSections(t *testing.T) {
	ix, db := setupIndexer(t, Options{})
	ctx := context.Background()
	if _, err := ix.Index(ctx, newFakeSource(twoLevelOutline(), 12), identity(2019), "/filings/x.pdf"); err != nil {
		t.Fatalf("first Index: %v", err)
	}
	src := newFakeSource(doctree.Outline{doctree.Leaf("Only", 0)}, 2)
	res, err := ix.Index(ctx, src, identity(2019), "/filings/x-amended.pdf")
	if err != nil {
		t.Fatalf("second Index: %v", err)
	}
	rows, _ := db.Sections(ctx, res.Document.Name)
	if len(rows) != 1 || rows[0].Title != "Only" {
		t.Errorf("expected only the new outline's section, got %+v", rows)
	}
}

func TestIndex_CanceledContext(t *testing.T) {
	ix, _ := setupIndexer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.Index(ctx, newFakeSource(twoLevelOutline(), 12), identity(2019), "/x.pdf"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
