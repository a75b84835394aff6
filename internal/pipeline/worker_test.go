package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/filingdrift/internal/config"
	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/index"
	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/similarity"
	"github.com/dgallion1/filingdrift/internal/store"
	"github.com/dgallion1/filingdrift/internal/textnorm"
)

const filing2018 = `Annual report cover.

Item 1. Business
We explore for and produce crude oil.

Item 1A. Risk Factors
Oil prices are volatile and may fall.
`

const filing2019 = `Annual report cover.

Item 1. Business
We explore for and produce crude oil and natural gas.

Item 1A. Risk Factors
Oil prices are volatile and may fall.

Item 7. Management's Discussion
Earnings rose.
`

func testWorker(t *testing.T) (*Worker, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ix := index.NewIndexer(db, textnorm.New(false), index.Options{}, log)
	eng := similarity.NewEngine(db, log)
	return NewWorker(ix, eng, parser.Options{}, log), db
}

func writeFiling(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func identity(year int) doctree.Identity {
	return doctree.Identity{Ticker: "XOM", Category: "10-K", Date: time.Date(year, 2, 28, 0, 0, 0, 0, time.UTC)}
}

func TestWorker_IngestAndScore(t *testing.T) {
	w, db := testWorker(t)
	ctx := context.Background()
	dir := t.TempDir()

	for year, content := range map[int]string{2018: filing2018, 2019: filing2019} {
		name := fmt.Sprintf("xom-%d.txt", year)
		job := NewIngestJob(writeFiling(t, dir, name, content), name, identity(year), "")
		w.Process(ctx, job)

		snap := job.Snapshot()
		if snap.Status != StatusCompleted {
			t.Fatalf("ingest %d: status %s, errors %v", year, snap.Status, snap.Progress.Errors)
		}
		if snap.Document != store.TableName(identity(year)) {
			t.Errorf("ingest %d: unexpected document %q", year, snap.Document)
		}
	}

	job := NewSimilarityJob("XOM")
	w.Process(ctx, job)
	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("similarity: status %s, errors %v", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.PairsScored != 1 || len(snap.Progress.NoPredecessor) != 1 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}

	risk, err := db.Section(ctx, store.TableName(identity(2018)), "Item 1A. Risk Factors")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if risk.Metrics.Jaccard == nil || *risk.Metrics.Jaccard != 1 {
		t.Errorf("expected unchanged risk factors, got %+v", risk.Metrics)
	}
	business, _ := db.Section(ctx, store.TableName(identity(2018)), "Item 1. Business")
	if business.Metrics.Jaccard == nil || *business.Metrics.Jaccard >= 1 {
		t.Errorf("expected drift in business section, got %+v", business.Metrics)
	}
	report := job.Report()
	if report == nil || len(report.Pairs) != 1 || report.Pairs[0].Scored != 2 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestWorker_IngestFailures(t *testing.T) {
	w, _ := testWorker(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.txt")},
		{"unsupported extension", writeFiling(t, dir, "filing.xls", "data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewIngestJob(tt.path, filepath.Base(tt.path), identity(2019), "")
			w.Process(context.Background(), job)
			snap := job.Snapshot()
			if snap.Status != StatusFailed || len(snap.Progress.Errors) == 0 {
				t.Errorf("expected failed job with errors, got %+v", snap)
			}
		})
	}
}

func TestOrchestrator_RunsQueuedJobs(t *testing.T) {
	w, _ := testWorker(t)
	dir := t.TempDir()
	cfg := config.Config{MaxQueueSize: 4, JobTTL: time.Hour}
	orch := NewOrchestrator(cfg, w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	orch.Start(context.Background())
	defer orch.Stop()

	ingest := NewIngestJob(writeFiling(t, dir, "xom.txt", filing2019), "xom.txt", identity(2019), "")
	score := NewSimilarityJob("XOM")
	for _, j := range []*Job{ingest, score} {
		if err := orch.Submit(j); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for !orch.GetJob(score.ID).Snapshot().Done() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for similarity job")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if s := orch.GetJob(ingest.ID).Snapshot(); s.Status != StatusCompleted {
		t.Errorf("ingest job: %+v", s)
	}
	s := orch.GetJob(score.ID).Snapshot()
	if s.Status != StatusCompleted || s.Progress.PairsScored != 0 || len(s.Progress.NoPredecessor) != 1 {
		t.Errorf("similarity job: %+v", s)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	w, _ := testWorker(t)
	orch := NewOrchestrator(config.Config{MaxQueueSize: 1, JobTTL: time.Hour}, w, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Not started: the first job fills the queue.
	if err := orch.Submit(NewSimilarityJob("XOM")); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second := NewSimilarityJob("CVX")
	if err := orch.Submit(second); err == nil {
		t.Fatal("expected queue full error")
	}
	if second.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %s", second.Snapshot().Status)
	}
	if orch.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", orch.QueueDepth())
	}
}
