package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/index"
	"github.com/dgallion1/filingdrift/internal/parser"
	"github.com/dgallion1/filingdrift/internal/similarity"
)

// Worker runs one job at a time.
type Worker struct {
	indexer    *index.Indexer
	engine     *similarity.Engine
	parserOpts parser.Options
	log        *slog.Logger
}

func NewWorker(ix *index.Indexer, eng *similarity.Engine, opts parser.Options, log *slog.Logger) *Worker {
	return &Worker{indexer: ix, engine: eng, parserOpts: opts, log: log}
}

// Process runs a job to a terminal status.
func (w *Worker) Process(ctx context.Context, job *Job) {
	switch job.Kind {
	case KindIngest:
		w.ingest(ctx, job)
	case KindSimilarity:
		w.score(ctx, job)
	default:
		job.AddError(fmt.Sprintf("unknown job kind %q", job.Kind))
		job.SetStatus(StatusFailed, "queued")
	}
}

func (w *Worker) ingest(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "ticker", job.Ticker, "file", job.Filename)

	job.SetStatus(StatusExtracting, "opening source")
	src, err := parser.Open(job.sourcePath, w.parserOpts)
	if err != nil {
		log.Error("open failed", "error", err)
		job.AddError(fmt.Sprintf("open: %s", err))
		job.SetStatus(StatusFailed, "opening source")
		return
	}
	defer src.Close()

	if job.passphrase != "" && src.IsEncrypted() {
		if err := src.Decrypt(job.passphrase); err != nil {
			log.Error("decrypt failed", "error", err)
			job.AddError(err.Error())
			job.SetStatus(StatusFailed, "decrypting")
			return
		}
	}

	job.SetStatus(StatusIndexing, "indexing sections")
	res, err := w.indexer.Index(ctx, src, job.identity, job.sourcePath)
	if err != nil {
		log.Error("index failed", "error", err)
		job.AddError(fmt.Sprintf("index: %s", err))
		job.SetStatus(StatusFailed, "indexing sections")
		return
	}

	job.RecordIndex(res)
	for _, d := range res.Diagnostics {
		if d.Kind == doctree.KindExtractionFailure {
			job.AddError(d.String())
		}
	}
	if res.Failed > 0 {
		job.SetStatus(StatusPartial, "done")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) score(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "ticker", job.Ticker)

	job.SetStatus(StatusScoring, "scoring pairs")
	report, err := w.engine.Run(ctx, job.Ticker)
	if err != nil {
		log.Error("similarity run failed", "error", err)
		job.AddError(fmt.Sprintf("similarity: %s", err))
		job.SetStatus(StatusFailed, "scoring pairs")
		return
	}

	job.RecordReport(report)
	failed := 0
	for _, p := range report.Pairs {
		if p.Error != "" {
			job.AddError(fmt.Sprintf("%s vs %s: %s", p.Current, p.Previous, p.Error))
			failed++
		}
	}
	if failed > 0 {
		job.SetStatus(StatusPartial, "done")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}
