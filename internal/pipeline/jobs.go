package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/filingdrift/internal/doctree"
	"github.com/dgallion1/filingdrift/internal/index"
	"github.com/dgallion1/filingdrift/internal/similarity"
)

// JobKind selects what a job does.
type JobKind string

const (
	KindIngest     JobKind = "ingest"
	KindSimilarity JobKind = "similarity"
)

// JobStatus represents the state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracting JobStatus = "extracting"
	StatusIndexing   JobStatus = "indexing"
	StatusScoring    JobStatus = "scoring"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
)

// Job tracks the state of one ingestion or similarity run.
type Job struct {
	mu sync.Mutex

	ID   string  `json:"job_id"`
	Kind JobKind `json:"kind"`

	Ticker   string `json:"ticker"`
	Category string `json:"category,omitempty"`
	Date     string `json:"date,omitempty"`
	Filename string `json:"filename,omitempty"`
	Document string `json:"document,omitempty"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	identity   doctree.Identity
	sourcePath string
	passphrase string
	report     *similarity.Report
	errors     []string
}

// Progress tracks processing outcome counts.
type Progress struct {
	SectionsIndexed int      `json:"sections_indexed"`
	SectionsFailed  int      `json:"sections_failed"`
	PairsScored     int      `json:"pairs_scored"`
	NoPredecessor   []string `json:"no_predecessor,omitempty"`
	Diagnostics     int      `json:"diagnostics"`
	Errors          []string `json:"errors"`
}

// NewIngestJob returns a queued job that indexes the filing at path.
func NewIngestJob(path, filename string, id doctree.Identity, passphrase string) *Job {
	now := time.Now()
	return &Job{
		ID:         uuid.NewString(),
		Kind:       KindIngest,
		Ticker:     id.Ticker,
		Category:   id.Category,
		Date:       id.Date.Format("2006-01-02"),
		Filename:   filename,
		Status:     StatusQueued,
		Phase:      "queued",
		CreatedAt:  now,
		UpdatedAt:  now,
		identity:   id,
		sourcePath: path,
		passphrase: passphrase,
	}
}

// NewSimilarityJob returns a queued job that scores every filing of ticker.
func NewSimilarityJob(ticker string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      KindSimilarity,
		Ticker:    ticker,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// RecordIndex copies an indexing result into the job.
func (j *Job) RecordIndex(r *index.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Document = r.Document.Name
	j.Progress.SectionsIndexed = r.Indexed
	j.Progress.SectionsFailed = r.Failed
	j.Progress.Diagnostics += len(r.Diagnostics)
	j.UpdatedAt = time.Now()
}

// RecordReport copies a similarity report into the job.
func (j *Job) RecordReport(r *similarity.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = r
	scored := 0
	for _, p := range r.Pairs {
		if p.Error == "" {
			scored++
		}
	}
	j.Progress.PairsScored = scored
	j.Progress.NoPredecessor = append([]string(nil), r.NoPredecessor...)
	j.Progress.Diagnostics += len(r.Diagnostics)
	j.UpdatedAt = time.Now()
}

// Report returns the similarity report of a finished similarity job.
func (j *Job) Report() *similarity.Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.report
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"job_id"`
	Kind     JobKind   `json:"kind"`
	Ticker   string    `json:"ticker"`
	Category string    `json:"category,omitempty"`
	Date     string    `json:"date,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Document string    `json:"document,omitempty"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	progress := j.Progress
	progress.Errors = errs
	progress.NoPredecessor = append([]string(nil), j.Progress.NoPredecessor...)
	return JobSnapshot{
		ID:       j.ID,
		Kind:     j.Kind,
		Ticker:   j.Ticker,
		Category: j.Category,
		Date:     j.Date,
		Filename: j.Filename,
		Document: j.Document,
		Status:   j.Status,
		Phase:    j.Phase,
		Progress: progress,
	}
}

// Done reports whether the job reached a terminal status.
func (s JobSnapshot) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusPartial || s.Status == StatusFailed
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
