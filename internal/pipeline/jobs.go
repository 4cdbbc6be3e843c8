package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// JobStatus represents the state of a translation job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusReading     JobStatus = "reading"
	StatusTranslating JobStatus = "translating"
	StatusWriting     JobStatus = "writing"
	StatusCompleted   JobStatus = "completed"
	StatusPartial     JobStatus = "partial"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// NewJobID returns a sortable, URL-safe job identifier.
func NewJobID() string {
	return ksuid.New().String()
}

// Job tracks the state of a single uploaded document translation.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`

	Language     string `json:"language"`
	MaxPages     int    `json:"max_pages"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	dir        string
	inputPath  string
	outputPath string
	errors     []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalPages       int      `json:"total_pages"`
	PagesProcessed   int      `json:"pages_processed"`
	PagesSkipped     int      `json:"pages_skipped"`
	ChunksTranslated int      `json:"chunks_translated"`
	ChunksBlocked    int      `json:"chunks_blocked"`
	ChunksFailed     int      `json:"chunks_failed"`
	Errors           []string `json:"errors"`
}

// NewJob creates a queued job for an upload already stored at inputPath inside dir.
func NewJob(filename, dir, inputPath string, opts Options) *Job {
	now := time.Now()
	return &Job{
		ID:           NewJobID(),
		Filename:     filename,
		Language:     opts.TargetLanguage,
		MaxPages:     opts.MaxPages,
		CustomPrompt: opts.CustomPrompt,
		OutputFormat: opts.OutputFormat,
		Status:       StatusQueued,
		Phase:        "queued",
		CreatedAt:    now,
		UpdatedAt:    now,
		dir:          dir,
		inputPath:    inputPath,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
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

// List returns all tracked jobs, newest first.
func (s *JobStore) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// Delete removes a job and reports whether it existed.
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs idle longer than the TTL and returns them.
func (s *JobStore) Cleanup() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed []*Job
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed = append(removed, job)
		}
	}
	return removed
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

// ObservePage folds one page progress event into the job.
func (j *Job) ObservePage(p PageProgress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalPages = p.Pages
	switch p.State {
	case StateSkipped:
		j.Progress.PagesSkipped++
		j.Progress.PagesProcessed++
	case StateAssembled:
		j.Progress.PagesProcessed++
	case StateTranslating:
		j.Phase = fmt.Sprintf("page %d/%d chunk %d/%d", p.Page, p.Pages, p.Chunk+1, p.Chunks)
	}
	j.UpdatedAt = time.Now()
}

// Finish records the assembly counters and output location.
func (j *Job) Finish(asm *Assembly, outputPath string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksTranslated = asm.Translated
	j.Progress.ChunksBlocked = asm.Blocked
	j.Progress.ChunksFailed = asm.Failed
	j.outputPath = outputPath
	j.UpdatedAt = time.Now()
}

// OutputPath returns the translated file location once the job has written it.
func (j *Job) OutputPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputPath
}

// InputPath returns where the upload was stored.
func (j *Job) InputPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inputPath
}

// Dir returns the job's working directory.
func (j *Job) Dir() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dir
}

// Options rebuilds the translation options the job was submitted with.
func (j *Job) Options() Options {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Options{
		TargetLanguage: j.Language,
		MaxPages:       j.MaxPages,
		CustomPrompt:   j.CustomPrompt,
		OutputFormat:   j.OutputFormat,
	}
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Filename    string    `json:"filename"`
	Language    string    `json:"language"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	ContentHash string    `json:"content_hash,omitempty"`
	Download    bool      `json:"download_ready"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := j.Progress
	progress.Errors = make([]string, len(j.errors))
	copy(progress.Errors, j.errors)
	return JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		Language:    j.Language,
		Status:      j.Status,
		Phase:       j.Phase,
		Progress:    progress,
		ContentHash: j.ContentHash,
		Download:    j.outputPath != "" && (j.Status == StatusCompleted || j.Status == StatusPartial),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
