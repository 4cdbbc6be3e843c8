package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobRunning  = errors.New("job is still running")
)

// ServiceConfig sizes the job worker pool.
type ServiceConfig struct {
	WorkerCount     int
	MaxQueueSize    int
	JobTTL          time.Duration
	CleanupInterval time.Duration
}

// Service runs uploaded file translations on a fixed worker pool.
type Service struct {
	jobs  *JobStore
	queue chan *Job
	orch  *Orchestrator
	log   *slog.Logger
	cfg   ServiceConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(cfg ServiceConfig, orch *Orchestrator, log *slog.Logger) *Service {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &Service{
		jobs:  NewJobStore(cfg.JobTTL),
		queue: make(chan *Job, cfg.MaxQueueSize),
		orch:  orch,
		log:   log,
		cfg:   cfg,
	}
}

// Start launches worker goroutines.
func (s *Service) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for range s.cfg.WorkerCount {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-s.queue:
					if !ok {
						return
					}
					s.process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pool. In-flight jobs see a cancelled context.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	close(s.queue)
	s.wg.Wait()
}

// Submit queues a new job for processing.
func (s *Service) Submit(job *Job) error {
	s.jobs.Put(job)
	select {
	case s.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", s.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (s *Service) GetJob(id string) *Job {
	return s.jobs.Get(id)
}

// ListJobs returns snapshots of every tracked job, newest first.
func (s *Service) ListJobs() []JobSnapshot {
	jobs := s.jobs.List()
	out := make([]JobSnapshot, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

// RemoveJob forgets a finished job and deletes its files. Running jobs are refused.
func (s *Service) RemoveJob(id string) error {
	job := s.jobs.Get(id)
	if job == nil {
		return ErrJobNotFound
	}
	if !job.Snapshot().Status.Terminal() {
		return ErrJobRunning
	}
	s.jobs.Delete(id)
	if dir := job.Dir(); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove job dir: %w", err)
		}
	}
	return nil
}

// QueueDepth returns current queue depth.
func (s *Service) QueueDepth() int {
	return len(s.queue)
}

func (s *Service) process(ctx context.Context, job *Job) {
	log := s.log.With("job_id", job.ID, "filename", job.Filename)
	opts := job.Options()
	opts.Progress = job.ObservePage
	opts.Stage = func(st Stage) {
		switch st {
		case StageReading:
			job.SetStatus(StatusReading, "reading")
		case StageTranslating:
			job.SetStatus(StatusTranslating, "translating")
		case StageWriting:
			job.SetStatus(StatusWriting, "writing")
		}
	}

	start := time.Now()
	res, err := s.orch.TranslateFileDetailed(ctx, job.InputPath(), opts)
	if err != nil {
		log.Error("job failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "failed")
		return
	}

	job.Finish(res.Assembly, res.OutputPath)
	if res.Assembly.Complete() {
		job.SetStatus(StatusCompleted, "done")
	} else {
		job.SetStatus(StatusPartial, "done")
	}
	log.Info("job finished",
		"status", job.Snapshot().Status,
		"chunks", res.Assembly.Chunks(),
		"duration", time.Since(start).Round(time.Millisecond))
}

func (s *Service) cleanup() {
	for _, job := range s.jobs.Cleanup() {
		if dir := job.Dir(); dir != "" {
			if err := os.RemoveAll(dir); err != nil {
				s.log.Warn("remove job dir", "job_id", job.ID, "error", err)
			}
		}
	}
}
