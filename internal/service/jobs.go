package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/ytrag/internal/models"
)

// JobStatus represents the state of a background ingest.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job tracks one asynchronous ingest.
type Job struct {
	mu          sync.RWMutex
	id          string
	url         string
	status      JobStatus
	stage       Stage
	result      models.Status
	errKind     models.ErrorKind
	err         string
	startedAt   time.Time
	completedAt *time.Time
}

// JobView is a point-in-time copy of a Job.
type JobView struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Status      JobStatus        `json:"status"`
	Stage       Stage            `json:"stage,omitempty"`
	Result      *models.Status   `json:"result,omitempty"`
	ErrorKind   models.ErrorKind `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()

	v := JobView{
		ID:          j.id,
		URL:         j.url,
		Status:      j.status,
		Stage:       j.stage,
		ErrorKind:   j.errKind,
		Error:       j.err,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
	if j.status == JobStatusCompleted {
		result := j.result
		v.Result = &result
	}
	return v
}

// Ingester is the part of the Orchestrator a JobManager drives.
type Ingester interface {
	IngestWithProgress(ctx context.Context, rawURL string, observe StageObserver) (models.Status, error)
}

// JobManager runs ingests in the background and keeps their outcome.
type JobManager struct {
	ingester Ingester
	timeout  time.Duration
	keep     int

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewJobManager creates a job manager. Each ingest gets timeout; at most keep
// finished jobs are retained (oldest evicted first).
func NewJobManager(ingester Ingester, timeout time.Duration, keep int) *JobManager {
	if keep <= 0 {
		keep = 32
	}
	return &JobManager{
		ingester: ingester,
		timeout:  timeout,
		keep:     keep,
		jobs:     make(map[string]*Job),
	}
}

// Start schedules an ingest of rawURL and returns immediately.
func (m *JobManager) Start(rawURL string) JobView {
	job := &Job{
		id:        uuid.New().String()[:8], // Short ID for convenience
		url:       rawURL,
		status:    JobStatusPending,
		startedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.id] = job
	m.evictLocked()
	m.mu.Unlock()

	slog.Info("ingest job created", "job_id", job.id, "url", rawURL)

	m.wg.Add(1)
	go m.run(job)

	return job.Snapshot()
}

func (m *JobManager) run(job *Job) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ingest job panicked", "job_id", job.id, "panic", r)
			m.fail(job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	job.mu.Lock()
	job.status = JobStatusRunning
	job.mu.Unlock()

	status, err := m.ingester.IngestWithProgress(ctx, job.url, func(stage Stage) {
		job.mu.Lock()
		job.stage = stage
		job.mu.Unlock()
	})
	if err != nil {
		m.fail(job, err)
		return
	}

	now := time.Now()
	job.mu.Lock()
	job.status = JobStatusCompleted
	job.result = status
	job.completedAt = &now
	job.mu.Unlock()

	slog.Info("ingest job completed", "job_id", job.id, "video_id", status.VideoID, "chunks", status.Chunks)
}

func (m *JobManager) fail(job *Job, err error) {
	now := time.Now()
	job.mu.Lock()
	job.status = JobStatusFailed
	job.errKind = models.KindOf(err)
	job.err = err.Error()
	job.completedAt = &now
	job.mu.Unlock()

	slog.Warn("ingest job failed", "job_id", job.id, "error", err)
}

// Get returns the job with id.
func (m *JobManager) Get(id string) (JobView, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return JobView{}, false
	}
	return job.Snapshot(), true
}

// List returns all retained jobs, most recent first.
func (m *JobManager) List() []JobView {
	m.mu.RLock()
	views := make([]JobView, 0, len(m.jobs))
	for _, job := range m.jobs {
		views = append(views, job.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(views, func(a, b JobView) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return views
}

// Wait blocks until every started job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
// Caller must hold m.mu.
func (m *JobManager) evictLocked() {
	if len(m.jobs) <= m.keep {
		return
	}

	finished := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		job.mu.RLock()
		done := job.completedAt != nil
		job.mu.RUnlock()
		if done {
			finished = append(finished, job)
		}
	}
	slices.SortFunc(finished, func(a, b *Job) int {
		return a.startedAt.Compare(b.startedAt)
	})

	for _, job := range finished {
		if len(m.jobs) <= m.keep {
			return
		}
		delete(m.jobs, job.id)
	}
}
