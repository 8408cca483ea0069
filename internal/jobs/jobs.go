// Package jobs tracks screening jobs submitted over the HTTP API.
package jobs

import (
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/cv-screener/internal/screening"
)

var ErrNotFound = errors.New("job not found")

type State string

const (
	StateProcessing State = "Processing"
	StateComplete   State = "Completed"
	StateFailed     State = "Failed"
)

// Job is a snapshot of one screening job.
type Job struct {
	ID             string
	State          State
	JobDescription string
	MustHaves      []string
	Total          int
	Processed      int
	Error          string
	Candidates     *screening.Candidates
	CreatedAt      time.Time
	FinishedAt     time.Time
}

func (j *Job) snapshot() Job {
	c := *j
	c.MustHaves = slices.Clone(j.MustHaves)
	return c
}

// Status is the progress view of a job.
type Status struct {
	ID         string  `json:"job_id"`
	State      State   `json:"status"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Error      string  `json:"error,omitempty"`
}

// Registry keeps jobs in memory. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create registers a new processing job and returns a snapshot of it.
func (r *Registry) Create(description string, mustHaves []string) Job {
	job := &Job{
		ID:             uuid.NewString(),
		State:          StateProcessing,
		JobDescription: description,
		MustHaves:      slices.Clone(mustHaves),
		Candidates:     &screening.Candidates{},
		CreatedAt:      r.now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job.snapshot()
}

func (r *Registry) SetTotal(id string, total int) error {
	return r.update(id, func(job *Job) {
		job.Total = total
	})
}

func (r *Registry) Progress(id string, processed int) error {
	return r.update(id, func(job *Job) {
		job.Processed = processed
	})
}

// Complete stores the sorted candidates and marks the job done.
func (r *Registry) Complete(id string, candidates *screening.Candidates) error {
	if candidates == nil {
		candidates = &screening.Candidates{}
	}
	return r.update(id, func(job *Job) {
		job.State = StateComplete
		job.Processed = job.Total
		job.Candidates = candidates
		job.FinishedAt = r.now()
	})
}

func (r *Registry) Fail(id string, err error) error {
	return r.update(id, func(job *Job) {
		job.State = StateFailed
		if err != nil {
			job.Error = err.Error()
		}
		job.FinishedAt = r.now()
	})
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.snapshot(), nil
}

func (r *Registry) Status(id string) (Status, error) {
	job, err := r.Get(id)
	if err != nil {
		return Status{}, err
	}

	percentage := 0.0
	if job.Total > 0 {
		percentage = math.Round(float64(job.Processed)/float64(job.Total)*1000) / 10
	}

	return Status{
		ID:         job.ID,
		State:      job.State,
		Processed:  job.Processed,
		Total:      job.Total,
		Percentage: percentage,
		Error:      job.Error,
	}, nil
}

// Shortlist returns the best n candidates with a positive score.
func (r *Registry) Shortlist(id string, n int) (*screening.Candidates, error) {
	job, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return job.Candidates.Shortlist(n), nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) update(id string, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(job)
	return nil
}
