package jobs

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/cv-screener/internal/screening"
)

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	job := r.Create("python developer", []string{"django"})

	_, err := uuid.Parse(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, job.State)

	status, err := r.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, Status{ID: job.ID, State: StateProcessing}, status)

	require.NoError(t, r.SetTotal(job.ID, 3))
	require.NoError(t, r.Progress(job.ID, 1))

	status, err = r.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 33.3, status.Percentage)
	assert.Equal(t, 1, status.Processed)

	candidates := &screening.Candidates{Items: []*screening.Candidate{
		{File: "a.pdf", Score: 70},
		{File: "b.pdf", Score: 0},
	}}
	require.NoError(t, r.Complete(job.ID, candidates))

	status, err = r.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, status.State)
	assert.Equal(t, 100.0, status.Percentage)

	shortlist, err := r.Shortlist(job.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, shortlist.Files())

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.False(t, got.FinishedAt.IsZero())
	assert.Equal(t, []string{"django"}, got.MustHaves)
}

func TestRegistryFail(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	job := r.Create("desc", nil)
	require.NoError(t, r.Fail(job.ID, errors.New("bad archive")))

	status, err := r.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "bad archive", status.Error)

	shortlist, err := r.Shortlist(job.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, shortlist.Len())
}

func TestRegistryUnknownJob(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	_, err := r.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Status("missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Shortlist("missing", 5)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Progress("missing", 1), ErrNotFound)
	require.ErrorIs(t, r.Complete("missing", nil), ErrNotFound)
}

func TestRegistrySnapshotsAreCopies(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	job := r.Create("desc", []string{"go"})
	job.State = StateFailed
	job.MustHaves[0] = "rust"

	got, err := r.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, got.State)
	assert.Equal(t, []string{"go"}, got.MustHaves)
}

func TestRegistryConcurrent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	job := r.Create("desc", nil)
	require.NoError(t, r.SetTotal(job.ID, 100))

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Progress(job.ID, i))
			_, err := r.Status(job.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}
