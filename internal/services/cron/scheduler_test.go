package cron

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpanel/internal/models"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []models.CronJob
}

func (f *fakeDispatcher) Dispatch(job models.CronJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
}

func (f *fakeDispatcher) dispatched() []models.CronJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CronJob(nil), f.jobs...)
}

func newTestScheduler(t *testing.T) (*Scheduler, *Store, *fakeDispatcher) {
	t.Helper()
	s := newTestStore(t)
	d := &fakeDispatcher{}
	return NewScheduler(s, d, time.Second, zerolog.Nop()), s, d
}

func makeDue(t *testing.T, s *Store, job *models.CronJob, now time.Time) {
	t.Helper()
	past := now.Add(-time.Minute)
	require.NoError(t, s.SetNextRun(job.ID, &past))
}

func TestTickDispatchesDueJobExactlyOnce(t *testing.T) {
	sched, s, d := newTestScheduler(t)
	job := createJob(t, s, CreateJobParams{})

	now := time.Now()
	makeDue(t, s, job, now)

	sched.tick(now)
	require.Len(t, d.dispatched(), 1)
	assert.Equal(t, job.ID, d.dispatched()[0].ID)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(now), "claim must advance next_run_at past now")

	// A second tick in the same window finds nothing due.
	sched.tick(now)
	assert.Len(t, d.dispatched(), 1)
}

func TestTickIgnoresDisabledAndFutureJobs(t *testing.T) {
	sched, s, d := newTestScheduler(t)

	disabled := createJob(t, s, CreateJobParams{Name: "off", Enabled: boolPtr(false)})
	now := time.Now()
	makeDue(t, s, disabled, now)

	createJob(t, s, CreateJobParams{Name: "future"}) // next_run_at ahead of now

	sched.tick(now)
	assert.Empty(t, d.dispatched())
}

// One corrupted job must not keep the rest of the tick from firing.
func TestTickIsolatesBrokenSchedule(t *testing.T) {
	sched, s, d := newTestScheduler(t)

	broken := createJob(t, s, CreateJobParams{Name: "broken"})
	good := createJob(t, s, CreateJobParams{Name: "good"})

	// Corrupt the stored expression behind the API's back.
	require.NoError(t, s.db.Model(&models.CronJob{}).
		Where("id = ?", broken.ID).
		Update("schedule", "not a cron").Error)

	now := time.Now()
	makeDue(t, s, broken, now)
	makeDue(t, s, good, now)

	sched.tick(now)

	dispatched := d.dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, good.ID, dispatched[0].ID)
}

func TestTickOrdersByNextRunThenID(t *testing.T) {
	sched, s, d := newTestScheduler(t)

	first := createJob(t, s, CreateJobParams{Name: "first"})
	second := createJob(t, s, CreateJobParams{Name: "second"})

	now := time.Now()
	early := now.Add(-2 * time.Minute)
	late := now.Add(-time.Minute)
	require.NoError(t, s.SetNextRun(second.ID, &late))
	require.NoError(t, s.SetNextRun(first.ID, &early))

	sched.tick(now)

	dispatched := d.dispatched()
	require.Len(t, dispatched, 2)
	assert.Equal(t, first.ID, dispatched[0].ID)
	assert.Equal(t, second.ID, dispatched[1].ID)
}

func TestReconcileRecomputesStaleFireTimes(t *testing.T) {
	sched, s, _ := newTestScheduler(t)

	stale := createJob(t, s, CreateJobParams{Name: "stale"})
	now := time.Now()
	old := now.Add(-24 * time.Hour)
	require.NoError(t, s.SetNextRun(stale.ID, &old))

	offStale := createJob(t, s, CreateJobParams{Name: "off", Enabled: boolPtr(false)})
	require.NoError(t, s.SetNextRun(offStale.ID, &old))

	sched.Reconcile(now)

	got, err := s.Get(stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(now), "downtime is not backfilled")

	off, err := s.Get(offStale.ID)
	require.NoError(t, err)
	assert.Nil(t, off.NextRunAt)
}
