package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 2 * time.Millisecond

type callbackCounts struct {
	complete atomic.Int32
	failed   atomic.Int32
	timeout  atomic.Int32
	content  atomic.Value
}

func (c *callbackCounts) callbacks() PollCallbacks {
	return PollCallbacks{
		OnComplete: func(content string) {
			c.content.Store(content)
			c.complete.Add(1)
		},
		OnFailed:  func() { c.failed.Add(1) },
		OnTimeout: func() { c.timeout.Add(1) },
	}
}

func waitDone(t *testing.T, task *PollTask) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll task did not finish")
	}
}

func TestPollerTimesOutAfterExactBudget(t *testing.T) {
	backend := newFakeBackend() // always processing
	bus := NewEventBus(10)
	defer bus.Close()
	events := bus.Subscribe(EventGenerationStatusChanged)

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 30, bus).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	// Give a stray tick the chance to misbehave.
	time.Sleep(5 * testInterval)

	assert.Equal(t, 30, backend.jobQueries(), "no 31st call")
	assert.Equal(t, 30, task.Attempts())
	assert.Equal(t, int32(1), cb.timeout.Load())
	assert.Zero(t, cb.complete.Load())
	assert.Zero(t, cb.failed.Load())
	assert.Equal(t, PollTimedOut, task.State())
	expectEvent(t, events, EventGenerationStatusChanged)
}

func TestPollerCompletes(t *testing.T) {
	backend := newFakeBackend()
	backend.jobs = []*GenerationJob{
		{ID: "job-1", Status: JobPending},
		{ID: "job-1", Status: JobProcessing},
		{ID: "job-1", Status: JobCompleted, Content: "# Article"},
	}

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 30, nil).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	require.Equal(t, PollCompleted, task.State())
	assert.Equal(t, int32(1), cb.complete.Load())
	assert.Equal(t, "# Article", cb.content.Load())
	assert.Equal(t, 3, backend.jobQueries())
	assert.Zero(t, cb.timeout.Load())
}

func TestPollerFails(t *testing.T) {
	backend := newFakeBackend()
	backend.jobs = []*GenerationJob{{ID: "job-1", Status: JobFailed}}

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 30, nil).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	assert.Equal(t, PollFailed, task.State())
	assert.Equal(t, int32(1), cb.failed.Load())
	assert.Equal(t, 1, backend.jobQueries())
}

func TestPollerContinuesAfterTransientErrors(t *testing.T) {
	backend := newFakeBackend()
	blip := errors.New("network blip")
	backend.jobErrs = []error{blip, blip, nil}
	backend.jobs = []*GenerationJob{
		nil, nil,
		{ID: "job-1", Status: JobCompleted, Content: "done"},
	}

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 30, nil).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	assert.Equal(t, PollCompleted, task.State())
	assert.Equal(t, 3, backend.jobQueries())
	assert.Equal(t, int32(1), cb.complete.Load())
}

func TestPollerTransientErrorsCountTowardBudget(t *testing.T) {
	backend := newFakeBackend()
	blip := errors.New("network blip")
	backend.jobErrs = []error{blip, blip, blip, blip, blip}

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 5, nil).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	assert.Equal(t, 5, backend.jobQueries())
	assert.Equal(t, int32(1), cb.timeout.Load())
}

func TestPollerIgnoresBackwardStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.jobs = []*GenerationJob{
		{ID: "job-1", Status: JobPending},
		{ID: "job-1", Status: JobCompleted, Content: "ok"},
	}

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 30, nil).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	assert.Equal(t, PollCompleted, task.State())
	assert.Equal(t, "ok", cb.content.Load())
}

func TestPollerStop(t *testing.T) {
	backend := newFakeBackend()

	var cb callbackCounts
	task := NewPoller(backend, testInterval, 1000, nil).Poll(context.Background(), "job-1", cb.callbacks())
	require.Eventually(t, func() bool { return task.Attempts() >= 2 }, time.Second, time.Millisecond)

	task.Stop()
	waitDone(t, task)
	queries := backend.jobQueries()
	time.Sleep(10 * testInterval)

	assert.Equal(t, PollCancelled, task.State())
	assert.Equal(t, queries, backend.jobQueries(), "no queries after stop")
	assert.Zero(t, cb.timeout.Load()+cb.complete.Load()+cb.failed.Load(), "no callbacks after stop")
}

func TestPollerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var cb callbackCounts
	task := NewPoller(newFakeBackend(), time.Hour, 30, nil).Poll(ctx, "job-1", cb.callbacks())

	cancel()
	waitDone(t, task)
	assert.Equal(t, PollCancelled, task.State())
	assert.Zero(t, task.Attempts())
}

func TestPollerDefaults(t *testing.T) {
	p := NewPoller(newFakeBackend(), 0, 0, nil)
	assert.Equal(t, 5*time.Second, p.interval)
	assert.Equal(t, 30, p.maxAttempts)
}

// stallingJobs never answers; every query waits for its context.
type stallingJobs struct {
	calls atomic.Int32
}

func (s *stallingJobs) JobStatus(ctx context.Context, id string) (*GenerationJob, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPollerHungQueryStillTimesOut(t *testing.T) {
	jobs := &stallingJobs{}

	var cb callbackCounts
	task := NewPoller(jobs, 10*time.Millisecond, 3, nil).Poll(context.Background(), "job-1", cb.callbacks())
	waitDone(t, task)

	assert.Equal(t, PollTimedOut, task.State())
	assert.Equal(t, int32(3), jobs.calls.Load())
	assert.Equal(t, int32(1), cb.timeout.Load())
}
