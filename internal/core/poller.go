package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
)

// PollState is the state of a polling task.
type PollState string

const (
	PollProcessing PollState = "processing"
	PollCompleted  PollState = "completed"
	PollFailed     PollState = "failed"
	PollTimedOut   PollState = "timed_out"
	PollCancelled  PollState = "cancelled"
)

// Terminal reports whether the task has stopped.
func (s PollState) Terminal() bool {
	return s != PollProcessing
}

// PollCallbacks receive the outcome of a poll. At most one of them fires,
// at most once. Nil callbacks are skipped.
type PollCallbacks struct {
	OnComplete func(content string)
	OnFailed   func()
	OnTimeout  func()
}

// Poller queries async job status on a fixed interval.
type Poller struct {
	fetcher     JobFetcher
	interval    time.Duration
	maxAttempts int
	bus         *EventBus
}

// NewPoller creates a poller. Zero interval or attempts use the defaults.
func NewPoller(fetcher JobFetcher, interval time.Duration, maxAttempts int, bus *EventBus) *Poller {
	if interval <= 0 {
		interval = constants.PollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = constants.PollMaxAttempts
	}
	return &Poller{
		fetcher:     fetcher,
		interval:    interval,
		maxAttempts: maxAttempts,
		bus:         bus,
	}
}

// PollTask is one running poll. It is cancelled by Stop or by the context
// passed to Poll.
type PollTask struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    PollState
	attempts int
}

// Poll starts polling jobID. The first query happens one interval after
// the call. Each query is cut off after one interval and counts as a
// failed attempt.
func (p *Poller) Poll(ctx context.Context, jobID string, cb PollCallbacks) *PollTask {
	ctx, cancel := context.WithCancel(ctx)
	task := &PollTask{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  PollProcessing,
	}
	go p.run(ctx, task, cb)
	return task
}

func (p *Poller) run(ctx context.Context, task *PollTask, cb PollCallbacks) {
	defer close(task.done)
	defer task.cancel()

	logger := log.With().Str("job_id", task.jobID).Logger()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	job := &GenerationJob{ID: task.jobID, Status: JobProcessing}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			task.settle(PollCancelled)
			return
		case <-ticker.C:
		}
		task.countAttempt()

		qctx, qcancel := context.WithTimeout(ctx, p.interval)
		got, err := p.fetcher.JobStatus(qctx, task.jobID)
		qcancel()
		if err != nil {
			if ctx.Err() != nil {
				task.settle(PollCancelled)
				return
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("job status query failed")
			continue
		}

		if err := job.Advance(got.Status, got.Content); err != nil {
			if errors.Is(err, ErrBackwardTransition) {
				logger.Debug().Str("status", string(got.Status)).Msg("ignoring stale job status")
			}
			continue
		}

		switch job.Status {
		case JobCompleted:
			if task.settle(PollCompleted) {
				p.announce(task.jobID)
				logger.Debug().Int("attempt", attempt).Msg("job completed")
				if cb.OnComplete != nil {
					cb.OnComplete(job.Content)
				}
			}
			return
		case JobFailed:
			if task.settle(PollFailed) {
				p.announce(task.jobID)
				logger.Info().Int("attempt", attempt).Msg("job failed")
				if cb.OnFailed != nil {
					cb.OnFailed()
				}
			}
			return
		}
	}

	if task.settle(PollTimedOut) {
		p.announce(task.jobID)
		logger.Warn().Int("attempts", p.maxAttempts).Msg("job polling timed out")
		if cb.OnTimeout != nil {
			cb.OnTimeout()
		}
	}
}

func (p *Poller) announce(jobID string) {
	publishCritical(p.bus, Event{Type: EventGenerationStatusChanged, Source: "job:" + jobID})
}

// settle moves the task to a terminal state. It reports false when the
// task had already stopped, in which case no callback may fire.
func (t *PollTask) settle(state PollState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = state
	return true
}

func (t *PollTask) countAttempt() {
	t.mu.Lock()
	t.attempts++
	t.mu.Unlock()
}

// Stop cancels the task. No callback fires after Stop returns unless one
// had already started. Stopping a finished task does nothing.
func (t *PollTask) Stop() {
	t.settle(PollCancelled)
	t.cancel()
}

// Done is closed when the polling goroutine exits.
func (t *PollTask) Done() <-chan struct{} {
	return t.done
}

// State returns the current state.
func (t *PollTask) State() PollState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Attempts returns the number of status queries issued so far.
func (t *PollTask) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// JobID returns the polled job id.
func (t *PollTask) JobID() string {
	return t.jobID
}
