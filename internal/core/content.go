package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
)

// ContentState is what an async content view shows.
type ContentState string

const (
	ContentLoading    ContentState = "loading"
	ContentReady      ContentState = "ready"
	ContentGenerating ContentState = "generating"
	ContentFailed     ContentState = "failed"
	ContentTimedOut   ContentState = "timed_out"
)

// ContentView is a point-in-time copy of a ContentLoader.
type ContentView struct {
	ID      string
	State   ContentState
	Content string
	// Notice is user-facing text for the soft error states.
	Notice string
}

// ContentLoader reads async content once and polls the job when the
// content is still being generated.
type ContentLoader struct {
	fetcher  ContentFetcher
	poller   *Poller
	onChange func(ContentView)

	mu     sync.Mutex
	view   ContentView
	task   *PollTask
	cancel context.CancelFunc
	// gen increments on every Load and Stop. Work started under an older
	// generation never touches the view.
	gen uint64
}

// NewContentLoader creates a loader. onChange, when set, is called after
// every state change from the loader's goroutines.
func NewContentLoader(fetcher ContentFetcher, poller *Poller, onChange func(ContentView)) *ContentLoader {
	return &ContentLoader{
		fetcher:  fetcher,
		poller:   poller,
		onChange: onChange,
		view:     ContentView{State: ContentLoading},
	}
}

// Load performs the first read of id and starts polling if needed.
// A Stop or a newer Load at any point, including during the first read,
// discards the result and no further onChange calls fire for this id.
func (l *ContentLoader) Load(ctx context.Context, id string) error {
	l.mu.Lock()
	l.stopLocked()
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	l.update(gen, ContentView{ID: id, State: ContentLoading})

	readCtx, readCancel := context.WithTimeout(ctx, constants.ContentRequestTimeout)
	job, err := l.fetcher.Content(readCtx, id)
	readCancel()
	if err != nil {
		if !l.update(gen, ContentView{ID: id, State: ContentFailed, Notice: constants.ContentFailedMessage}) {
			return nil
		}
		return fmt.Errorf("load content %s: %w", id, err)
	}

	switch job.Status {
	case JobCompleted:
		l.update(gen, ContentView{ID: id, State: ContentReady, Content: job.Content})
		return nil
	case JobFailed:
		l.update(gen, ContentView{ID: id, State: ContentFailed, Notice: constants.ContentFailedMessage})
		return nil
	}

	jobID := job.ID
	if jobID == "" {
		jobID = id
	}
	if !l.update(gen, ContentView{ID: id, State: ContentGenerating, Content: job.Content}) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return nil
	}
	log.Debug().Str("content_id", id).Str("job_id", jobID).Msg("content not ready, polling")
	l.task = l.poller.Poll(ctx, jobID, PollCallbacks{
		OnComplete: func(content string) {
			l.update(gen, ContentView{ID: id, State: ContentReady, Content: content})
		},
		OnFailed: func() {
			l.update(gen, ContentView{ID: id, State: ContentFailed, Notice: constants.ContentFailedMessage})
		},
		OnTimeout: func() {
			l.update(gen, ContentView{ID: id, State: ContentTimedOut, Notice: constants.ContentTimeoutMessage})
		},
	})
	return nil
}

// View returns the current state.
func (l *ContentLoader) View() ContentView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view
}

// Stop cancels any in-flight read or running poll.
func (l *ContentLoader) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.stopLocked()
}

func (l *ContentLoader) stopLocked() {
	if l.task != nil {
		l.task.Stop()
		l.task = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// update applies v if gen is still current and reports whether it did.
func (l *ContentLoader) update(gen uint64, v ContentView) bool {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return false
	}
	l.view = v
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(v)
	}
	return true
}
