package download

import (
	"context"
	"sync"
	"time"

	"hitomidl/internal/domain"

	"golang.org/x/sync/semaphore"
)

// task is one gallery's download state machine (§3, §4.5). Its permit
// guarantees the same gallery is never scheduled twice concurrently; its
// pause/cancel fields are the cooperative control token threaded through
// every suspension point in the scheduler loop.
type task struct {
	comicID int
	permit  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     domain.DownloadTaskState
	comic     domain.Comic
	total     int
	completed int
	paused    bool
	resumeCh  chan struct{}
	lastEmit  time.Time
}

func newTask(comic domain.Comic) *task {
	ctx, cancel := context.WithCancel(context.Background())
	return &task{
		comicID:  comic.ID,
		permit:   semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
		state:    domain.StatePending,
		comic:    comic,
		total:    len(comic.Files),
		resumeCh: make(chan struct{}),
	}
}

func (t *task) snapshot(kind domain.ProgressEventKind) domain.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.ProgressSnapshot{
		Event:              kind,
		ComicID:            t.comicID,
		State:              t.state,
		Comic:              t.comic,
		DownloadedImgCount: t.completed,
		TotalImgCount:      t.total,
	}
}

func (t *task) setComic(c domain.Comic) {
	t.mu.Lock()
	t.comic = c
	t.mu.Unlock()
}

func (t *task) setState(s domain.DownloadTaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *task) getState() domain.DownloadTaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *task) isTerminal() bool {
	return t.getState().IsTerminal()
}

func (t *task) incrementCompleted() int {
	t.mu.Lock()
	t.completed++
	n := t.completed
	t.mu.Unlock()
	return n
}

// pause marks the task Paused if it is currently Pending or Downloading,
// per §4.5. Returns whether the state actually changed.
func (t *task) pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.StatePending && t.state != domain.StateDownloading {
		return false
	}
	t.paused = true
	t.state = domain.StatePaused
	return true
}

// resume implements the two Pending-bound edges of §3's state diagram:
// Paused -> Pending wakes the parked scheduler goroutine in place, while
// Failed -> Pending restarts the scheduler from scratch (the goroutine
// that ran it already returned, so the caller must spawn a fresh one).
// completed is reset on the Failed edge since run() recounts every file
// from the top, including ones already on disk from the failed attempt.
// Returns whether the state changed and whether the caller must
// reschedule the task itself.
func (t *task) resume() (changed, reschedule bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case domain.StatePaused:
		t.paused = false
		t.state = domain.StatePending
		close(t.resumeCh)
		t.resumeCh = make(chan struct{})
		return true, false
	case domain.StateFailed:
		t.completed = 0
		t.state = domain.StatePending
		return true, true
	default:
		return false, false
	}
}

// requestCancel transitions the task to Cancelled from any non-terminal state
// and unparks it if paused, per §4.5.
func (t *task) requestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return false
	}
	wasPaused := t.paused
	t.paused = false
	t.state = domain.StateCancelled
	t.cancel()
	if wasPaused {
		close(t.resumeCh)
		t.resumeCh = make(chan struct{})
	}
	return true
}

// waitWhilePaused blocks the scheduler goroutine while the task is
// paused, waking on resume or cancellation.
func (t *task) waitWhilePaused(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.state == domain.StateCancelled {
			t.mu.Unlock()
			return context.Canceled
		}
		if !t.paused {
			t.mu.Unlock()
			return nil
		}
		ch := t.resumeCh
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// shouldEmit reports whether enough time has passed since the last
// Update event to emit another, throttled to 10 Hz per §4.5, or force is
// set for a terminal transition.
func (t *task) shouldEmit(force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if force || time.Since(t.lastEmit) >= 100*time.Millisecond {
		t.lastEmit = time.Now()
		return true
	}
	return false
}
