package download

import (
	"context"
	"testing"
	"time"

	"hitomidl/internal/config"
	"hitomidl/internal/domain"
	"hitomidl/internal/gallery"
	"hitomidl/internal/routing"
	"hitomidl/internal/sharedhttp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	store, err := config.New(t.TempDir())
	require.NoError(t, err)

	cfg := store.Get()
	cfg.DownloadDir = t.TempDir()
	require.NoError(t, store.Save(cfg))

	httpClient := sharedhttp.New(domain.Defaults(t.TempDir()))
	routingEngine := routing.New(httpClient)
	resolver := gallery.New(httpClient, routingEngine, store)

	m := New(httpClient, routingEngine, resolver, store)
	t.Cleanup(m.Close)
	return m
}

func drainUntilTerminal(t *testing.T, m *Manager, comicID int) domain.ProgressSnapshot {
	t.Helper()

	var last domain.ProgressSnapshot
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			snap, ok := ev.Payload.(domain.ProgressSnapshot)
			if !ok || snap.ComicID != comicID {
				continue
			}
			last = snap
			if snap.State.IsTerminal() {
				return last
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal state")
		}
	}
}

func TestCreateDownloadTaskCompletesImmediatelyForEmptyGallery(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 1, Title: "Empty Gallery"}
	require.NoError(t, m.CreateDownloadTask(comic))

	final := drainUntilTerminal(t, m, comic.ID)
	assert.Equal(t, domain.StateCompleted, final.State)
	assert.Equal(t, 0, final.TotalImgCount)
	assert.Equal(t, 0, final.DownloadedImgCount)
}

func TestCreateDownloadTaskIsNoOpWhileNonTerminal(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 2, Files: make([]domain.File, 1)}
	existing := newTask(comic)
	existing.setState(domain.StateDownloading)

	m.mu.Lock()
	m.tasks[comic.ID] = existing
	m.mu.Unlock()

	require.NoError(t, m.CreateDownloadTask(comic))

	m.mu.Lock()
	got := m.tasks[comic.ID]
	m.mu.Unlock()

	assert.Same(t, existing, got)
}

func TestCreateDownloadTaskReplacesTerminalTask(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 3}
	existing := newTask(comic)
	existing.setState(domain.StateCancelled)

	m.mu.Lock()
	m.tasks[comic.ID] = existing
	m.mu.Unlock()

	require.NoError(t, m.CreateDownloadTask(comic))

	m.mu.Lock()
	got := m.tasks[comic.ID]
	m.mu.Unlock()

	assert.NotSame(t, existing, got)
}

// TestCreateDownloadTaskRejectsFileWithNoUsableFormat covers §9's open
// question: a file whose haswebp/hasavif/hasjxl flags are all false is a
// fatal error at task-creation time, before any task record is even
// inserted, rather than surfacing mid-download as a Failed task.
func TestCreateDownloadTaskRejectsFileWithNoUsableFormat(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 6, Files: []domain.File{{Hash: "abc", Name: "1.jpg"}}}
	err := m.CreateDownloadTask(comic)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoUsableFormat)

	m.mu.Lock()
	_, exists := m.tasks[comic.ID]
	m.mu.Unlock()
	assert.False(t, exists)
}

func TestPauseResumeCancelReportNotFoundForUnknownTask(t *testing.T) {
	m := newTestManager(t)

	assert.Error(t, m.PauseDownloadTask(999))
	assert.Error(t, m.ResumeDownloadTask(999))
	assert.Error(t, m.CancelDownloadTask(999))
}

func TestCancelDownloadTaskTransitionsExistingTask(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 4, Files: make([]domain.File, 5)}
	task := newTask(comic)
	task.setState(domain.StateDownloading)

	m.mu.Lock()
	m.tasks[comic.ID] = task
	m.mu.Unlock()

	require.NoError(t, m.CancelDownloadTask(comic.ID))
	assert.Equal(t, domain.StateCancelled, task.getState())
}

// TestResumeDownloadTaskRetriesFailedTask covers the Failed -> Pending
// edge of §3's state diagram: a Failed task has no HTTP files to fetch,
// so resuming it must reschedule the scheduler loop and let it reach
// Completed rather than staying stuck with no goroutine driving it.
func TestResumeDownloadTaskRetriesFailedTask(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 8}
	task := newTask(comic)
	task.setState(domain.StateFailed)

	m.mu.Lock()
	m.tasks[comic.ID] = task
	m.mu.Unlock()

	require.NoError(t, m.ResumeDownloadTask(comic.ID))

	final := drainUntilTerminal(t, m, comic.ID)
	assert.Equal(t, domain.StateCompleted, final.State)
}

// TestCancelDuringInFlightImageDownloadStaysCancelled reproduces a cancel
// landing while the scheduler goroutine is inside downloadImage: the
// in-flight HTTP call fails with the cancelled context's error right after
// requestCancel has already moved the task to Cancelled, and run()'s error
// branch must not let that failure stomp Cancelled with Failed.
func TestCancelDuringInFlightImageDownloadStaysCancelled(t *testing.T) {
	m := newTestManager(t)

	comic := domain.Comic{ID: 7, Files: make([]domain.File, 1)}
	task := newTask(comic)
	task.setState(domain.StateDownloading)

	m.mu.Lock()
	m.tasks[comic.ID] = task
	m.mu.Unlock()

	require.NoError(t, m.CancelDownloadTask(comic.ID))
	require.Equal(t, domain.StateCancelled, task.getState())

	// downloadImage's in-flight HTTP call observes task.ctx cancelled and
	// returns a wrapped network error; run() routes that into finishFailed.
	m.finishFailed(task, domain.NewNetworkError("request failed", context.Canceled))

	assert.Equal(t, domain.StateCancelled, task.getState())
}
