package download

import (
	"context"
	"testing"
	"time"

	"hitomidl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskStartsPending(t *testing.T) {
	task := newTask(domain.Comic{ID: 1, Files: make([]domain.File, 10)})
	assert.Equal(t, domain.StatePending, task.getState())
	assert.Equal(t, 10, task.total)
}

func TestPauseOnlyAppliesFromPendingOrDownloading(t *testing.T) {
	task := newTask(domain.Comic{ID: 1})
	task.setState(domain.StateDownloading)
	require.True(t, task.pause())
	assert.Equal(t, domain.StatePaused, task.getState())

	task2 := newTask(domain.Comic{ID: 2})
	task2.setState(domain.StateCompleted)
	assert.False(t, task2.pause())
}

func TestResumeWakesParkedScheduler(t *testing.T) {
	task := newTask(domain.Comic{ID: 1})
	task.setState(domain.StateDownloading)
	require.True(t, task.pause())

	woke := make(chan error, 1)
	go func() {
		woke <- task.waitWhilePaused(context.Background())
	}()

	select {
	case <-woke:
		t.Fatal("waitWhilePaused returned before resume")
	case <-time.After(20 * time.Millisecond):
	}

	changed, reschedule := task.resume()
	require.True(t, changed)
	assert.False(t, reschedule)
	assert.Equal(t, domain.StatePending, task.getState())

	select {
	case err := <-woke:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not wake after resume")
	}
}

func TestResumeFromFailedResetsCompletedAndAsksForReschedule(t *testing.T) {
	task := newTask(domain.Comic{ID: 1, Files: make([]domain.File, 3)})
	task.setState(domain.StateDownloading)
	task.incrementCompleted()
	task.setState(domain.StateFailed)

	changed, reschedule := task.resume()
	require.True(t, changed)
	assert.True(t, reschedule)
	assert.Equal(t, domain.StatePending, task.getState())
	assert.Equal(t, 0, task.completed)
}

func TestResumeFromNonPausedNonFailedIsNoop(t *testing.T) {
	task := newTask(domain.Comic{ID: 1})
	task.setState(domain.StateCompleted)
	changed, reschedule := task.resume()
	assert.False(t, changed)
	assert.False(t, reschedule)
}

func TestRequestCancelUnparksAndMarksTerminal(t *testing.T) {
	task := newTask(domain.Comic{ID: 1})
	task.setState(domain.StateDownloading)
	require.True(t, task.pause())

	woke := make(chan error, 1)
	go func() {
		woke <- task.waitWhilePaused(task.ctx)
	}()

	require.True(t, task.requestCancel())
	assert.Equal(t, domain.StateCancelled, task.getState())
	assert.True(t, task.isTerminal())

	select {
	case err := <-woke:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not unpark on cancel")
	}

	assert.False(t, task.requestCancel())
}

func TestIncrementCompletedIsMonotonic(t *testing.T) {
	task := newTask(domain.Comic{ID: 1, Files: make([]domain.File, 3)})
	assert.Equal(t, 1, task.incrementCompleted())
	assert.Equal(t, 2, task.incrementCompleted())
	assert.Equal(t, 3, task.incrementCompleted())
}

func TestShouldEmitThrottlesToTenHertz(t *testing.T) {
	task := newTask(domain.Comic{ID: 1})
	assert.True(t, task.shouldEmit(false))
	assert.False(t, task.shouldEmit(false))
	assert.True(t, task.shouldEmit(true))
}
