// Package download implements C5: per-gallery download task state
// machines, a global image-concurrency semaphore, pause/resume/cancel,
// a speed meter, and event fan-out.
package download

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"hitomidl/internal/config"
	"hitomidl/internal/domain"
	"hitomidl/internal/fsindex"
	"hitomidl/internal/gallery"
	"hitomidl/internal/routing"
	"hitomidl/internal/sharedhttp"

	"golang.org/x/sync/semaphore"
)

// imgConcurrency bounds concurrent image downloads across all tasks,
// the sole backpressure point in the scheduler, per §4.5.
const imgConcurrency = 5

// Manager owns every gallery's download task and the resources they
// share: the global image permit, the speed meter, and the event stream.
type Manager struct {
	http     *sharedhttp.Client
	routing  *routing.Engine
	resolver *gallery.Resolver
	cfg      *config.Store

	globalSem *semaphore.Weighted
	speed     *speedMeter
	events    chan domain.Event

	mu    sync.Mutex
	tasks map[int]*task
}

func New(httpClient *sharedhttp.Client, routingEngine *routing.Engine, resolver *gallery.Resolver, cfg *config.Store) *Manager {
	m := &Manager{
		http:      httpClient,
		routing:   routingEngine,
		resolver:  resolver,
		cfg:       cfg,
		globalSem: semaphore.NewWeighted(imgConcurrency),
		speed:     newSpeedMeter(),
		events:    make(chan domain.Event, 256),
		tasks:     make(map[int]*task),
	}
	go m.speed.run(m.emitSpeed)
	return m
}

// Events returns the outbound event stream the facade (C8) forwards to
// the GUI bridge.
func (m *Manager) Events() <-chan domain.Event { return m.events }

// Close stops the speed-meter aggregator goroutine.
func (m *Manager) Close() { m.speed.stop() }

func (m *Manager) emitLifecycle(ev domain.Event) {
	m.events <- ev
}

func (m *Manager) emitSpeed(formatted string) {
	select {
	case m.events <- domain.Event{Type: domain.EventDownloadSpeed, Payload: domain.DownloadSpeedPayload{Speed: formatted}}:
	default:
		// drop-oldest policy for speed events per §9: a full buffer means a
		// fresher sample is already on its way, so this one is disposable.
	}
}

// CreateDownloadTask inserts a new task in Pending and schedules it.
// A non-terminal existing task for the same gallery is a no-op; a
// terminal one is replaced, per §4.5. A file advertising none of the
// three known image formats is rejected here, at task-creation time,
// rather than left to fail mid-download partway through the gallery
// (§9's open question) — browsing a gallery with such a file through
// GetComic/GetPage is unaffected, since this check only gates downloads.
func (m *Manager) CreateDownloadTask(comic domain.Comic) error {
	m.mu.Lock()
	if existing, ok := m.tasks[comic.ID]; ok && !existing.isTerminal() {
		m.mu.Unlock()
		return nil
	}

	for _, f := range comic.Files {
		if !f.HasWebp && !f.HasAvif && !f.HasJxl {
			m.mu.Unlock()
			return domain.ErrNoUsableFormat
		}
	}

	t := newTask(comic)
	m.tasks[comic.ID] = t
	m.mu.Unlock()

	m.emitLifecycle(domain.Event{Type: domain.EventDownloadTask, Payload: t.snapshot(domain.ProgressEventCreate)})

	go m.run(t)
	return nil
}

func (m *Manager) PauseDownloadTask(comicID int) error {
	t, ok := m.lookup(comicID)
	if !ok {
		return domain.NewNotFoundError(fmt.Sprintf("no download task for gallery %d", comicID), nil)
	}
	if t.pause() {
		m.emitLifecycle(domain.Event{Type: domain.EventDownloadTask, Payload: t.snapshot(domain.ProgressEventUpdate)})
	}
	return nil
}

func (m *Manager) ResumeDownloadTask(comicID int) error {
	t, ok := m.lookup(comicID)
	if !ok {
		return domain.NewNotFoundError(fmt.Sprintf("no download task for gallery %d", comicID), nil)
	}
	changed, reschedule := t.resume()
	if changed {
		m.emitLifecycle(domain.Event{Type: domain.EventDownloadTask, Payload: t.snapshot(domain.ProgressEventUpdate)})
	}
	if reschedule {
		go m.run(t)
	}
	return nil
}

func (m *Manager) CancelDownloadTask(comicID int) error {
	t, ok := m.lookup(comicID)
	if !ok {
		return domain.NewNotFoundError(fmt.Sprintf("no download task for gallery %d", comicID), nil)
	}
	if t.requestCancel() {
		m.emitLifecycle(domain.Event{Type: domain.EventDownloadTask, Payload: t.snapshot(domain.ProgressEventUpdate)})
	}
	return nil
}

func (m *Manager) lookup(comicID int) (*task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[comicID]
	return t, ok
}

// run is the scheduler loop for one task: acquire the per-task permit,
// transition to Downloading, and walk comic.files per the 7-step
// algorithm in §4.5.
func (m *Manager) run(t *task) {
	if err := t.permit.Acquire(t.ctx, 1); err != nil {
		return
	}
	defer t.permit.Release(1)

	if err := t.waitWhilePaused(t.ctx); err != nil {
		m.finishCancelled(t)
		return
	}

	t.setState(domain.StateDownloading)

	cfg := m.cfg.Get()
	comicDir := fsindex.ComicDir(cfg.DownloadDir, t.comic, cfg.DirFmt)
	preferred := domain.ParseDownloadFormat(cfg.DownloadFormat)

	for i, f := range t.comic.Files {
		ordinal := i + 1

		format, err := f.PreferredFormat(preferred)
		if err != nil {
			m.finishFailed(t, err)
			return
		}

		pagedName := fsindex.PagedFileName(ordinal, format)
		finalPath := filepath.Join(comicDir, pagedName)

		if _, err := os.Stat(finalPath); err == nil {
			t.incrementCompleted()
			m.maybeEmit(t, false)
			continue
		}

		for {
			if err := t.waitWhilePaused(t.ctx); err != nil {
				m.finishCancelled(t)
				return
			}
			if err := m.globalSem.Acquire(t.ctx, 1); err != nil {
				m.finishCancelled(t)
				return
			}
			// A pause or cancel that landed while blocked on the permit
			// hands the slot back before parking or stopping.
			if s := t.getState(); s != domain.StatePaused && s != domain.StateCancelled {
				break
			}
			m.globalSem.Release(1)
		}

		if err := m.downloadImage(t, f, format, ordinal, comicDir); err != nil {
			m.globalSem.Release(1)
			m.finishFailed(t, err)
			return
		}
		m.globalSem.Release(1)

		t.incrementCompleted()
		m.maybeEmit(t, false)
	}

	if err := fsindex.WriteSidecar(comicDir, t.comic); err != nil {
		m.finishFailed(t, err)
		return
	}

	t.setComic(m.resolver.SyncedComic(t.comic))
	t.setState(domain.StateCompleted)
	m.maybeEmit(t, true)
}

func (m *Manager) maybeEmit(t *task, force bool) {
	if t.shouldEmit(force) {
		m.emitLifecycle(domain.Event{Type: domain.EventDownloadTask, Payload: t.snapshot(domain.ProgressEventUpdate)})
	}
}

func (m *Manager) finishCancelled(t *task) {
	t.setState(domain.StateCancelled)
	m.maybeEmit(t, true)
}

// finishFailed marks t Failed, unless it was already cancelled out from
// under the in-flight step that produced err: a cancel mid-transfer aborts
// the pending HTTP call or file write with a wrapped context error, and
// that failure must not stomp the sticky Cancelled state with Failed
// (there is no Cancelled->Failed edge in the state diagram, §3).
func (m *Manager) finishFailed(t *task, _ error) {
	if t.getState() == domain.StateCancelled {
		m.maybeEmit(t, true)
		return
	}
	t.setState(domain.StateFailed)
	m.maybeEmit(t, true)
}

// downloadImage performs step 4-6 of §4.5: derive the URL, GET the
// bytes (one routing reload + retry on a routing-stale 404/403), and
// atomically write the page to disk.
func (m *Manager) downloadImage(t *task, f domain.File, format string, ordinal int, comicDir string) error {
	url, err := m.routing.ImageURL(t.ctx, f.Hash, format)
	if err != nil {
		return err
	}

	resp, err := m.http.Get(t.ctx, url)
	if isStaleRoutingError(err) {
		if reloadErr := m.routing.ReloadRouting(t.ctx); reloadErr == nil {
			if url, err = m.routing.ImageURL(t.ctx, f.Hash, format); err == nil {
				resp, err = m.http.Get(t.ctx, url)
			}
		}
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(comicDir, 0o755); err != nil {
		return domain.NewIOError("could not create comic directory", err)
	}

	partPath := filepath.Join(comicDir, fsindex.PartFileName(ordinal, format))
	finalPath := filepath.Join(comicDir, fsindex.PagedFileName(ordinal, format))

	out, err := os.Create(partPath)
	if err != nil {
		return domain.NewIOError("could not create page file", err)
	}

	_, copyErr := io.Copy(&countingWriter{w: out, meter: m.speed}, resp.Body)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(partPath)
		return domain.NewIOError("could not write page bytes", copyErr)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return domain.NewIOError("could not finalise page file", closeErr)
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return domain.NewIOError("could not rename page file", err)
	}

	return nil
}

func isStaleRoutingError(err error) bool {
	typed, ok := err.(*domain.Error)
	return ok && typed.Kind == domain.ErrKindNotFound
}

// countingWriter reports every chunk it forwards to the shared speed
// meter, used to feed the 500ms aggregator in §4.5 without threading a
// counter through the whole download path.
type countingWriter struct {
	w     io.Writer
	meter *speedMeter
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.meter.add(int64(n))
	}
	return n, err
}
