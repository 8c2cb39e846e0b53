// Package engine implements C8: the stateless command/event facade that
// wires C1-C7 together and is the only thing cmd/serve.go talks to.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"hitomidl/internal/config"
	"hitomidl/internal/download"
	"hitomidl/internal/domain"
	"hitomidl/internal/export"
	"hitomidl/internal/fsindex"
	"hitomidl/internal/gallery"
	"hitomidl/internal/logger"
	"hitomidl/internal/routing"
	"hitomidl/internal/search"
	"hitomidl/internal/sharedhttp"
)

// Engine owns every component and exposes the commands enumerated in §6
// as plain methods; Dispatch (dispatch.go) adapts those to the untyped
// command/event bridge cmd/serve.go speaks over stdio.
type Engine struct {
	appDataDir string

	cfg     *config.Store
	http    *sharedhttp.Client
	routing *routing.Engine
	gallery *gallery.Resolver
	search  *search.Engine
	tasks   *download.Manager
	export  *export.Exporter
	log     logger.Logger

	events chan domain.Event
}

// New wires every component against appDataDir's persisted config and
// starts the background event forwarders, per §4.8.
func New(appDataDir string) (*Engine, error) {
	cfg, err := config.New(appDataDir)
	if err != nil {
		return nil, err
	}
	cfgVal := cfg.Get()

	httpClient := sharedhttp.New(&cfgVal)
	routingEngine := routing.New(httpClient)
	resolver := gallery.New(httpClient, routingEngine, cfg)
	searchEngine := search.New(httpClient, resolver)
	downloads := download.New(httpClient, routingEngine, resolver, cfg)
	exporter := export.New(cfg)
	log := logger.New(appDataDir, &cfgVal)

	e := &Engine{
		appDataDir: appDataDir,
		cfg:        cfg,
		http:       httpClient,
		routing:    routingEngine,
		gallery:    resolver,
		search:     searchEngine,
		tasks:      downloads,
		export:     exporter,
		log:        log,
		events:     make(chan domain.Event, 256),
	}

	go e.forward(downloads.Events())
	go e.forward(exporter.Events())

	if err := cfg.Watch(e.onConfigChanged); err != nil {
		log.Warn().Err(err).Msg("could not install config watcher")
	}

	return e, nil
}

// Events returns the merged outbound stream cmd/serve.go relays to the
// GUI bridge, combining download, export, and config-change events.
func (e *Engine) Events() <-chan domain.Event { return e.events }

func (e *Engine) forward(src <-chan domain.Event) {
	for ev := range src {
		e.events <- ev
	}
}

// onConfigChanged is config.Store's external-edit callback (§4.6): it
// rebuilds the HTTP client against the new proxy settings and emits
// configChangedEvent only after the new config is already in effect.
func (e *Engine) onConfigChanged(cfg domain.Config) {
	e.http.Rebuild(&cfg)
	e.log.SetLogLevel("INFO")
	e.events <- domain.Event{Type: domain.EventConfigChanged, Payload: cfg}
}

func (e *Engine) GetConfig() (domain.Config, error) {
	return e.cfg.Get(), nil
}

// SaveConfig persists cfg and rebuilds the HTTP client so an in-flight
// download or search already reflects the new proxy settings on its
// next request, per §4.6.
func (e *Engine) SaveConfig(cfg domain.Config) error {
	if err := e.cfg.Save(cfg); err != nil {
		return err
	}
	e.http.Rebuild(&cfg)
	e.events <- domain.Event{Type: domain.EventConfigChanged, Payload: cfg}
	return nil
}

func (e *Engine) Search(ctx context.Context, query string, page int) (domain.SearchResult, error) {
	return e.search.Search(ctx, query, page)
}

func (e *Engine) GetPage(ctx context.Context, ids []int, page int) (domain.SearchResult, error) {
	return e.search.GetPage(ctx, ids, page)
}

func (e *Engine) GetComic(ctx context.Context, id int) (domain.Comic, error) {
	return e.gallery.GetComic(ctx, id)
}

func (e *Engine) GetSyncedComic(comic domain.Comic) (domain.Comic, error) {
	return e.gallery.SyncedComic(comic), nil
}

// GetCoverData resolves comic's cover image bytes. The facade accepts
// the already-fetched Comic rather than a bare URL string: routing/salt
// derivation is internal to C2/C3 and never exposed to a caller, so
// there is no stable "cover URL" for a caller to hand back in.
func (e *Engine) GetCoverData(ctx context.Context, comic domain.Comic) ([]byte, error) {
	return e.gallery.CoverBytes(ctx, comic)
}

func (e *Engine) GetSearchSuggestions(ctx context.Context, fragment string) ([]domain.Suggestion, error) {
	return e.search.GetSearchSuggestions(ctx, fragment)
}

func (e *Engine) CreateDownloadTask(comic domain.Comic) error {
	return e.tasks.CreateDownloadTask(comic)
}

func (e *Engine) PauseDownloadTask(comicID int) error  { return e.tasks.PauseDownloadTask(comicID) }
func (e *Engine) ResumeDownloadTask(comicID int) error { return e.tasks.ResumeDownloadTask(comicID) }
func (e *Engine) CancelDownloadTask(comicID int) error { return e.tasks.CancelDownloadTask(comicID) }

func (e *Engine) GetDownloadedComics() ([]domain.Comic, error) {
	cfg := e.cfg.Get()
	return fsindex.GetDownloadedComics(cfg.DownloadDir, cfg.DirFmt)
}

func (e *Engine) ExportPdf(comic domain.Comic) error { return e.export.ExportPdf(comic) }
func (e *Engine) ExportCbz(comic domain.Comic) error { return e.export.ExportCbz(comic) }

// GetLogsDirSize sums the byte size of every file under the logs
// directory, per §6.
func (e *Engine) GetLogsDirSize() (uint64, error) {
	logsDir := filepath.Join(e.appDataDir, "logs")

	var total uint64
	err := filepath.Walk(logsDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += uint64(info.Size())
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, domain.NewIOError("could not compute logs directory size", err)
	}

	return total, nil
}

// ShowPathInFileManager is the one command that reaches outside the
// process boundary into the host desktop shell; it is a thin external
// collaborator with no retrievable-pack library behind it.
func (e *Engine) ShowPathInFileManager(path string) error {
	return openInFileManager(path)
}

// Close stops every background component the Engine owns.
func (e *Engine) Close() {
	e.tasks.Close()
}
