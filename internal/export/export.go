// Package export implements C7: packaging a downloaded gallery's pages
// into a single CBZ or PDF artifact.
package export

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hitomidl/internal/config"
	"hitomidl/internal/domain"
	"hitomidl/internal/fsindex"

	"github.com/google/uuid"
)

// Exporter is C7: it verifies a gallery's on-disk completeness and
// streams it into a CBZ or PDF artifact under the configured exportDir.
type Exporter struct {
	cfg    *config.Store
	events chan domain.Event
}

func New(cfg *config.Store) *Exporter {
	return &Exporter{cfg: cfg, events: make(chan domain.Event, 64)}
}

// Events returns the Start/End/Error stream the facade (C8) forwards to
// the GUI bridge.
func (e *Exporter) Events() <-chan domain.Event { return e.events }

func (e *Exporter) emit(kind domain.EventType, payload domain.ExportEventPayload) {
	e.events <- domain.Event{Type: kind, Payload: payload}
}

// listPages returns the comic's page files in ascending page order,
// skipping the metadata sidecar and any leftover .part files, per §4.7.
func listPages(comicDir string) ([]string, error) {
	entries, err := os.ReadDir(comicDir)
	if err != nil {
		return nil, domain.NewIOError("could not read comic directory", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "metadata.json" || strings.HasSuffix(name, ".part") {
			continue
		}
		names = append(names, name)
	}

	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(comicDir, name)
	}
	return paths, nil
}

// verifyComplete checks that comic's download directory holds exactly
// comic.files.length pages, per §4.7's precondition on both exporters.
func verifyComplete(comic domain.Comic, comicDir string) ([]string, error) {
	pages, err := listPages(comicDir)
	if err != nil {
		return nil, err
	}
	if len(pages) != len(comic.Files) {
		return nil, domain.NewIOError(
			"gallery is not fully downloaded",
			nil,
		)
	}
	return pages, nil
}

// comicDirFor resolves the absolute on-disk directory for comic under
// the current config, per §4.6.
func (e *Exporter) comicDirFor(comic domain.Comic) string {
	cfg := e.cfg.Get()
	return fsindex.ComicDir(cfg.DownloadDir, comic, cfg.DirFmt)
}

// artifactPath builds the output path for an export, creating exportDir
// if necessary.
func (e *Exporter) artifactPath(comic domain.Comic, ext string) (string, error) {
	cfg := e.cfg.Get()
	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return "", domain.NewIOError("could not create export directory", err)
	}
	return filepath.Join(cfg.ExportDir, comic.DirName+"."+ext), nil
}

func newCorrelationID() string { return uuid.NewString() }
