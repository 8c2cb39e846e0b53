// Package fsindex implements the filesystem half of C6: resolving a
// gallery's on-disk state against the current config, writing/reading its
// metadata.json sidecar, and scanning the download directory to list
// completed galleries without a database.
package fsindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hitomidl/internal/domain"
	"hitomidl/internal/templater"
)

const sidecarName = "metadata.json"

// ComicDir returns the absolute directory a comic's images live in under
// downloadDir, given the config's dirFmt template.
func ComicDir(downloadDir string, comic domain.Comic, dirFmt string) string {
	return filepath.Join(downloadDir, templater.DirName(comic, dirFmt))
}

// PagedFileName renders the on-disk page filename for the ordinal-th file
// (1-based) in the chosen format, per §4.5.
func PagedFileName(ordinal int, format string) string {
	return filenameFor(ordinal) + "." + format
}

// PartFileName is the temp name a page is written to before the atomic
// rename to its final name, per §4.5 step 6.
func PartFileName(ordinal int, format string) string {
	return PagedFileName(ordinal, format) + ".part"
}

func filenameFor(ordinal int) string {
	return fmt.Sprintf("%03d", ordinal)
}

// Resolve reports whether comic's sidecar exists on disk and, if so, the
// absolute directory it lives in. This is the derivation behind
// Comic.IsDownloaded / Comic.ComicDownloadDir in §4.3.
func Resolve(downloadDir string, comic domain.Comic, dirFmt string) (isDownloaded bool, dir string) {
	dir = ComicDir(downloadDir, comic, dirFmt)
	if _, err := os.Stat(filepath.Join(dir, sidecarName)); err == nil {
		return true, dir
	}
	return false, ""
}

// WriteSidecar persists comic's descriptor as metadata.json alongside its
// downloaded images, per §4.5's final step.
func WriteSidecar(dir string, comic domain.Comic) error {
	data, err := json.MarshalIndent(comic, "", "  ")
	if err != nil {
		return domain.NewIOError("could not marshal metadata sidecar", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.NewIOError("could not create comic directory", err)
	}

	tmp := filepath.Join(dir, sidecarName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domain.NewIOError("could not write metadata sidecar", err)
	}

	if err := os.Rename(tmp, filepath.Join(dir, sidecarName)); err != nil {
		os.Remove(tmp)
		return domain.NewIOError("could not finalise metadata sidecar", err)
	}

	return nil
}

// ReadSidecar loads a previously written metadata.json.
func ReadSidecar(dir string) (domain.Comic, error) {
	var comic domain.Comic

	data, err := os.ReadFile(filepath.Join(dir, sidecarName))
	if err != nil {
		return comic, domain.NewIOError("could not read metadata sidecar", err)
	}

	if err := json.Unmarshal(data, &comic); err != nil {
		return comic, domain.NewParseError("could not parse metadata sidecar", err)
	}

	return comic, nil
}

// GetDownloadedComics walks downloadDir to the depth implied by dirFmt's
// path separators, collecting one Comic per directory that carries a
// valid sidecar, sorted by descending modified time, per §4.6.
func GetDownloadedComics(downloadDir, dirFmt string) ([]domain.Comic, error) {
	maxDepth := strings.Count(dirFmt, "/") + 1

	type found struct {
		comic   domain.Comic
		modTime int64
	}

	var results []found

	err := filepath.Walk(downloadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(downloadDir, path)
		if relErr != nil {
			return nil
		}
		if rel != "." {
			depth := strings.Count(filepath.ToSlash(rel), "/") + 1
			if depth > maxDepth {
				return filepath.SkipDir
			}
		}

		sidecarPath := filepath.Join(path, sidecarName)
		sidecarInfo, statErr := os.Stat(sidecarPath)
		if statErr != nil {
			return nil
		}

		comic, readErr := ReadSidecar(path)
		if readErr != nil {
			return nil
		}

		comic.IsDownloaded = true
		comic.ComicDownloadDir = path

		results = append(results, found{comic: comic, modTime: sidecarInfo.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return nil, domain.NewIOError("could not walk download directory", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].modTime > results[j].modTime })

	comics := make([]domain.Comic, 0, len(results))
	for _, r := range results {
		comics = append(comics, r.comic)
	}

	return comics, nil
}
