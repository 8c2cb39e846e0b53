package export

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"hitomidl/internal/domain"
)

// ExportCbz packages comic's downloaded pages into a store-only (no
// compression) CBZ at exportDir/{comic.dirName}.cbz, per §4.7. Entries
// are written in page order with the on-disk bytes unchanged, so the
// archive reproduces exactly what listPages found.
func (e *Exporter) ExportCbz(comic domain.Comic) error {
	uuid := newCorrelationID()
	e.emit(domain.EventExportCBZ, domain.ExportEventPayload{Kind: domain.ExportStart, UUID: uuid, Title: comic.Title})

	if err := e.exportCbz(comic); err != nil {
		e.emit(domain.EventExportCBZ, domain.ExportEventPayload{Kind: domain.ExportError, UUID: uuid, Title: comic.Title, Error: err.Error()})
		return err
	}

	e.emit(domain.EventExportCBZ, domain.ExportEventPayload{Kind: domain.ExportEnd, UUID: uuid, Title: comic.Title})
	return nil
}

func (e *Exporter) exportCbz(comic domain.Comic) error {
	comicDir := e.comicDirFor(comic)
	pages, err := verifyComplete(comic, comicDir)
	if err != nil {
		return err
	}

	finalPath, err := e.artifactPath(comic, "cbz")
	if err != nil {
		return err
	}

	tmpPath := finalPath + ".tmp"
	if err := writeCbzArchive(tmpPath, pages); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return domain.NewIOError("could not finalise CBZ archive", err)
	}

	return nil
}

// writeCbzArchive streams pages into a new zip at path, using
// zip.Store so pages round-trip byte-for-byte rather than the default
// DEFLATE compression.
func writeCbzArchive(path string, pages []string) error {
	out, err := os.Create(path)
	if err != nil {
		return domain.NewIOError("could not create CBZ archive", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, page := range pages {
		if err := addStoredFile(zw, page); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return domain.NewIOError("could not finalise CBZ archive", err)
	}

	return nil
}

func addStoredFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return domain.NewIOError("could not open page file", err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   filepath.Base(path),
		Method: zip.Store,
	})
	if err != nil {
		return domain.NewIOError("could not add page to CBZ archive", err)
	}

	if _, err := io.Copy(w, src); err != nil {
		return domain.NewIOError("could not write page to CBZ archive", err)
	}

	return nil
}
