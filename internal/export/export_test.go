package export

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"hitomidl/internal/config"
	"hitomidl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExporter(t *testing.T) (*Exporter, *config.Store) {
	t.Helper()

	store, err := config.New(t.TempDir())
	require.NoError(t, err)

	cfg := store.Get()
	cfg.DownloadDir = t.TempDir()
	cfg.ExportDir = t.TempDir()
	require.NoError(t, store.Save(cfg))

	return New(store), store
}

func tinyPNG(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writePage(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
}

func TestExportCbzStoresPagesUncompressedInOrder(t *testing.T) {
	e, _ := newTestExporter(t)

	comic := domain.Comic{ID: 1, Title: "Sample", DirName: "sample-1", Files: make([]domain.File, 2)}
	comicDir := e.comicDirFor(comic)

	page1 := tinyPNG(t, 2, 2, color.RGBA{R: 255, A: 255})
	page2 := tinyPNG(t, 2, 2, color.RGBA{B: 255, A: 255})
	writePage(t, comicDir, "001.png", page1)
	writePage(t, comicDir, "002.png", page2)

	require.NoError(t, e.ExportCbz(comic))

	archivePath := filepath.Join(e.cfg.Get().ExportDir, comic.DirName+".cbz")
	r, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 2)

	names := []string{r.File[0].Name, r.File[1].Name}
	assert.Equal(t, []string{"001.png", "002.png"}, names)

	for i, want := range [][]byte{page1, page2} {
		assert.Equal(t, zip.Store, r.File[i].Method)

		rc, err := r.File[i].Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()

		assert.Equal(t, want, got)
	}
}

func TestExportCbzFailsWhenPageCountMismatchesDescriptor(t *testing.T) {
	e, _ := newTestExporter(t)

	comic := domain.Comic{ID: 2, Title: "Incomplete", DirName: "incomplete-2", Files: make([]domain.File, 2)}
	comicDir := e.comicDirFor(comic)
	writePage(t, comicDir, "001.png", tinyPNG(t, 1, 1, color.RGBA{A: 255}))

	err := e.ExportCbz(comic)
	assert.Error(t, err)
}

func TestExportCbzEmitsStartAndEndEvents(t *testing.T) {
	e, _ := newTestExporter(t)

	comic := domain.Comic{ID: 3, Title: "Events", DirName: "events-3", Files: make([]domain.File, 1)}
	comicDir := e.comicDirFor(comic)
	writePage(t, comicDir, "001.png", tinyPNG(t, 1, 1, color.RGBA{A: 255}))

	require.NoError(t, e.ExportCbz(comic))

	start := <-e.Events()
	end := <-e.Events()

	startPayload := start.Payload.(domain.ExportEventPayload)
	endPayload := end.Payload.(domain.ExportEventPayload)

	assert.Equal(t, domain.ExportStart, startPayload.Kind)
	assert.Equal(t, domain.ExportEnd, endPayload.Kind)
	assert.Equal(t, startPayload.UUID, endPayload.UUID)
}

func TestExportPdfProducesOnePagePerImage(t *testing.T) {
	e, _ := newTestExporter(t)

	comic := domain.Comic{
		ID:      4,
		Title:   "Pdf Sample",
		DirName: "pdf-sample-4",
		Files: []domain.File{
			{Width: 4, Height: 3},
			{Width: 3, Height: 4},
		},
	}
	comicDir := e.comicDirFor(comic)
	writePage(t, comicDir, "001.png", tinyPNG(t, 4, 3, color.RGBA{R: 255, A: 255}))
	writePage(t, comicDir, "002.png", tinyPNG(t, 3, 4, color.RGBA{G: 255, A: 255}))

	require.NoError(t, e.ExportPdf(comic))

	archivePath := filepath.Join(e.cfg.Get().ExportDir, comic.DirName+".pdf")
	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportPdfRejectsUnsupportedPageFormat(t *testing.T) {
	e, _ := newTestExporter(t)

	comic := domain.Comic{ID: 5, Title: "Unsupported", DirName: "unsupported-5", Files: make([]domain.File, 1)}
	comicDir := e.comicDirFor(comic)
	writePage(t, comicDir, "001.bmp", []byte("not a page format this exporter knows"))

	err := e.ExportPdf(comic)
	assert.Error(t, err)
}

func TestExportPdfFailsOnMalformedAvifOrJxlPage(t *testing.T) {
	e, _ := newTestExporter(t)

	comic := domain.Comic{ID: 6, Title: "Malformed", DirName: "malformed-6", Files: make([]domain.File, 2)}
	comicDir := e.comicDirFor(comic)
	writePage(t, comicDir, "001.avif", []byte("not a real avif file"))
	writePage(t, comicDir, "002.jxl", []byte("not a real jxl file"))

	err := e.ExportPdf(comic)
	assert.Error(t, err)
}
