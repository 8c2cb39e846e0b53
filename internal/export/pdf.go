package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"hitomidl/internal/domain"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/jpegxl"
	"github.com/go-pdf/fpdf"
	"golang.org/x/image/webp"
)

// ExportPdf packages comic's downloaded pages into a single PDF at
// exportDir/{comic.dirName}.pdf, one page per image at its native pixel
// dimensions, per §4.7. Unlike a manhwa-oriented reader, no page is
// skipped or reflowed for orientation.
func (e *Exporter) ExportPdf(comic domain.Comic) error {
	uuid := newCorrelationID()
	e.emit(domain.EventExportPDF, domain.ExportEventPayload{Kind: domain.ExportStart, UUID: uuid, Title: comic.Title})

	if err := e.exportPdf(comic); err != nil {
		e.emit(domain.EventExportPDF, domain.ExportEventPayload{Kind: domain.ExportError, UUID: uuid, Title: comic.Title, Error: err.Error()})
		return err
	}

	e.emit(domain.EventExportPDF, domain.ExportEventPayload{Kind: domain.ExportEnd, UUID: uuid, Title: comic.Title})
	return nil
}

func (e *Exporter) exportPdf(comic domain.Comic) error {
	comicDir := e.comicDirFor(comic)
	pages, err := verifyComplete(comic, comicDir)
	if err != nil {
		return err
	}

	finalPath, err := e.artifactPath(comic, "pdf")
	if err != nil {
		return err
	}

	tmpPath := finalPath + ".tmp"
	if err := writePdfArchive(tmpPath, pages); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return domain.NewIOError("could not finalise PDF archive", err)
	}

	return nil
}

// writePdfArchive lays out one portrait page per image, each page sized
// to that image's own pixel extent, so the PDF reproduces the gallery
// at native resolution with no orientation filtering.
func writePdfArchive(path string, pages []string) error {
	pdf := fpdf.New(fpdf.OrientationPortrait, fpdf.UnitPoint, "", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, page := range pages {
		imgName, width, height, err := registerPage(pdf, page, i)
		if err != nil {
			return err
		}

		pdf.AddPageFormat(fpdf.OrientationPortrait, fpdf.SizeType{Wd: width, Ht: height})
		pdf.ImageOptions(imgName, 0, 0, width, height, false, fpdf.ImageOptions{}, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return domain.NewParseError("could not lay out PDF pages", err)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return domain.NewIOError("could not write PDF archive", err)
	}

	return nil
}

// registerPage registers page with pdf under a unique image name and
// returns that name plus its pixel extent. PNG/JPEG/GIF pages are
// registered directly, matching their on-disk format as fpdf understands
// it natively. WebP, AVIF, and JXL pages — the three formats the site
// itself ever serves, per Comic.File's hasavif/haswebp/hasjxl flags — have
// no native fpdf support, so each is decoded and re-encoded to PNG before
// registration.
func registerPage(pdf *fpdf.Fpdf, page string, index int) (name string, width, height float64, err error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(page), "."))
	name = fmt.Sprintf("page-%d", index)

	switch ext {
	case "png", "jpg", "jpeg", "gif":
		imgType := strings.ToUpper(ext)
		if imgType == "JPG" {
			imgType = "JPEG"
		}

		f, openErr := os.Open(page)
		if openErr != nil {
			return "", 0, 0, domain.NewIOError("could not open page file", openErr)
		}
		defer f.Close()

		info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imgType}, f)
		width, height = info.Extent()
		return name, width, height, nil

	case "webp", "avif", "jxl":
		img, decodeErr := decodePage(ext, page)
		if decodeErr != nil {
			return "", 0, 0, decodeErr
		}

		var buf bytes.Buffer
		if encodeErr := png.Encode(&buf, img); encodeErr != nil {
			return "", 0, 0, domain.NewParseError("could not re-encode page for PDF embedding", encodeErr)
		}

		info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
		width, height = info.Extent()
		return name, width, height, nil

	default:
		return "", 0, 0, domain.NewParseError(fmt.Sprintf("PDF export does not support %s pages", ext), nil)
	}
}

// decodePage opens path and decodes it as ext, one of "webp", "avif", or
// "jxl".
func decodePage(ext, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewIOError("could not open page file", err)
	}
	defer f.Close()

	var img image.Image
	var decodeErr error

	switch ext {
	case "webp":
		img, decodeErr = webp.Decode(f)
	case "avif":
		img, decodeErr = avif.Decode(f)
	case "jxl":
		img, decodeErr = jpegxl.Decode(f)
	}

	if decodeErr != nil {
		return nil, domain.NewParseError(fmt.Sprintf("could not decode %s page", ext), decodeErr)
	}
	return img, nil
}
