package extraction

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/ledongthuc/pdf"
)

var pdfinfoPagesRe = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// pageCount determines the PDF page count. It asks pdfinfo first, falls back
// to reading the document in-process, and defaults to 1 when both fail.
func (e *Extractor) pageCount(ctx context.Context, pdfPath string, data []byte) int {
	if out, err := e.run(ctx, "pdfinfo", pdfPath); err == nil {
		if m := pdfinfoPagesRe.FindSubmatch(out); m != nil {
			if n, err := strconv.Atoi(string(m[1])); err == nil && n > 0 {
				return n
			}
		}
	}

	if n := readerPageCount(data); n > 0 {
		return n
	}
	return 1
}

// readerPageCount counts pages with the pdf library. The library panics on
// some malformed documents, so this never lets a panic escape.
func readerPageCount(data []byte) (pages int) {
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

// renderPage rasterizes one PDF page to a PNG inside workDir and returns the
// image path. pdftoppm is preferred; Ghostscript is the fallback when it is
// not installed.
func (e *Extractor) renderPage(ctx context.Context, workDir, pdfPath string, page int) (string, error) {
	prefix := filepath.Join(workDir, fmt.Sprintf("page-%d", page))
	imagePath := prefix + ".png"
	pageArg := strconv.Itoa(page)

	_, err := e.run(ctx, "pdftoppm",
		"-png", "-r", renderDPI,
		"-f", pageArg, "-l", pageArg,
		"-singlefile", pdfPath, prefix)
	if err == nil {
		return imagePath, nil
	}

	_, gsErr := e.run(ctx, "gs",
		"-dNOPAUSE", "-dBATCH", "-dQUIET",
		"-sDEVICE=png16m", "-r"+renderDPI,
		"-dFirstPage="+pageArg, "-dLastPage="+pageArg,
		"-sOutputFile="+imagePath, pdfPath)
	if gsErr != nil {
		return "", fmt.Errorf("render page %d: pdftoppm: %v; gs: %v", page, err, gsErr)
	}
	return imagePath, nil
}
