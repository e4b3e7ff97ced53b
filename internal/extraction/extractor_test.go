package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivolkov/statement-ingest/internal/domain"
)

type fakeStorage struct {
	data map[string][]byte
}

func (f *fakeStorage) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) (string, error) {
	uri := "gs://" + bucket + "/" + object
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[uri] = data
	return uri, nil
}

func (f *fakeStorage) Fetch(ctx context.Context, uri string) ([]byte, error) {
	data, ok := f.data[uri]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	return data, nil
}

type fakeDetector struct {
	texts []string // one per call, last repeats
	err   error
	calls int
}

func (f *fakeDetector) DetectText(ctx context.Context, image []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	idx := f.calls - 1
	if idx >= len(f.texts) {
		idx = len(f.texts) - 1
	}
	return f.texts[idx], nil
}

// fakeRunner emulates pdfinfo and pdftoppm. pdftoppm writes the PNG the
// extractor expects to find.
func fakeRunner(pages int) runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "pdfinfo":
			return []byte(fmt.Sprintf("Title: test\nPages:          %d\nEncrypted: no\n", pages)), nil
		case "pdftoppm":
			prefix := args[len(args)-1]
			return nil, os.WriteFile(prefix+".png", []byte("png-bytes"), 0o600)
		default:
			return nil, fmt.Errorf("unexpected command %s", name)
		}
	}
}

func newTestExtractor(st *fakeStorage, det *fakeDetector, run runner) *Extractor {
	return &Extractor{storage: st, detector: det, run: run}
}

func seedPDF(t *testing.T, st *fakeStorage) string {
	t.Helper()
	uri, err := st.Upload(context.Background(), "statements", "user-1/doc.pdf", []byte("%PDF-1.4 fake"), domain.MIMETypePDF)
	require.NoError(t, err)
	return uri
}

func TestExtractImage(t *testing.T) {
	st := &fakeStorage{}
	uri, err := st.Upload(context.Background(), "statements", "user-1/scan.png", []byte("png"), domain.MIMETypePNG)
	require.NoError(t, err)

	det := &fakeDetector{texts: []string{"CHASE BANK\n$4.50"}}
	e := newTestExtractor(st, det, fakeRunner(1))

	text, err := e.Extract(context.Background(), uri, domain.MIMETypePNG)
	require.NoError(t, err)
	assert.Equal(t, "CHASE BANK\n$4.50", text)
	assert.Equal(t, 1, det.calls)
}

func TestExtractImageEmptyTextIsValid(t *testing.T) {
	st := &fakeStorage{}
	uri, err := st.Upload(context.Background(), "statements", "user-1/scan.jpg", []byte("jpg"), domain.MIMETypeJPEG)
	require.NoError(t, err)

	e := newTestExtractor(st, &fakeDetector{}, fakeRunner(1))

	text, err := e.Extract(context.Background(), uri, domain.MIMETypeJPEG)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractUnsupportedMIMEType(t *testing.T) {
	e := newTestExtractor(&fakeStorage{}, &fakeDetector{}, fakeRunner(1))

	_, err := e.Extract(context.Background(), "gs://statements/x", "image/gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mime type")
}

func TestExtractPDFJoinsPagesWithMarkers(t *testing.T) {
	st := &fakeStorage{}
	uri := seedPDF(t, st)

	det := &fakeDetector{texts: []string{"page one text", "page two text", "page three text"}}
	e := newTestExtractor(st, det, fakeRunner(3))

	text, err := e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.NoError(t, err)

	assert.Equal(t, 3, det.calls)
	for i, want := range []string{"page one text", "page two text", "page three text"} {
		marker := fmt.Sprintf("--- Page %d ---\n%s", i+1, want)
		assert.Contains(t, text, marker)
	}

	// Markers appear in page order.
	assert.Less(t, strings.Index(text, "--- Page 1 ---"), strings.Index(text, "--- Page 2 ---"))
	assert.Less(t, strings.Index(text, "--- Page 2 ---"), strings.Index(text, "--- Page 3 ---"))
}

func TestExtractPDFCapsPageCount(t *testing.T) {
	st := &fakeStorage{}
	uri := seedPDF(t, st)

	det := &fakeDetector{texts: []string{"some text"}}
	e := newTestExtractor(st, det, fakeRunner(12))

	text, err := e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.NoError(t, err)

	assert.Equal(t, maxPDFPages, det.calls)
	assert.Contains(t, text, "--- Page 10 ---")
	assert.NotContains(t, text, "--- Page 11 ---")
}

func TestExtractPDFNoTextDetected(t *testing.T) {
	st := &fakeStorage{}
	uri := seedPDF(t, st)

	det := &fakeDetector{texts: []string{"", "   ", ""}}
	e := newTestExtractor(st, det, fakeRunner(3))

	_, err := e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text detected")
}

func TestExtractPDFGhostscriptFallback(t *testing.T) {
	st := &fakeStorage{}
	uri := seedPDF(t, st)

	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "pdfinfo":
			return []byte("Pages: 1\n"), nil
		case "pdftoppm":
			return nil, errors.New("pdftoppm: not found")
		case "gs":
			var out string
			for _, a := range args {
				if strings.HasPrefix(a, "-sOutputFile=") {
					out = strings.TrimPrefix(a, "-sOutputFile=")
				}
			}
			return nil, os.WriteFile(out, []byte("png-bytes"), 0o600)
		default:
			return nil, fmt.Errorf("unexpected command %s", name)
		}
	}

	det := &fakeDetector{texts: []string{"rendered via gs"}}
	e := newTestExtractor(st, det, run)

	text, err := e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.NoError(t, err)
	assert.Contains(t, text, "rendered via gs")
}

func TestExtractPDFDetectorFailure(t *testing.T) {
	st := &fakeStorage{}
	uri := seedPDF(t, st)

	det := &fakeDetector{err: errors.New("quota exceeded")}
	e := newTestExtractor(st, det, fakeRunner(2))

	_, err := e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestExtractPDFCleansUpTempFiles(t *testing.T) {
	st := &fakeStorage{}
	uri := seedPDF(t, st)

	before := scratchDirs(t)

	det := &fakeDetector{texts: []string{"text"}}
	e := newTestExtractor(st, det, fakeRunner(2))
	_, err := e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.NoError(t, err)

	// Failure path cleans up too.
	e = newTestExtractor(st, &fakeDetector{err: errors.New("boom")}, fakeRunner(2))
	_, err = e.Extract(context.Background(), uri, domain.MIMETypePDF)
	require.Error(t, err)

	assert.Equal(t, before, scratchDirs(t), "extraction left scratch directories behind")
}

func scratchDirs(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "statement-extract-*"))
	require.NoError(t, err)
	return matches
}

func TestPDFInfoPageCountParsing(t *testing.T) {
	e := newTestExtractor(&fakeStorage{}, &fakeDetector{}, fakeRunner(7))

	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "statement.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF"), 0o600))

	assert.Equal(t, 7, e.pageCount(context.Background(), pdfPath, []byte("%PDF")))
}

func TestPageCountDefaultsToOne(t *testing.T) {
	failing := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("not installed")
	}
	e := newTestExtractor(&fakeStorage{}, &fakeDetector{}, failing)

	// Not a parseable PDF either, so the reader fallback fails too.
	assert.Equal(t, 1, e.pageCount(context.Background(), "/nonexistent.pdf", []byte("junk")))
}
