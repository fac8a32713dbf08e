package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/blob/local"
	"github.com/kart-io/chunkflow/pkg/errors"
	options "github.com/kart-io/chunkflow/pkg/options/pipeline"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

func newBlobs(t *testing.T) blob.Store {
	t.Helper()
	s, err := local.New(t.TempDir(), "docs", "http://files.local/")
	require.NoError(t, err)
	return s
}

func putFile(t *testing.T, s blob.Store, key, content string) {
	t.Helper()
	_, err := s.Put(context.Background(), key, strings.NewReader(content), "application/octet-stream")
	require.NoError(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(options.NewOptions())

	p, err := r.Get(filetype.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf", p.Name())

	_, err = r.Get(filetype.Image)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFileType, "image needs an OCR endpoint")

	opts := options.NewOptions()
	opts.OCREndpoint = "http://ocr.local/parse"
	r = NewDefaultRegistry(opts)
	p, err = r.Get(filetype.XLSX)
	require.NoError(t, err)
	assert.Equal(t, "ocr", p.Name())
	assert.Len(t, r.Types(), 4)
}

func TestHTTPParser(t *testing.T) {
	var got HTTPRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		switch got.DocumentID {
		case "ok":
			_, _ = w.Write([]byte(`{"markdown":"# Title\n\nbody","pages":2}`))
		case "key":
			_, _ = w.Write([]byte(`{"markdownKey":"parsed/key/out.md"}`))
		case "empty":
			_, _ = w.Write([]byte(`{"markdown":"   "}`))
		case "badkey":
			_, _ = w.Write([]byte(`{"markdownKey":"../escape.md"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	blobs := newBlobs(t)
	p := NewHTTPParser("ocr", srv.URL, "secret", 5*time.Second, 0)
	ctx := context.Background()

	res, err := p.Parse(ctx, NewSource(blobs, "ok", "uploads/u/scan.png", "scan.png", filetype.Image))
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody", res.Markdown)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "image", got.FileType)
	assert.Equal(t, "http://files.local/uploads/u/scan.png", got.FileURL)

	res, err = p.Parse(ctx, NewSource(blobs, "key", "uploads/u/scan.png", "scan.png", filetype.Image))
	require.NoError(t, err)
	assert.Equal(t, "parsed/key/out.md", res.MarkdownKey)

	for _, id := range []string{"empty", "badkey", "rejected"} {
		_, err = p.Parse(ctx, NewSource(blobs, id, "uploads/u/scan.png", "scan.png", filetype.Image))
		assert.ErrorIs(t, err, errors.ErrParseFailure, id)
	}
}

func TestLocalParsersRejectCorruptFiles(t *testing.T) {
	blobs := newBlobs(t)
	putFile(t, blobs, "uploads/u/bad.pdf", "not a pdf")
	putFile(t, blobs, "uploads/u/bad.docx", "not a zip")
	ctx := context.Background()

	_, err := NewPDFParser(0).Parse(ctx, NewSource(blobs, "d", "uploads/u/bad.pdf", "bad.pdf", filetype.PDF))
	assert.ErrorIs(t, err, errors.ErrParseFailure)

	_, err = NewDOCXParser().Parse(ctx, NewSource(blobs, "d", "uploads/u/bad.docx", "bad.docx", filetype.DOCX))
	assert.ErrorIs(t, err, errors.ErrParseFailure)
}

func TestSourceMissingBlob(t *testing.T) {
	_, err := NewPDFParser(0).Parse(context.Background(), NewSource(newBlobs(t), "d", "uploads/u/missing.pdf", "missing.pdf", filetype.PDF))
	assert.ErrorIs(t, err, errors.ErrBlobNotFound)
}

func TestSourceSizeLimit(t *testing.T) {
	blobs := newBlobs(t)
	putFile(t, blobs, "uploads/u/big.pdf", strings.Repeat("x", 64))
	src := NewSource(blobs, "d", "uploads/u/big.pdf", "big.pdf", filetype.PDF)
	src.maxSize = 16

	_, err := src.Bytes(context.Background())
	assert.ErrorIs(t, err, errors.ErrParseFailure)
}
