// Package filetype defines the closed set of document types the pipeline
// routes, and the queues the pipeline is built from.
package filetype

import (
	"mime"
	"path"
	"strings"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// Queue names.
const (
	FileProcessQueue = "file-process-queue"
	PDFParserQueue   = "pdf-parser-queue"
	DOCXParserQueue  = "docx-parser-queue"
	XLSXParserQueue  = "xlsx-parser-queue"
	ChunkingQueue    = "chunking-queue"
)

// Queues lists every pipeline queue in declaration order.
func Queues() []string {
	return []string{FileProcessQueue, PDFParserQueue, DOCXParserQueue, XLSXParserQueue, ChunkingQueue}
}

// ParserQueues lists the queues parser consumers read from.
func ParserQueues() []string {
	return []string{PDFParserQueue, DOCXParserQueue, XLSXParserQueue}
}

// FileType is a routable document type.
type FileType string

const (
	PDF     FileType = "pdf"
	DOCX    FileType = "docx"
	XLSX    FileType = "xlsx"
	Image   FileType = "image"
	Unknown FileType = "unknown"
)

// ParseFileType maps a wire value to a FileType. Matching ignores case and
// surrounding whitespace; anything unrecognised is Unknown.
func ParseFileType(s string) FileType {
	switch FileType(strings.ToLower(strings.TrimSpace(s))) {
	case PDF:
		return PDF
	case DOCX:
		return DOCX
	case XLSX:
		return XLSX
	case Image:
		return Image
	default:
		return Unknown
	}
}

// FromMIMEType maps an upload content type to a FileType.
func FromMIMEType(contentType string) FileType {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "application/pdf":
		return PDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return DOCX
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return XLSX
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/tiff":
		return Image
	default:
		return Unknown
	}
}

// FromFilename maps a file extension to a FileType.
func FromFilename(name string) FileType {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return PDF
	case ".docx":
		return DOCX
	case ".xlsx":
		return XLSX
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff":
		return Image
	default:
		return Unknown
	}
}

// ParserQueue returns the queue the parser for t consumes. Images go to
// the PDF parser, which handles OCR. Unknown types are
// ErrUnsupportedFileType and must never be republished.
func (t FileType) ParserQueue() (string, error) {
	switch t {
	case PDF, Image:
		return PDFParserQueue, nil
	case DOCX:
		return DOCXParserQueue, nil
	case XLSX:
		return XLSXParserQueue, nil
	case Unknown:
		return "", errors.ErrUnsupportedFileType.WithMessagef("unsupported file type %q", string(t))
	default:
		return "", errors.ErrUnsupportedFileType.WithMessagef("unsupported file type %q", string(t))
	}
}

// IsSupported reports whether t can be routed.
func (t FileType) IsSupported() bool {
	_, err := t.ParserQueue()
	return err == nil
}

func (t FileType) String() string {
	return string(t)
}
