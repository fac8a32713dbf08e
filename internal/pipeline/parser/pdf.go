package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// PDFParser 在本地抽取 PDF 文本。pdfcpu 校验文件并给出页数，
// ledongthuc/pdf 逐页抽取纯文本。
type PDFParser struct {
	// MaxPages 超过该页数的文件直接失败，0 表示不限制。
	MaxPages int
}

// NewPDFParser 创建本地 PDF 解析器。
func NewPDFParser(maxPages int) *PDFParser {
	return &PDFParser{MaxPages: maxPages}
}

// Name 实现 Parser。
func (p *PDFParser) Name() string { return "pdf" }

// Parse 实现 Parser。
func (p *PDFParser) Parse(ctx context.Context, src Source) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, errors.ErrParseFailure.WithMessagef("pdf extraction panicked: %v", r)
		}
	}()

	data, err := src.Bytes(ctx)
	if err != nil {
		return nil, parseFailure(p.Name(), err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, parseFailure(p.Name(), fmt.Errorf("read page count: %w", err))
	}
	if p.MaxPages > 0 && pages > p.MaxPages {
		return nil, errors.ErrParseFailure.WithMessagef("%s has %d pages, limit is %d", src.Filename, pages, p.MaxPages)
	}

	text, err := extractPDFText(ctx, data)
	if err != nil {
		return nil, parseFailure(p.Name(), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrParseFailure.WithMessagef("no text extracted from %s", src.Filename)
	}

	logger.Debugw("Extracted PDF text",
		"document_id", src.DocumentID,
		"pages", pages,
		"text_length", len(text),
	)
	return &Result{Markdown: text, Pages: pages}, nil
}

func extractPDFText(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
