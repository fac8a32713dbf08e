package parser

import (
	"bytes"
	"context"
	"strings"

	"code.sajari.com/docconv/v2"

	"github.com/kart-io/chunkflow/pkg/errors"
)

const docxMIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// DOCXParser 使用 docconv 在本地抽取 Word 文本。
type DOCXParser struct{}

// NewDOCXParser 创建本地 DOCX 解析器。
func NewDOCXParser() *DOCXParser {
	return &DOCXParser{}
}

// Name 实现 Parser。
func (p *DOCXParser) Name() string { return "docx" }

// Parse 实现 Parser。
func (p *DOCXParser) Parse(ctx context.Context, src Source) (*Result, error) {
	data, err := src.Bytes(ctx)
	if err != nil {
		return nil, parseFailure(p.Name(), err)
	}

	resp, err := docconv.Convert(bytes.NewReader(data), docxMIMEType, false)
	if err != nil {
		return nil, parseFailure(p.Name(), err)
	}
	if strings.TrimSpace(resp.Body) == "" {
		return nil, errors.ErrParseFailure.WithMessagef("no text extracted from %s", src.Filename)
	}
	return &Result{Markdown: resp.Body}, nil
}
