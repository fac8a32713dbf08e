package parser

import (
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	options "github.com/kart-io/chunkflow/pkg/options/pipeline"
)

// NewDefaultRegistry 按配置注册解析器：PDF 和 DOCX 在本地解析，
// 图片和表格在配置了外部解析服务时交给它处理。
func NewDefaultRegistry(opts *options.Options) *Registry {
	r := NewRegistry()
	r.Register(filetype.PDF, NewPDFParser(opts.MaxPDFPages))
	r.Register(filetype.DOCX, NewDOCXParser())

	if opts.OCREndpoint != "" {
		ocr := NewHTTPParser("ocr", opts.OCREndpoint, opts.OCRToken, opts.ParserTimeout, opts.ParserRetries)
		r.Register(filetype.Image, ocr)
		r.Register(filetype.XLSX, ocr)
	}
	return r
}
