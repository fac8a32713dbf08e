package parser

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/httpclient"
	"github.com/kart-io/chunkflow/pkg/validator"
)

// HTTPRequest 发送给外部解析服务的请求。
type HTTPRequest struct {
	FileURL    string `json:"fileUrl"`
	FileType   string `json:"fileType"`
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename,omitempty"`
}

// HTTPResponse 外部解析服务的结构化结果。服务可以直接返回正文，
// 也可以把正文写入对象存储后返回 key。
type HTTPResponse struct {
	Markdown    string `json:"markdown"`
	MarkdownKey string `json:"markdownKey"`
	Pages       int    `json:"pages,omitempty"`
}

// HTTPParser 调用外部解析服务（OCR、表格）。
type HTTPParser struct {
	name     string
	endpoint string
	token    string
	client   *httpclient.Client
}

// NewHTTPParser 创建 HTTP 解析器。
func NewHTTPParser(name, endpoint, token string, timeout time.Duration, maxRetries int) *HTTPParser {
	return &HTTPParser{
		name:     name,
		endpoint: endpoint,
		token:    token,
		client:   httpclient.NewClient(timeout, maxRetries),
	}
}

// Name 实现 Parser。
func (p *HTTPParser) Name() string { return p.name }

// Parse 实现 Parser。
func (p *HTTPParser) Parse(ctx context.Context, src Source) (*Result, error) {
	fileURL, err := src.URL(ctx)
	if err != nil {
		return nil, parseFailure(p.name, err)
	}

	headers := http.Header{}
	if p.token != "" {
		headers.Set("Authorization", "Bearer "+p.token)
	}

	var out HTTPResponse
	req := HTTPRequest{
		FileURL:    fileURL,
		FileType:   src.FileType.String(),
		DocumentID: src.DocumentID,
		Filename:   src.Filename,
	}
	if err := p.client.PostJSON(ctx, p.endpoint, headers, req, &out); err != nil {
		return nil, parseFailure(p.name, err)
	}

	if strings.TrimSpace(out.Markdown) == "" && out.MarkdownKey == "" {
		return nil, errors.ErrParseFailure.WithMessagef("%s parser returned an empty result for %s", p.name, src.Filename)
	}
	if out.MarkdownKey != "" && !validator.IsObjectKey(out.MarkdownKey) {
		return nil, errors.ErrParseFailure.WithMessagef("%s parser returned an invalid markdown key %q", p.name, out.MarkdownKey)
	}
	return &Result{Markdown: out.Markdown, MarkdownKey: out.MarkdownKey, Pages: out.Pages}, nil
}
