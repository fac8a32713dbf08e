// Package parser turns uploaded files into markdown and hands them to the
// chunking stage.
package parser

import (
	"context"
	"io"
	"sync"

	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// DefaultMaxFileSize 本地解析器读取文件的上限。
const DefaultMaxFileSize = 100 << 20

// Source 待解析的文件。文件内容和可访问的 URL 都按需从对象存储获取。
type Source struct {
	DocumentID string
	Key        string
	Filename   string
	FileType   filetype.FileType

	blobs   blob.Store
	maxSize int64
}

// NewSource 创建基于对象存储的 Source。
func NewSource(blobs blob.Store, documentID, key, filename string, ft filetype.FileType) Source {
	return Source{
		DocumentID: documentID,
		Key:        key,
		Filename:   filename,
		FileType:   ft,
		blobs:      blobs,
		maxSize:    DefaultMaxFileSize,
	}
}

// Open 打开文件内容。
func (s Source) Open(ctx context.Context) (io.ReadCloser, error) {
	return s.blobs.Get(ctx, s.Key)
}

// Bytes 读取完整文件内容，超过上限时返回 ErrParseFailure。
func (s Source) Bytes(ctx context.Context) ([]byte, error) {
	rc, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	limit := s.maxSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, errors.ErrBlobIO.WithCause(err)
	}
	if int64(len(data)) > limit {
		return nil, errors.ErrParseFailure.WithMessagef("%s exceeds %d bytes", s.Filename, limit)
	}
	return data, nil
}

// URL 返回外部解析服务可以下载文件的地址。
func (s Source) URL(ctx context.Context) (string, error) {
	return s.blobs.URL(ctx, s.Key)
}

// Result 解析结果。
type Result struct {
	// Markdown 解析出的正文。MarkdownKey 为空时由消费者写入对象存储。
	Markdown string
	// MarkdownKey 解析服务已经写入对象存储的 key。
	MarkdownKey string
	// Pages 页数，未知时为 0。
	Pages int
}

// Parser 将文件解析为 markdown。失败返回 ErrParseFailure。
type Parser interface {
	Name() string
	Parse(ctx context.Context, src Source) (*Result, error)
}

// Registry 按文件类型查找解析器。
type Registry struct {
	mu      sync.RWMutex
	parsers map[filetype.FileType]Parser
}

// NewRegistry 创建空的解析器注册表。
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[filetype.FileType]Parser)}
}

// Register 为文件类型注册解析器，覆盖已有的注册。
func (r *Registry) Register(ft filetype.FileType, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[ft] = p
}

// Get 返回文件类型对应的解析器，没有注册时返回 ErrUnsupportedFileType。
func (r *Registry) Get(ft filetype.FileType) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[ft]
	if !ok {
		return nil, errors.ErrUnsupportedFileType.WithMessagef("no parser registered for %q", ft)
	}
	return p, nil
}

// Types 返回已注册的文件类型。
func (r *Registry) Types() []filetype.FileType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]filetype.FileType, 0, len(r.parsers))
	for ft := range r.parsers {
		out = append(out, ft)
	}
	return out
}

// parseFailure 将解析错误统一为 ErrParseFailure，对象存储错误原样返回。
func parseFailure(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.IsCode(err, errors.ErrBlobIO.Code) || errors.IsCode(err, errors.ErrBlobNotFound.Code) ||
		errors.IsCode(err, errors.ErrParseFailure.Code) {
		return err
	}
	return errors.ErrParseFailure.WithMessagef("%s parser failed", name).WithCause(err)
}
