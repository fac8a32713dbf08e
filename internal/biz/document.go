package biz

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
)

const (
	// DefaultMaxUploadSize 默认上传大小上限（10 MiB）。
	DefaultMaxUploadSize int64 = 10 << 20

	// sniffLen 内容探测读取的字节数。
	sniffLen = 3072

	// DefaultUsername 未提供用户名时使用。
	DefaultUsername = "anonymous"
)

// 允许上传的 MIME 类型。
var uploadMIMETypes = map[filetype.FileType]string{
	filetype.PDF:  "application/pdf",
	filetype.DOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	filetype.XLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// UploadInput 一次上传的输入。
type UploadInput struct {
	// Username 用于对象键前缀，空时为 anonymous。
	Username string
	// UserID 文档归属用户。
	UserID string
	// Filename 客户端提供的原始文件名。
	Filename string
	// Size 客户端声明的大小，未知时为 -1。
	Size int64
	// Body 文件内容。
	Body io.Reader
}

// DocumentService 文档上传与生命周期管理。
type DocumentService struct {
	store         store.Factory
	blobs         blob.Store
	broker        rabbitmq.Broker
	cache         *SearchCache
	maxUploadSize int64
	now           func() time.Time
}

// NewDocumentService 创建文档服务。maxUploadSize 不大于 0 时使用默认值。
func NewDocumentService(store store.Factory, blobs blob.Store, broker rabbitmq.Broker, cache *SearchCache, maxUploadSize int64) *DocumentService {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &DocumentService{
		store:         store,
		blobs:         blobs,
		broker:        broker,
		cache:         cache,
		maxUploadSize: maxUploadSize,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// MaxUploadSize 返回上传大小上限。
func (s *DocumentService) MaxUploadSize() int64 {
	return s.maxUploadSize
}

// Upload 探测内容类型、写入对象存储、创建 pending 文档并投递到文件处理队列。
// 投递失败时文档被标记为 failed。
func (s *DocumentService) Upload(ctx context.Context, in *UploadInput) (*model.UploadResponse, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, errors.ErrMissingParam.WithMessage("user_id is required")
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, errors.ErrMissingParam.WithMessage("file is required")
	}
	if in.Size > s.maxUploadSize {
		return nil, errors.ErrRequestTooLarge.WithMessagef("file exceeds the %d byte limit", s.maxUploadSize)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = DefaultUsername
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.ErrBadRequest.WithCause(err)
	}
	head = head[:n]
	if n == 0 {
		return nil, errors.ErrInvalidParam.WithMessage("file is empty")
	}

	ft, mimeType := sniff(head, in.Filename)
	if ft == filetype.Unknown {
		return nil, errors.ErrUnsupportedMediaType.WithMessagef("unsupported file type %s", mimeType)
	}

	key := blob.UploadKey(username, ulid.Make().String(), in.Filename)
	body := &limitReader{r: io.MultiReader(bytes.NewReader(head), in.Body), max: s.maxUploadSize}
	if _, err := s.blobs.Put(ctx, key, body, mimeType); err != nil {
		if body.exceeded {
			return nil, errors.ErrRequestTooLarge.WithMessagef("file exceeds the %d byte limit", s.maxUploadSize)
		}
		return nil, err
	}

	doc := &model.Document{
		UserID:   in.UserID,
		Filename: in.Filename,
		MimeType: mimeType,
		Size:     body.n,
		Path:     key,
		Status:   model.DocumentStatusPending,
	}
	if err := s.store.Documents().Create(ctx, doc); err != nil {
		s.removeBlob(ctx, key)
		return nil, err
	}

	uploadedAt := s.now()
	m := message.FileProcessMessage{
		Version:    message.CurrentVersion,
		Username:   username,
		Filename:   in.Filename,
		S3Key:      key,
		UploadedAt: uploadedAt,
		FileType:   ft.String(),
		DocumentID: doc.ID,
	}
	if err := s.broker.Publish(ctx, filetype.FileProcessQueue, m, message.PublishOptions()); err != nil {
		logger.Errorw("Publishing upload failed",
			"document_id", doc.ID,
			"key", key,
			"error", err.Error(),
		)
		if _, uerr := s.store.Documents().UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, "queueing failed: "+err.Error()); uerr != nil {
			logger.Warnw("Could not mark document failed", "document_id", doc.ID, "error", uerr.Error())
		}
		return nil, publishError(err)
	}

	logger.Infow("Accepted upload",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"key", key,
		"file_type", ft.String(),
		"size", doc.Size,
	)
	return &model.UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Key:        key,
		MimeType:   mimeType,
		Size:       doc.Size,
		UploadedAt: uploadedAt,
	}, nil
}

// Get 获取文档。
func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.store.Documents().Get(ctx, id)
}

// List 列出用户的文档。
func (s *DocumentService) List(ctx context.Context, userID string) ([]*model.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.ErrMissingParam.WithMessage("user_id is required")
	}
	return s.store.Documents().ListByUser(ctx, userID)
}

// Delete 级联删除文档及其分块、组件，并尽力删除上传文件与解析结果。
func (s *DocumentService) Delete(ctx context.Context, id string) (*store.DeleteResult, error) {
	doc, err := s.store.Documents().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.store.Documents().Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)

	s.removeBlob(ctx, doc.Path)
	s.removeBlob(ctx, blob.ParsedKey(doc.ID, doc.Path))

	logger.Infow("Deleted document",
		"document_id", id,
		"chunks", res.Chunks,
		"components", res.Components,
	)
	return res, nil
}

func (s *DocumentService) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		logger.Warnw("Could not delete object", "key", key, "error", err.Error())
	}
}

// sniff 根据内容判断文件类型。OOXML 文档在探测窗口内可能只被识别为 zip，
// 此时按扩展名区分 docx 与 xlsx。
func sniff(head []byte, filename string) (filetype.FileType, string) {
	detected := mimetype.Detect(head)
	ft := filetype.FromMIMEType(detected.String())

	if ft == filetype.Unknown && detected.Is("application/zip") {
		if byName := filetype.FromFilename(filename); byName == filetype.DOCX || byName == filetype.XLSX {
			ft = byName
		}
	}

	if mt, ok := uploadMIMETypes[ft]; ok {
		return ft, mt
	}
	mt, _, _ := strings.Cut(detected.String(), ";")
	return ft, mt
}

// publishError 保留 broker 的错误码，其余视为投递失败。
func publishError(err error) error {
	if errors.IsCode(err, errors.ErrBrokerUnavailable.Code) || errors.IsCode(err, errors.ErrPublishFailed.Code) {
		return err
	}
	return errors.ErrPublishFailed.WithCause(err)
}

// limitReader 统计读取字节数，超过 max 时返回 ErrRequestTooLarge。
type limitReader struct {
	r        io.Reader
	n        int64
	max      int64
	exceeded bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		l.exceeded = true
		return n, errors.ErrRequestTooLarge
	}
	return n, err
}
