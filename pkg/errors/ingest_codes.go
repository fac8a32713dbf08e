package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Ingest 服务代码: 21 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 21 (Ingest 服务)
// - BB: 类别代码
// - CCC: 序号

var (
	// 请求/数据有效性错误 (类别 01)，不重试
	ErrUnsupportedFileType = NewRequestErr(ServiceIngest, 1, "Unsupported file type", "不支持的文件类型")
	ErrInvalidMessage      = NewRequestErr(ServiceIngest, 2, "Invalid pipeline message", "流水线消息无效")
	ErrUnknownTag          = NewRequestErr(ServiceIngest, 3, "Tags not found in tags table", "标签不存在")
	ErrInvalidEmbedding    = NewRequestErr(ServiceIngest, 4, "Invalid embedding vector", "向量无效")
	ErrInvalidStatus       = NewRequestErr(ServiceIngest, 5, "Invalid document status transition", "文档状态流转无效")

	// 资源不存在 (类别 04)
	ErrDocumentNotFound  = NewNotFoundErr(ServiceIngest, 1, "Document not found", "文档不存在")
	ErrChunkNotFound     = NewNotFoundErr(ServiceIngest, 2, "Chunk not found", "分块不存在")
	ErrTagNotFound       = NewNotFoundErr(ServiceIngest, 3, "Tag not found", "标签不存在")
	ErrComponentNotFound = NewNotFoundErr(ServiceIngest, 4, "Chunk component not found", "分块组件不存在")
	ErrBlobNotFound      = NewNotFoundErr(ServiceIngest, 5, "Blob not found", "文件对象不存在")

	// 冲突 (类别 05)
	ErrDuplicateChunkIndex     = NewConflictErr(ServiceIngest, 1, "Duplicate chunk index for document", "文档分块序号重复")
	ErrTagExists               = NewConflictErr(ServiceIngest, 2, "Tag already exists", "标签已存在")
	ErrDuplicateComponentIndex = NewConflictErr(ServiceIngest, 3, "Duplicate component index for chunk", "分块组件序号重复")

	// 处理失败 (类别 07)，有限次重试后进入死信队列
	ErrParseFailure     = NewInternalErr(ServiceIngest, 1, "Document parsing failed", "文档解析失败")
	ErrEmbeddingFailure = NewError(ServiceIngest, CategoryInternal, 2, http.StatusBadGateway, codes.Unavailable, "Embedding generation failed", "向量生成失败")
	ErrChunkingFailure  = NewInternalErr(ServiceIngest, 3, "Document chunking failed", "文档分块失败")

	// 基础设施 (类别 10)
	ErrBrokerUnavailable = NewNetworkErr(ServiceInfraMQ, 1, "Message broker unavailable", "消息队列不可用")
	ErrPublishFailed     = NewNetworkErr(ServiceInfraMQ, 2, "Message publish failed", "消息发布失败")
	ErrBlobIO            = NewNetworkErr(ServiceThirdPartyStorage, 1, "Blob storage I/O failed", "对象存储读写失败")
)
