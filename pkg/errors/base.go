package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 通用错误码 (服务代码 00)，所有服务共用
var (
	// 请求错误 (类别 01)
	ErrBadRequest           = NewRequestErr(ServiceCommon, 0, "Bad request", "请求错误")
	ErrInvalidParam         = NewRequestErr(ServiceCommon, 1, "Invalid parameter", "参数无效")
	ErrMissingParam         = NewRequestErr(ServiceCommon, 2, "Missing required parameter", "缺少必需参数")
	ErrValidationFailed     = NewRequestErr(ServiceCommon, 4, "Validation failed", "验证失败")
	ErrRequestTooLarge      = NewError(ServiceCommon, CategoryRequest, 5, http.StatusRequestEntityTooLarge, codes.InvalidArgument, "Request entity too large", "请求体过大")
	ErrUnsupportedMediaType = NewError(ServiceCommon, CategoryRequest, 6, http.StatusUnsupportedMediaType, codes.InvalidArgument, "Unsupported media type", "不支持的媒体类型")

	// 冲突 (类别 05)
	ErrConflict = NewConflictErr(ServiceCommon, 0, "Resource conflict", "资源冲突")

	// 内部错误 (类别 07)，消息不返回给客户端
	ErrInternal = NewInternalErr(ServiceCommon, 0, "Internal server error", "服务器内部错误")
	ErrPanic    = NewInternalErr(ServiceCommon, 2, "Service panic", "服务异常")

	// 基础设施 (类别 08, 10)
	ErrDatabase           = NewDatabaseErr(ServiceCommon, 0, "Database error", "数据库错误")
	ErrServiceUnavailable = NewNetworkErr(ServiceCommon, 0, "Service unavailable", "服务不可用")
)
