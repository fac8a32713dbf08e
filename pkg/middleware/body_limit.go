package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/response"
)

// DefaultBodyLimit is used when BodyLimit is given a non-positive size.
const DefaultBodyLimit int64 = 4 << 20

// BodyLimit returns a middleware that rejects requests whose
// Content-Length exceeds maxSize and caps the bytes actually read.
func BodyLimit(maxSize int64) gin.HandlerFunc {
	if maxSize <= 0 {
		maxSize = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		req := c.Request
		if req.ContentLength > maxSize {
			logger.Warnw("request body too large",
				"path", req.URL.Path,
				"content_length", req.ContentLength,
				"max_size", maxSize,
			)
			resp := response.Err(errors.ErrRequestTooLarge).WithRequestID(GetRequestID(req.Context()))
			c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
			return
		}
		req.Body = http.MaxBytesReader(c.Writer, req.Body, maxSize)
		c.Next()
	}
}
