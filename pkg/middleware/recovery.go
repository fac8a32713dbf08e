package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/response"
)

// PanicHandler is called after a panic was recovered and logged.
type PanicHandler func(c *gin.Context, err any, stack []byte)

// Recovery returns a middleware that recovers from panics, logs the stack
// and answers with ErrPanic. The panic value is never sent to the client.
func Recovery() gin.HandlerFunc {
	return RecoveryWithHandler(nil)
}

// RecoveryWithHandler is Recovery with an extra hook for alerting.
func RecoveryWithHandler(onPanic PanicHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()

			logger.Errorw("panic recovered",
				"panic", fmt.Sprint(r),
				"stack_trace", string(stack),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", GetRequestID(c.Request.Context()),
			)
			if onPanic != nil {
				onPanic(c, r, stack)
			}

			resp := response.Err(errors.ErrPanic).WithRequestID(GetRequestID(c.Request.Context()))
			c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
		}()
		c.Next()
	}
}
