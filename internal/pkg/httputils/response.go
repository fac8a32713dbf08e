// Package httputils provides HTTP utility functions for the API handlers.
package httputils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/middleware"
	"github.com/kart-io/chunkflow/pkg/response"
	"github.com/kart-io/chunkflow/pkg/validator"
)

// WriteResponse writes the unified envelope. A non-nil err is mapped to its
// errno; errors without one become ErrInternal and their text is not sent.
func WriteResponse(c *gin.Context, err error, data any) {
	requestID := middleware.GetRequestID(c.Request.Context())

	if err != nil {
		e := errors.FromError(err)
		if e.HTTPStatus() >= http.StatusInternalServerError {
			logger.Errorw("Request failed",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", requestID,
				"code", e.Code,
				"error", err.Error(),
			)
		}
		_ = c.Error(err)
		resp := response.ErrWithLang(e, Lang(c)).WithRequestID(requestID)
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	resp, ok := data.(*response.Response)
	if !ok {
		resp = response.Success(data)
	}
	c.JSON(resp.HTTPStatus(), resp.WithRequestID(requestID))
}

// BindJSON decodes the request body into obj and validates it. Failures are
// written to the client and false is returned.
func BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		WriteResponse(c, errors.ErrBadRequest.WithMessage("invalid JSON body: "+err.Error()), nil)
		return false
	}
	return Validate(c, obj)
}

// Validate runs struct validation and writes ErrValidationFailed with the
// translated field messages on failure.
func Validate(c *gin.Context, obj any) bool {
	if errs := validator.Global().ValidateWithLang(obj, Lang(c)); errs.HasErrors() {
		msg := errs.Error()
		WriteResponse(c, errors.ErrValidationFailed.WithMessages(msg, msg), nil)
		return false
	}
	return true
}

// Lang picks the message language from Accept-Language.
func Lang(c *gin.Context) string {
	if strings.HasPrefix(strings.ToLower(c.GetHeader("Accept-Language")), validator.LangZH) {
		return validator.LangZH
	}
	return validator.LangEN
}
