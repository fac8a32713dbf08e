// Package handler implements the HTTP handlers of the ingest API.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kart-io/chunkflow/internal/pkg/httputils"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// messageResponse is returned by write endpoints that have no entity to
// echo back.
type messageResponse struct {
	Message string `json:"message"`
}

// uuidParam reads a UUID path parameter. An invalid value is answered
// with ErrInvalidParam and ok is false.
func uuidParam(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		httputils.WriteResponse(c, errors.ErrInvalidParam.WithMessagef("%s must be a UUID, got %q", name, raw), nil)
		return "", false
	}
	return id.String(), true
}

// int64Param reads a positive integer path parameter.
func int64Param(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httputils.WriteResponse(c, errors.ErrInvalidParam.WithMessagef("%s must be a positive integer, got %q", name, raw), nil)
		return 0, false
	}
	return id, true
}
