package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/pkg/httputils"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/response"
)

// Multipart field names of POST /upload.
const (
	formFile     = "file"
	formUsername = "username"
	formUserID   = "user_id"
)

// DocumentHandler serves /upload and /documents.
type DocumentHandler struct {
	svc *biz.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(svc *biz.DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload handles POST /upload. The file is stored, a pending document is
// created and the file is queued for parsing.
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile(formFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			httputils.WriteResponse(c, errors.ErrRequestTooLarge.WithMessagef("upload exceeds %d bytes", h.svc.MaxUploadSize()), nil)
		case stderrors.Is(err, http.ErrMissingFile):
			httputils.WriteResponse(c, errors.ErrMissingParam.WithMessage("multipart field \"file\" is required"), nil)
		default:
			httputils.WriteResponse(c, errors.ErrBadRequest.WithMessage("invalid multipart body: "+err.Error()), nil)
		}
		return
	}

	f, err := fh.Open()
	if err != nil {
		httputils.WriteResponse(c, errors.ErrBadRequest.WithCause(err), nil)
		return
	}
	defer func() { _ = f.Close() }()

	resp, err := h.svc.Upload(c.Request.Context(), &biz.UploadInput{
		Username: c.PostForm(formUsername),
		UserID:   c.PostForm(formUserID),
		Filename: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, response.Created(resp))
}

// List handles GET /documents?user_id=.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"documents": docs})
}

// Get handles GET /documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, doc)
}

// Delete handles DELETE /documents/:id. Chunks and components go with the
// document and the counts are returned.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{
		"message":    "Document deleted successfully",
		"chunks":     res.Chunks,
		"components": res.Components,
	})
}
