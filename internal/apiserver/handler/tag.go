package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pkg/httputils"
	"github.com/kart-io/chunkflow/pkg/response"
)

// TagHandler serves /tags.
type TagHandler struct {
	svc *biz.TagService
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(svc *biz.TagService) *TagHandler {
	return &TagHandler{svc: svc}
}

// List handles GET /tags?search=.
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.svc.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"tags": tags})
}

// Get handles GET /tags/:id.
func (h *TagHandler) Get(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	tag, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, tag)
}

// Create handles POST /tags.
func (h *TagHandler) Create(c *gin.Context) {
	var req model.TagRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	tag, err := h.svc.Create(c.Request.Context(), req.Name)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, response.Created(tag))
}

// Update handles PUT /tags/:id. Renaming propagates to every chunk that
// carries the old name.
func (h *TagHandler) Update(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req model.TagRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	tag, err := h.svc.Update(c.Request.Context(), id, req.Name)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, tag)
}

// Delete handles DELETE /tags/:id. The name is removed from every chunk.
func (h *TagHandler) Delete(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, messageResponse{Message: "Tag deleted successfully"})
}
