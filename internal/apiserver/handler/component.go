package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pkg/httputils"
	"github.com/kart-io/chunkflow/pkg/response"
)

// ComponentHandler serves /components.
type ComponentHandler struct {
	svc *biz.ComponentService
}

// NewComponentHandler creates a new ComponentHandler.
func NewComponentHandler(svc *biz.ComponentService) *ComponentHandler {
	return &ComponentHandler{svc: svc}
}

// Create handles POST /components.
func (h *ComponentHandler) Create(c *gin.Context) {
	var req model.CreateComponentRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	component, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, response.Created(component))
}

// CreateBulk handles POST /components/bulk. Either every component is
// stored or none is.
func (h *ComponentHandler) CreateBulk(c *gin.Context) {
	var req model.BulkCreateComponentsRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	components, err := h.svc.CreateBulk(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, response.Created(gin.H{"components": components, "count": len(components)}))
}

// Get handles GET /components/:id.
func (h *ComponentHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	component, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, component)
}

// ListByChunk handles GET /components/chunk/:chunkId.
func (h *ComponentHandler) ListByChunk(c *gin.Context) {
	chunkID, ok := uuidParam(c, "chunkId")
	if !ok {
		return
	}

	components, err := h.svc.ListByChunk(c.Request.Context(), chunkID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"components": components})
}

// Update handles PUT /components/:id.
func (h *ComponentHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req model.UpdateComponentRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	component, err := h.svc.Update(c.Request.Context(), id, &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, component)
}

// Delete handles DELETE /components/:id.
func (h *ComponentHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, messageResponse{Message: "Component deleted successfully"})
}

// DeleteByChunk handles DELETE /components/chunk/:chunkId.
func (h *ComponentHandler) DeleteByChunk(c *gin.Context) {
	chunkID, ok := uuidParam(c, "chunkId")
	if !ok {
		return
	}

	n, err := h.svc.DeleteByChunk(c.Request.Context(), chunkID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"message": "Components deleted successfully", "deleted": n})
}

// SearchSimilar handles POST /components/search/similarity.
func (h *ComponentHandler) SearchSimilar(c *gin.Context) {
	var req model.SimilaritySearchRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	results, err := h.svc.SearchSimilar(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"results": results})
}
