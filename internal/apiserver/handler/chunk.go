package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pkg/httputils"
	"github.com/kart-io/chunkflow/pkg/response"
)

// ChunkHandler serves /chunks.
type ChunkHandler struct {
	svc *biz.ChunkService
}

// NewChunkHandler creates a new ChunkHandler.
func NewChunkHandler(svc *biz.ChunkService) *ChunkHandler {
	return &ChunkHandler{svc: svc}
}

type chunkTagsResponse struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

// Create handles POST /chunks.
func (h *ChunkHandler) Create(c *gin.Context) {
	var req model.CreateChunkRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	chunk, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, response.Created(gin.H{"id": chunk.ID}))
}

// Get handles GET /chunks/:id.
func (h *ChunkHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	chunk, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"chunk": chunk})
}

// ListByDocument handles GET /chunks/document/:documentId.
func (h *ChunkHandler) ListByDocument(c *gin.Context) {
	documentID, ok := uuidParam(c, "documentId")
	if !ok {
		return
	}

	chunks, err := h.svc.ListByDocument(c.Request.Context(), documentID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"chunks": chunks})
}

// Update handles PUT /chunks.
func (h *ChunkHandler) Update(c *gin.Context) {
	var req model.UpdateChunkRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	chunk, err := h.svc.Update(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"message": "Chunk updated successfully", "chunk": chunk})
}

// Delete handles DELETE /chunks/:id.
func (h *ChunkHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, messageResponse{Message: "Chunk deleted successfully"})
}

// DeleteByDocument handles DELETE /chunks/document/:documentId.
func (h *ChunkHandler) DeleteByDocument(c *gin.Context) {
	documentID, ok := uuidParam(c, "documentId")
	if !ok {
		return
	}

	n, err := h.svc.DeleteByDocument(c.Request.Context(), documentID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"message": "All chunks for document deleted successfully", "deleted": n})
}

// SearchSimilar handles POST /chunks/search/similarity.
func (h *ChunkHandler) SearchSimilar(c *gin.Context) {
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

// SearchQuery handles POST /chunks/search/query.
func (h *ChunkHandler) SearchQuery(c *gin.Context) {
	var req model.QuerySearchRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	results, err := h.svc.SearchQuery(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"results": results})
}

// SearchByTags handles POST /chunks/search/tags.
func (h *ChunkHandler) SearchByTags(c *gin.Context) {
	var req model.TagSearchRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	chunks, err := h.svc.SearchByTags(c.Request.Context(), &req)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"chunks": chunks})
}

// GetTags handles GET /chunks/:id/tags.
func (h *ChunkHandler) GetTags(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	tags, err := h.svc.GetTags(c.Request.Context(), id)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, chunkTagsResponse{ID: id, Tags: nonNil(tags)})
}

// SetTags handles PUT /chunks/:id/tags.
func (h *ChunkHandler) SetTags(c *gin.Context) {
	h.editTags(c, h.svc.SetTags)
}

// AddTags handles POST /chunks/:id/tags.
func (h *ChunkHandler) AddTags(c *gin.Context) {
	h.editTags(c, h.svc.AddTags)
}

// RemoveTags handles DELETE /chunks/:id/tags.
func (h *ChunkHandler) RemoveTags(c *gin.Context) {
	h.editTags(c, h.svc.RemoveTags)
}

type tagEditFunc func(ctx context.Context, id string, tags []string) (*model.Chunk, error)

func (h *ChunkHandler) editTags(c *gin.Context, edit tagEditFunc) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req model.ChunkTagsRequest
	if !httputils.BindJSON(c, &req) {
		return
	}

	chunk, err := edit(c.Request.Context(), id, req.Tags)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, chunkTagsResponse{ID: chunk.ID, Tags: nonNil(chunk.Tags)})
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
