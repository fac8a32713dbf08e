package model

import "time"

// CreateChunkRequest is the body of POST /chunks.
type CreateChunkRequest struct {
	DocumentID string    `json:"document_id" validate:"required,uuid"`
	ChunkIndex *int      `json:"chunk_index" validate:"required,min=0"`
	Content    string    `json:"content" validate:"required"`
	Embedding  []float32 `json:"embedding" validate:"required,len=1536"`
	Tags       []string  `json:"tags" validate:"omitempty,dive,tagname"`
}

// UpdateChunkRequest is the body of PUT /chunks. Absent fields are left unchanged.
type UpdateChunkRequest struct {
	ID        string    `json:"id" validate:"required,uuid"`
	Content   *string   `json:"content" validate:"omitempty,min=1"`
	Embedding []float32 `json:"embedding" validate:"omitempty,len=1536"`
	Tags      *[]string `json:"tags" validate:"omitempty,dive,tagname"`
}

// Patch converts the request to a ChunkPatch.
func (r *UpdateChunkRequest) Patch() ChunkPatch {
	return ChunkPatch{Content: r.Content, Embedding: r.Embedding, Tags: r.Tags}
}

// SimilaritySearchRequest is the body of the similarity search endpoints.
// Zero limit and threshold fall back to the store defaults.
type SimilaritySearchRequest struct {
	Embedding     []float32 `json:"embedding" validate:"required,min=1"`
	Limit         int       `json:"limit" validate:"omitempty,min=1,max=100"`
	Threshold     float64   `json:"threshold" validate:"omitempty,min=-1,max=1"`
	CompletedOnly bool      `json:"completedOnly"`
}

// QuerySearchRequest is the body of POST /chunks/search/query. The query
// text is embedded with the chunk embedder before searching.
type QuerySearchRequest struct {
	Query         string  `json:"query" validate:"required,max=8000"`
	Limit         int     `json:"limit" validate:"omitempty,min=1,max=100"`
	Threshold     float64 `json:"threshold" validate:"omitempty,min=-1,max=1"`
	CompletedOnly bool    `json:"completedOnly"`
}

// TagSearchRequest is the body of POST /chunks/search/tags.
type TagSearchRequest struct {
	Tags     []string `json:"tags" validate:"required,min=1,dive,required"`
	MatchAll bool     `json:"matchAll"`
	Limit    int      `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// ChunkTagsRequest carries the tag list of the /chunks/:id/tags endpoints.
type ChunkTagsRequest struct {
	Tags []string `json:"tags" validate:"dive,tagname"`
}

// TagRequest is the body of tag create and update.
type TagRequest struct {
	Name string `json:"name" validate:"required,tagname"`
}

// CreateComponentRequest is the body of POST /components.
type CreateComponentRequest struct {
	ChunkID        string    `json:"chunk_id" validate:"required,uuid"`
	ComponentIndex *int      `json:"component_index" validate:"required,min=0"`
	Content        string    `json:"content" validate:"required"`
	Embedding      []float32 `json:"embedding" validate:"required,len=1024"`
}

// BulkCreateComponentsRequest is the body of POST /components/bulk.
type BulkCreateComponentsRequest struct {
	Components []*CreateComponentRequest `json:"components" validate:"required,min=1,max=1000,dive,required"`
}

// UpdateComponentRequest is the body of PUT /components/:id.
type UpdateComponentRequest struct {
	Content   *string   `json:"content" validate:"omitempty,min=1"`
	Embedding []float32 `json:"embedding" validate:"omitempty,len=1024"`
}

// Patch converts the request to a ComponentPatch.
func (r *UpdateComponentRequest) Patch() ComponentPatch {
	return ComponentPatch{Content: r.Content, Embedding: r.Embedding}
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Key        string    `json:"key"`
	MimeType   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// SimilarityResult is one hit of a chunk similarity search. Filename and
// MimeType are set when the search was restricted to completed documents.
type SimilarityResult struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	Similarity float64   `json:"similarity"`
	Filename   string    `json:"filename,omitempty"`
	MimeType   string    `json:"mimetype,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
