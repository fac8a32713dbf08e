// Package store is the Postgres/pgvector persistence layer for documents,
// chunks, chunk components and tags.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/chunkflow/internal/model"
)

const (
	// DefaultSimilarityLimit is used when a similarity query has no limit.
	DefaultSimilarityLimit = 5
	// DefaultSimilarityThreshold is used when a similarity query has no threshold.
	DefaultSimilarityThreshold = 0.7
	// DefaultTagSearchLimit is used when a tag query has no limit.
	DefaultTagSearchLimit = 10
)

// Factory defines the factory interface for the per-aggregate stores.
type Factory interface {
	Documents() DocumentStore
	Chunks() ChunkStore
	Components() ComponentStore
	Tags() TagStore

	// TX runs fn inside a transaction. fn receives a Factory bound to the
	// transaction; returning an error rolls everything back.
	TX(ctx context.Context, fn func(ctx context.Context, tx Factory) error) error

	DB() *gorm.DB
	Close() error
}

// SimilarityQuery describes a nearest-neighbour lookup.
type SimilarityQuery struct {
	Embedding []float32
	Limit     int
	Threshold float64
}

// Normalize fills zero values with the defaults.
func (q SimilarityQuery) Normalize() SimilarityQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultSimilarityLimit
	}
	if q.Threshold == 0 {
		q.Threshold = DefaultSimilarityThreshold
	}
	return q
}

// TagQuery describes a tag match lookup.
type TagQuery struct {
	Tags     []string
	MatchAll bool
	Limit    int
}

// DocumentStore defines the document storage interface.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Document, error)
	Delete(ctx context.Context, id string) (*DeleteResult, error)
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) (*model.Document, error)
}

// DeleteResult reports how many rows a cascading delete removed.
type DeleteResult struct {
	Chunks     int64 `json:"chunks"`
	Components int64 `json:"components"`
}

// ChunkStore defines the chunk storage interface.
type ChunkStore interface {
	Create(ctx context.Context, chunk *model.Chunk) error
	CreateBulk(ctx context.Context, chunks []*model.Chunk) error
	// CreateBulkIgnoreExisting inserts chunks, skipping any whose
	// (document_id, chunk_index) already exists. It returns the number of
	// rows actually inserted.
	CreateBulkIgnoreExisting(ctx context.Context, chunks []*model.Chunk) (int64, error)
	Get(ctx context.Context, id string) (*model.Chunk, error)
	ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error)
	Update(ctx context.Context, id string, patch model.ChunkPatch) (*model.Chunk, error)
	Delete(ctx context.Context, id string) error
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)

	GetTags(ctx context.Context, id string) ([]string, error)
	SetTags(ctx context.Context, id string, tags []string) (*model.Chunk, error)
	AddTags(ctx context.Context, id string, tags []string) (*model.Chunk, error)
	RemoveTags(ctx context.Context, id string, tags []string) (*model.Chunk, error)

	SearchSimilar(ctx context.Context, q SimilarityQuery) ([]*model.ScoredChunk, error)
	SearchSimilarWithDocumentInfo(ctx context.Context, q SimilarityQuery) ([]*model.ScoredChunkWithDocument, error)
	SearchByTags(ctx context.Context, q TagQuery) ([]*model.Chunk, error)
}

// ComponentStore defines the chunk component storage interface.
type ComponentStore interface {
	Create(ctx context.Context, c *model.ChunkComponent) error
	CreateBulk(ctx context.Context, cs []*model.ChunkComponent) error
	CreateBulkIgnoreExisting(ctx context.Context, cs []*model.ChunkComponent) (int64, error)
	Get(ctx context.Context, id string) (*model.ChunkComponent, error)
	ListByChunk(ctx context.Context, chunkID string) ([]*model.ChunkComponent, error)
	Update(ctx context.Context, id string, patch model.ComponentPatch) (*model.ChunkComponent, error)
	Delete(ctx context.Context, id string) error
	DeleteByChunk(ctx context.Context, chunkID string) (int64, error)
	SearchSimilar(ctx context.Context, q SimilarityQuery) ([]*model.ScoredComponent, error)
}

// TagStore defines the tag registry storage interface.
type TagStore interface {
	List(ctx context.Context, search string) ([]*model.Tag, error)
	Get(ctx context.Context, id int64) (*model.Tag, error)
	GetByName(ctx context.Context, name string) (*model.Tag, error)
	Create(ctx context.Context, name string) (*model.Tag, error)
	CreateIfNotExists(ctx context.Context, name string) (*model.Tag, error)
	Update(ctx context.Context, id int64, name string) (*model.Tag, error)
	Delete(ctx context.Context, id int64) error
	// Existing returns the subset of names present in the registry.
	Existing(ctx context.Context, names []string) ([]string, error)
}
