package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const (
	// ChunkEmbeddingDim is the dimensionality of chunk embeddings.
	ChunkEmbeddingDim = 1536
	// ComponentEmbeddingDim is the dimensionality of chunk component embeddings.
	ComponentEmbeddingDim = 1024
)

// Chunk is a contiguous segment of a parsed document with its embedding.
type Chunk struct {
	ID         string          `json:"id" gorm:"primaryKey;type:uuid;comment:分块ID"`
	DocumentID string          `json:"document_id" gorm:"type:uuid;not null;index:idx_chunks_document_id;uniqueIndex:chunks_document_id_chunk_index_unique,priority:1;comment:所属文档"`
	ChunkIndex int             `json:"chunk_index" gorm:"not null;uniqueIndex:chunks_document_id_chunk_index_unique,priority:2;comment:文档内序号"`
	Content    string          `json:"content" gorm:"type:text;not null;comment:分块内容"`
	Embedding  pgvector.Vector `json:"-" gorm:"type:vector(1536);not null;comment:向量"`
	Tags       pq.StringArray  `json:"tags" gorm:"type:text[];comment:标签"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime;comment:创建时间"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}

// ChunkPatch is a partial update of a chunk. Nil fields are left unchanged.
type ChunkPatch struct {
	Content   *string
	Embedding []float32
	Tags      *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (p ChunkPatch) IsEmpty() bool {
	return p.Content == nil && p.Embedding == nil && p.Tags == nil
}

// ScoredChunk is a chunk returned by similarity search.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity" gorm:"column:similarity"`
}

// ScoredChunkWithDocument is a similarity result joined with its document.
type ScoredChunkWithDocument struct {
	ScoredChunk
	Filename string `json:"filename" gorm:"column:filename"`
	MimeType string `json:"mimetype" gorm:"column:mimetype"`
}

// BeforeCreate assigns the id on the client so inserts need no RETURNING
// and ON CONFLICT DO NOTHING reports inserted rows through RowsAffected.
func (c *Chunk) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return
}
