package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// ChunkComponent is a finer-grained sub-segment of a chunk with its own embedding.
type ChunkComponent struct {
	ID             string          `json:"id" gorm:"primaryKey;type:uuid;comment:组件ID"`
	ChunkID        string          `json:"chunk_id" gorm:"type:uuid;not null;index:idx_chunk_components_chunk_id;uniqueIndex:chunk_components_chunk_id_component_index_unique,priority:1;comment:所属分块"`
	ComponentIndex int             `json:"component_index" gorm:"not null;uniqueIndex:chunk_components_chunk_id_component_index_unique,priority:2;comment:分块内序号"`
	Content        string          `json:"content" gorm:"type:text;not null;comment:组件内容"`
	Embedding      pgvector.Vector `json:"-" gorm:"type:vector(1024);not null;comment:向量"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime;comment:创建时间"`
}

// TableName specifies the table name for ChunkComponent.
func (ChunkComponent) TableName() string {
	return "chunk_components"
}

// ComponentPatch is a partial update of a chunk component.
type ComponentPatch struct {
	Content   *string
	Embedding []float32
}

// ScoredComponent is a component returned by similarity search.
type ScoredComponent struct {
	ChunkComponent
	Similarity float64 `json:"similarity" gorm:"column:similarity"`
}

// BeforeCreate assigns the id on the client so inserts need no RETURNING
// and ON CONFLICT DO NOTHING reports inserted rows through RowsAffected.
func (c *ChunkComponent) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return
}
