package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/pkg/errors"
)

const componentSimilaritySQL = `SELECT cc.*, 1 - (cc.embedding <=> ?::vector) AS similarity
FROM chunk_components cc
WHERE 1 - (cc.embedding <=> ?::vector) >= ?
ORDER BY cc.embedding <=> ?::vector ASC, cc.created_at DESC
LIMIT ?`

type components struct {
	db *gorm.DB
}

func newComponents(db *gorm.DB) *components {
	return &components{db}
}

// Create inserts one component.
func (s *components) Create(ctx context.Context, c *model.ChunkComponent) error {
	if err := CheckVector(c.Embedding, model.ComponentEmbeddingDim); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(c).Error, errors.ErrComponentNotFound)
}

// CreateBulk inserts all components in one transaction.
func (s *components) CreateBulk(ctx context.Context, cs []*model.ChunkComponent) error {
	if len(cs) == 0 {
		return nil
	}
	for _, c := range cs {
		if err := CheckVector(c.Embedding, model.ComponentEmbeddingDim); err != nil {
			return err
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&cs).Error
	})
	return translate(err, errors.ErrComponentNotFound)
}

// CreateBulkIgnoreExisting inserts components, skipping existing
// (chunk_id, component_index) pairs.
func (s *components) CreateBulkIgnoreExisting(ctx context.Context, cs []*model.ChunkComponent) (int64, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	for _, c := range cs {
		if err := CheckVector(c.Embedding, model.ComponentEmbeddingDim); err != nil {
			return 0, err
		}
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}, {Name: "component_index"}},
		DoNothing: true,
	}).Create(&cs)
	if result.Error != nil {
		return 0, translate(result.Error, errors.ErrComponentNotFound)
	}
	return result.RowsAffected, nil
}

// Get returns a component by id.
func (s *components) Get(ctx context.Context, id string) (*model.ChunkComponent, error) {
	var c model.ChunkComponent
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err, errors.ErrComponentNotFound)
	}
	return &c, nil
}

// ListByChunk returns a chunk's components ordered by index.
func (s *components) ListByChunk(ctx context.Context, chunkID string) ([]*model.ChunkComponent, error) {
	out := []*model.ChunkComponent{}
	err := s.db.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		Order("component_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, errors.ErrChunkNotFound)
	}
	return out, nil
}

// Update applies a partial update.
func (s *components) Update(ctx context.Context, id string, patch model.ComponentPatch) (*model.ChunkComponent, error) {
	updates := map[string]interface{}{}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.Embedding != nil {
		v, err := toVector(patch.Embedding, model.ComponentEmbeddingDim)
		if err != nil {
			return nil, err
		}
		updates["embedding"] = v
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	result := s.db.WithContext(ctx).Model(&model.ChunkComponent{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, translate(result.Error, errors.ErrComponentNotFound)
	}
	if result.RowsAffected == 0 {
		return nil, errors.ErrComponentNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a component.
func (s *components) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ChunkComponent{})
	if result.Error != nil {
		return translate(result.Error, errors.ErrComponentNotFound)
	}
	if result.RowsAffected == 0 {
		return errors.ErrComponentNotFound
	}
	return nil
}

// DeleteByChunk removes every component of a chunk and returns the count.
func (s *components) DeleteByChunk(ctx context.Context, chunkID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("chunk_id = ?", chunkID).Delete(&model.ChunkComponent{})
	if result.Error != nil {
		return 0, translate(result.Error, errors.ErrChunkNotFound)
	}
	return result.RowsAffected, nil
}

// SearchSimilar returns components by cosine similarity, newest first on ties.
func (s *components) SearchSimilar(ctx context.Context, q SimilarityQuery) ([]*model.ScoredComponent, error) {
	q = q.Normalize()
	v, err := toVector(q.Embedding, model.ComponentEmbeddingDim)
	if err != nil {
		return nil, err
	}

	out := []*model.ScoredComponent{}
	if err := s.db.WithContext(ctx).Raw(componentSimilaritySQL, v, v, q.Threshold, v, q.Limit).Scan(&out).Error; err != nil {
		return nil, translate(err, errors.ErrComponentNotFound)
	}
	return out, nil
}
