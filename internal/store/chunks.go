package store

import (
	"context"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/pkg/errors"
)

const (
	similaritySQL = `SELECT c.*, 1 - (c.embedding <=> ?::vector) AS similarity
FROM chunks c
WHERE 1 - (c.embedding <=> ?::vector) >= ?
ORDER BY c.embedding <=> ?::vector ASC, c.created_at DESC
LIMIT ?`

	similarityWithDocumentSQL = `SELECT c.*, 1 - (c.embedding <=> ?::vector) AS similarity, d.filename, d.mimetype
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.status = 'completed' AND 1 - (c.embedding <=> ?::vector) >= ?
ORDER BY c.embedding <=> ?::vector ASC, c.created_at DESC
LIMIT ?`

	// First-seen order is kept when merging tag arrays.
	addTagsExpr = `ARRAY(SELECT t FROM unnest(COALESCE(tags, '{}'::text[]) || ?::text[]) WITH ORDINALITY AS u(t, n) GROUP BY t ORDER BY MIN(n))`

	removeTagsExpr = `ARRAY(SELECT t FROM unnest(COALESCE(tags, '{}'::text[])) WITH ORDINALITY AS u(t, n) WHERE t <> ALL(?::text[]) ORDER BY n)`
)

type chunks struct {
	db *gorm.DB
}

func newChunks(db *gorm.DB) *chunks {
	return &chunks{db}
}

func prepareChunk(c *model.Chunk) error {
	if err := CheckVector(c.Embedding, model.ChunkEmbeddingDim); err != nil {
		return err
	}
	c.Tags = tagArray(c.Tags)
	return nil
}

// Create inserts one chunk.
func (s *chunks) Create(ctx context.Context, chunk *model.Chunk) error {
	if err := prepareChunk(chunk); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(chunk).Error, errors.ErrChunkNotFound)
}

// CreateBulk inserts all chunks in one transaction; either every row is
// written or none is.
func (s *chunks) CreateBulk(ctx context.Context, cs []*model.Chunk) error {
	if len(cs) == 0 {
		return nil
	}
	for _, c := range cs {
		if err := prepareChunk(c); err != nil {
			return err
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&cs).Error
	})
	return translate(err, errors.ErrChunkNotFound)
}

// CreateBulkIgnoreExisting inserts chunks atomically, skipping rows whose
// (document_id, chunk_index) already exists.
func (s *chunks) CreateBulkIgnoreExisting(ctx context.Context, cs []*model.Chunk) (int64, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	for _, c := range cs {
		if err := prepareChunk(c); err != nil {
			return 0, err
		}
	}

	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "chunk_index"}},
			DoNothing: true,
		}).Create(&cs)
		inserted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, translate(err, errors.ErrChunkNotFound)
	}
	return inserted, nil
}

// Get returns a chunk by id.
func (s *chunks) Get(ctx context.Context, id string) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&chunk).Error; err != nil {
		return nil, translate(err, errors.ErrChunkNotFound)
	}
	return &chunk, nil
}

// ListByDocument returns a document's chunks ordered by index.
func (s *chunks) ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	out := []*model.Chunk{}
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, errors.ErrDocumentNotFound)
	}
	return out, nil
}

// Update applies a partial update. A tag replacement goes through the same
// trigger check as an insert.
func (s *chunks) Update(ctx context.Context, id string, patch model.ChunkPatch) (*model.Chunk, error) {
	if patch.IsEmpty() {
		return s.Get(ctx, id)
	}

	updates := map[string]interface{}{}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.Embedding != nil {
		v, err := toVector(patch.Embedding, model.ChunkEmbeddingDim)
		if err != nil {
			return nil, err
		}
		updates["embedding"] = v
	}
	if patch.Tags != nil {
		updates["tags"] = pq.StringArray(NormalizeTags(*patch.Tags))
	}

	return s.update(ctx, id, updates)
}

func (s *chunks) update(ctx context.Context, id string, updates map[string]interface{}) (*model.Chunk, error) {
	result := s.db.WithContext(ctx).Model(&model.Chunk{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, translate(result.Error, errors.ErrChunkNotFound)
	}
	if result.RowsAffected == 0 {
		return nil, errors.ErrChunkNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a chunk and, through the foreign key, its components.
func (s *chunks) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Chunk{})
	if result.Error != nil {
		return translate(result.Error, errors.ErrChunkNotFound)
	}
	if result.RowsAffected == 0 {
		return errors.ErrChunkNotFound
	}
	return nil
}

// DeleteByDocument removes every chunk of a document and returns the count.
func (s *chunks) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{})
	if result.Error != nil {
		return 0, translate(result.Error, errors.ErrDocumentNotFound)
	}
	return result.RowsAffected, nil
}

// GetTags returns the tags of a chunk.
func (s *chunks) GetTags(ctx context.Context, id string) ([]string, error) {
	chunk, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if chunk.Tags == nil {
		return []string{}, nil
	}
	return chunk.Tags, nil
}

// SetTags replaces the tags of a chunk.
func (s *chunks) SetTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	return s.update(ctx, id, map[string]interface{}{"tags": pq.StringArray(NormalizeTags(tags))})
}

// AddTags merges tags into the chunk's set.
func (s *chunks) AddTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	tags = NormalizeTags(tags)
	if len(tags) == 0 {
		return s.Get(ctx, id)
	}
	return s.update(ctx, id, map[string]interface{}{"tags": gorm.Expr(addTagsExpr, pq.StringArray(tags))})
}

// RemoveTags removes tags from the chunk's set.
func (s *chunks) RemoveTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	tags = NormalizeTags(tags)
	if len(tags) == 0 {
		return s.Get(ctx, id)
	}
	return s.update(ctx, id, map[string]interface{}{"tags": gorm.Expr(removeTagsExpr, pq.StringArray(tags))})
}

// SearchSimilar returns chunks whose cosine similarity to the query is at
// least the threshold, most similar first and newest first on ties.
func (s *chunks) SearchSimilar(ctx context.Context, q SimilarityQuery) ([]*model.ScoredChunk, error) {
	q = q.Normalize()
	v, err := toVector(q.Embedding, model.ChunkEmbeddingDim)
	if err != nil {
		return nil, err
	}

	out := []*model.ScoredChunk{}
	if err := s.db.WithContext(ctx).Raw(similaritySQL, v, v, q.Threshold, v, q.Limit).Scan(&out).Error; err != nil {
		return nil, translate(err, errors.ErrChunkNotFound)
	}
	return out, nil
}

// SearchSimilarWithDocumentInfo is SearchSimilar restricted to completed
// documents, with the document's filename and MIME type attached.
func (s *chunks) SearchSimilarWithDocumentInfo(ctx context.Context, q SimilarityQuery) ([]*model.ScoredChunkWithDocument, error) {
	q = q.Normalize()
	v, err := toVector(q.Embedding, model.ChunkEmbeddingDim)
	if err != nil {
		return nil, err
	}

	out := []*model.ScoredChunkWithDocument{}
	if err := s.db.WithContext(ctx).Raw(similarityWithDocumentSQL, v, v, q.Threshold, v, q.Limit).Scan(&out).Error; err != nil {
		return nil, translate(err, errors.ErrChunkNotFound)
	}
	return out, nil
}

// SearchByTags returns chunks carrying any (or, with MatchAll, every) of the
// query tags, newest first. An empty tag list matches nothing.
func (s *chunks) SearchByTags(ctx context.Context, q TagQuery) ([]*model.Chunk, error) {
	tags := NormalizeTags(q.Tags)
	out := []*model.Chunk{}
	if len(tags) == 0 {
		return out, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultTagSearchLimit
	}

	cond := "tags && ?::text[]"
	if q.MatchAll {
		cond = "tags @> ?::text[]"
	}
	err := s.db.WithContext(ctx).
		Where(cond, pq.StringArray(tags)).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err, errors.ErrChunkNotFound)
	}
	return out, nil
}
