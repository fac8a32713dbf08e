package biz

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// ComponentService 分块组件业务逻辑。
type ComponentService struct {
	store store.Factory
	cache *SearchCache
}

// NewComponentService 创建组件服务。
func NewComponentService(store store.Factory, cache *SearchCache) *ComponentService {
	return &ComponentService{
		store: store,
		cache: cache,
	}
}

// Create 创建组件。
func (s *ComponentService) Create(ctx context.Context, req *model.CreateComponentRequest) (*model.ChunkComponent, error) {
	c := newComponent(req)
	if err := s.store.Components().Create(ctx, c); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return c, nil
}

// CreateBulk 在一个事务内批量创建组件，任一失败则全部回滚。
func (s *ComponentService) CreateBulk(ctx context.Context, req *model.BulkCreateComponentsRequest) ([]*model.ChunkComponent, error) {
	cs := make([]*model.ChunkComponent, 0, len(req.Components))
	for _, r := range req.Components {
		cs = append(cs, newComponent(r))
	}
	err := s.store.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		return tx.Components().CreateBulk(ctx, cs)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return cs, nil
}

// Get 获取组件。
func (s *ComponentService) Get(ctx context.Context, id string) (*model.ChunkComponent, error) {
	return s.store.Components().Get(ctx, id)
}

// ListByChunk 按序号列出分块的组件。
func (s *ComponentService) ListByChunk(ctx context.Context, chunkID string) ([]*model.ChunkComponent, error) {
	return s.store.Components().ListByChunk(ctx, chunkID)
}

// Update 局部更新组件。
func (s *ComponentService) Update(ctx context.Context, id string, req *model.UpdateComponentRequest) (*model.ChunkComponent, error) {
	patch := req.Patch()
	if patch.Content == nil && patch.Embedding == nil {
		return nil, errors.ErrInvalidParam.WithMessage("nothing to update: provide content or embedding")
	}
	c, err := s.store.Components().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return c, nil
}

// Delete 删除组件。
func (s *ComponentService) Delete(ctx context.Context, id string) error {
	if err := s.store.Components().Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	return nil
}

// DeleteByChunk 删除分块的全部组件，返回删除数量。
func (s *ComponentService) DeleteByChunk(ctx context.Context, chunkID string) (int64, error) {
	n, err := s.store.Components().DeleteByChunk(ctx, chunkID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Invalidate(ctx)
	}
	return n, nil
}

// SearchSimilar 组件向量相似度搜索。
func (s *ComponentService) SearchSimilar(ctx context.Context, req *model.SimilaritySearchRequest) ([]*model.ScoredComponent, error) {
	if len(req.Embedding) != model.ComponentEmbeddingDim {
		return nil, errors.ErrInvalidEmbedding.WithMessagef("embedding must have %d dimensions, got %d", model.ComponentEmbeddingDim, len(req.Embedding))
	}
	q := store.SimilarityQuery{Embedding: req.Embedding, Limit: req.Limit, Threshold: req.Threshold}.Normalize()

	var results []*model.ScoredComponent
	if s.cache.Get(ctx, searchKindComponents, q, &results) {
		return results, nil
	}
	results, err := s.store.Components().SearchSimilar(ctx, q)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, searchKindComponents, q, results)
	return results, nil
}

func newComponent(req *model.CreateComponentRequest) *model.ChunkComponent {
	return &model.ChunkComponent{
		ChunkID:        req.ChunkID,
		ComponentIndex: *req.ComponentIndex,
		Content:        req.Content,
		Embedding:      pgvector.NewVector(req.Embedding),
	}
}
