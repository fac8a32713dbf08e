package biz

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/pgvector/pgvector-go"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/llm"
)

// 搜索缓存的查询类型。
const (
	searchKindChunks          = "chunks"
	searchKindChunksCompleted = "chunks-completed"
	searchKindTags            = "tags"
	searchKindComponents      = "components"
)

// ChunkService 分块业务逻辑。
type ChunkService struct {
	store    store.Factory
	cache    *SearchCache
	embedder llm.EmbeddingProvider
}

// NewChunkService 创建分块服务。
func NewChunkService(store store.Factory, cache *SearchCache) *ChunkService {
	return &ChunkService{
		store: store,
		cache: cache,
	}
}

// WithEmbedder 设置查询文本的 Embedding 供应商，用于 SearchQuery。
func (s *ChunkService) WithEmbedder(p llm.EmbeddingProvider) *ChunkService {
	s.embedder = p
	return s
}

// Create 创建分块。标签须已在标签表中注册。
func (s *ChunkService) Create(ctx context.Context, req *model.CreateChunkRequest) (*model.Chunk, error) {
	tags := store.NormalizeTags(req.Tags)
	if err := checkTags(ctx, s.store.Tags(), tags); err != nil {
		return nil, err
	}

	chunk := &model.Chunk{
		DocumentID: req.DocumentID,
		ChunkIndex: *req.ChunkIndex,
		Content:    req.Content,
		Embedding:  pgvector.NewVector(req.Embedding),
		Tags:       tags,
	}
	if err := s.store.Chunks().Create(ctx, chunk); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return chunk, nil
}

// Get 获取分块。
func (s *ChunkService) Get(ctx context.Context, id string) (*model.Chunk, error) {
	return s.store.Chunks().Get(ctx, id)
}

// ListByDocument 按序号列出文档的分块。
func (s *ChunkService) ListByDocument(ctx context.Context, documentID string) ([]*model.Chunk, error) {
	return s.store.Chunks().ListByDocument(ctx, documentID)
}

// Update 局部更新分块。
func (s *ChunkService) Update(ctx context.Context, req *model.UpdateChunkRequest) (*model.Chunk, error) {
	patch := req.Patch()
	if patch.IsEmpty() {
		return nil, errors.ErrInvalidParam.WithMessage("nothing to update: provide content, embedding or tags")
	}
	if patch.Tags != nil {
		tags := store.NormalizeTags(*patch.Tags)
		if tags == nil {
			tags = []string{}
		}
		if err := checkTags(ctx, s.store.Tags(), tags); err != nil {
			return nil, err
		}
		patch.Tags = &tags
	}

	chunk, err := s.store.Chunks().Update(ctx, req.ID, patch)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return chunk, nil
}

// Delete 删除分块及其组件。
func (s *ChunkService) Delete(ctx context.Context, id string) error {
	if err := s.store.Chunks().Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	return nil
}

// DeleteByDocument 删除文档的全部分块，返回删除数量。
func (s *ChunkService) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	n, err := s.store.Chunks().DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Invalidate(ctx)
	}
	return n, nil
}

// GetTags 获取分块标签。
func (s *ChunkService) GetTags(ctx context.Context, id string) ([]string, error) {
	return s.store.Chunks().GetTags(ctx, id)
}

// SetTags 替换分块标签。
func (s *ChunkService) SetTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	tags = store.NormalizeTags(tags)
	if err := checkTags(ctx, s.store.Tags(), tags); err != nil {
		return nil, err
	}
	return s.tagged(ctx)(s.store.Chunks().SetTags(ctx, id, tags))
}

// AddTags 追加标签，已有标签不重复。
func (s *ChunkService) AddTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	tags = store.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil, errors.ErrInvalidParam.WithMessage("tags must not be empty")
	}
	if err := checkTags(ctx, s.store.Tags(), tags); err != nil {
		return nil, err
	}
	return s.tagged(ctx)(s.store.Chunks().AddTags(ctx, id, tags))
}

// RemoveTags 移除标签，不存在的标签被忽略。
func (s *ChunkService) RemoveTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	tags = store.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil, errors.ErrInvalidParam.WithMessage("tags must not be empty")
	}
	return s.tagged(ctx)(s.store.Chunks().RemoveTags(ctx, id, tags))
}

func (s *ChunkService) tagged(ctx context.Context) func(*model.Chunk, error) (*model.Chunk, error) {
	return func(chunk *model.Chunk, err error) (*model.Chunk, error) {
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(ctx)
		return chunk, nil
	}
}

// SearchSimilar 向量相似度搜索。CompletedOnly 时只返回已完成文档的分块，并附带文件信息。
func (s *ChunkService) SearchSimilar(ctx context.Context, req *model.SimilaritySearchRequest) ([]*model.SimilarityResult, error) {
	if len(req.Embedding) != model.ChunkEmbeddingDim {
		return nil, errors.ErrInvalidEmbedding.WithMessagef("embedding must have %d dimensions, got %d", model.ChunkEmbeddingDim, len(req.Embedding))
	}
	q := store.SimilarityQuery{Embedding: req.Embedding, Limit: req.Limit, Threshold: req.Threshold}.Normalize()

	kind := searchKindChunks
	if req.CompletedOnly {
		kind = searchKindChunksCompleted
	}
	var results []*model.SimilarityResult
	if s.cache.Get(ctx, kind, q, &results) {
		return results, nil
	}

	if req.CompletedOnly {
		hits, err := s.store.Chunks().SearchSimilarWithDocumentInfo(ctx, q)
		if err != nil {
			return nil, err
		}
		results = make([]*model.SimilarityResult, 0, len(hits))
		for _, h := range hits {
			r := similarityResult(&h.ScoredChunk)
			r.Filename = h.Filename
			r.MimeType = h.MimeType
			results = append(results, r)
		}
	} else {
		hits, err := s.store.Chunks().SearchSimilar(ctx, q)
		if err != nil {
			return nil, err
		}
		results = make([]*model.SimilarityResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, similarityResult(h))
		}
	}

	s.cache.Set(ctx, kind, q, results)
	return results, nil
}

// SearchQuery 将查询文本向量化后做相似度搜索，结果与 SearchSimilar 相同。
func (s *ChunkService) SearchQuery(ctx context.Context, req *model.QuerySearchRequest) ([]*model.SimilarityResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.ErrInvalidParam.WithMessage("query must not be blank")
	}
	if s.embedder == nil {
		return nil, errors.ErrServiceUnavailable.WithMessage("query search has no embedding provider")
	}

	vec, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		var e *errors.Errno
		if stderrors.As(err, &e) {
			return nil, err
		}
		return nil, errors.ErrEmbeddingFailure.WithCause(err)
	}
	if len(vec) != model.ChunkEmbeddingDim {
		return nil, errors.ErrEmbeddingFailure.WithMessagef("query embedding has %d dimensions, want %d", len(vec), model.ChunkEmbeddingDim)
	}

	return s.SearchSimilar(ctx, &model.SimilaritySearchRequest{
		Embedding:     vec,
		Limit:         req.Limit,
		Threshold:     req.Threshold,
		CompletedOnly: req.CompletedOnly,
	})
}

// SearchByTags 按标签搜索，MatchAll 时要求包含全部标签。
func (s *ChunkService) SearchByTags(ctx context.Context, req *model.TagSearchRequest) ([]*model.Chunk, error) {
	q := store.TagQuery{Tags: store.NormalizeTags(req.Tags), MatchAll: req.MatchAll, Limit: req.Limit}
	if len(q.Tags) == 0 {
		return nil, errors.ErrInvalidParam.WithMessage("tags must not be empty")
	}
	if q.Limit <= 0 {
		q.Limit = store.DefaultTagSearchLimit
	}

	var chunks []*model.Chunk
	if s.cache.Get(ctx, searchKindTags, q, &chunks) {
		return chunks, nil
	}
	chunks, err := s.store.Chunks().SearchByTags(ctx, q)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, searchKindTags, q, chunks)
	return chunks, nil
}

func similarityResult(h *model.ScoredChunk) *model.SimilarityResult {
	tags := []string(h.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &model.SimilarityResult{
		ID:         h.ID,
		DocumentID: h.DocumentID,
		ChunkIndex: h.ChunkIndex,
		Content:    h.Content,
		Tags:       tags,
		Similarity: h.Similarity,
		CreatedAt:  h.CreatedAt,
	}
}

// checkTags 预先校验标签是否已注册，给出完整的未知标签列表。
// 数据库触发器仍是最终约束。
func checkTags(ctx context.Context, registry store.TagStore, names []string) error {
	if len(names) == 0 {
		return nil
	}
	existing, err := registry.Existing(ctx, names)
	if err != nil {
		return err
	}
	missing := sets.New(names...).Difference(sets.New(existing...))
	if missing.Len() > 0 {
		return store.NewUnknownTagError(sets.List(missing))
	}
	return nil
}
