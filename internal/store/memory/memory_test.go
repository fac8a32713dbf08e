package memory

import (
	"context"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/errors"
)

func unit(dim int, hot ...int) []float32 {
	v := make([]float32, dim)
	for _, i := range hot {
		v[i] = 1
	}
	return v
}

func newDoc(t *testing.T, s *Store, status model.DocumentStatus) *model.Document {
	t.Helper()
	doc := &model.Document{UserID: "u1", Filename: "a.pdf", MimeType: "application/pdf", Path: "uploads/u1/a.pdf", Status: status}
	require.NoError(t, s.Documents().Create(context.Background(), doc))
	return doc
}

func chunk(docID string, idx int, emb []float32, tags ...string) *model.Chunk {
	c := &model.Chunk{DocumentID: docID, ChunkIndex: idx, Content: "c", Embedding: pgvector.NewVector(emb)}
	if tags != nil {
		c.Tags = tags
	}
	return c
}

func TestTagIntegrityNoPartialWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Tags().Create(ctx, "finance")
	require.NoError(t, err)
	doc := newDoc(t, s, model.DocumentStatusProcessing)

	err = s.Chunks().CreateBulk(ctx, []*model.Chunk{
		chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0), "finance"),
		chunk(doc.ID, 1, unit(model.ChunkEmbeddingDim, 0), "zeta", "finance", "alpha", "zeta"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownTag)
	assert.Contains(t, err.Error(), "alpha, zeta")

	rows, err := s.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUniquenessAndIgnoreExisting(t *testing.T) {
	ctx := context.Background()
	s := New()
	doc := newDoc(t, s, model.DocumentStatusProcessing)

	require.NoError(t, s.Chunks().Create(ctx, chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0))))
	err := s.Chunks().Create(ctx, chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0)))
	assert.ErrorIs(t, err, errors.ErrDuplicateChunkIndex)

	for range 3 {
		_, err := s.Chunks().CreateBulkIgnoreExisting(ctx, []*model.Chunk{
			chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0)),
			chunk(doc.ID, 1, unit(model.ChunkEmbeddingDim, 1)),
		})
		require.NoError(t, err)
	}
	rows, err := s.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].ChunkIndex)
	assert.Equal(t, 1, rows[1].ChunkIndex)
}

func TestSimilarityOrderingAndCompletedOnly(t *testing.T) {
	ctx := context.Background()
	s := New()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	done := newDoc(t, s, model.DocumentStatusCompleted)
	pending := newDoc(t, s, model.DocumentStatusProcessing)

	require.NoError(t, s.Chunks().Create(ctx, &model.Chunk{DocumentID: done.ID, ChunkIndex: 0, Content: "older", Embedding: pgvector.NewVector(unit(model.ChunkEmbeddingDim, 0))}))
	require.NoError(t, s.Chunks().Create(ctx, &model.Chunk{DocumentID: done.ID, ChunkIndex: 1, Content: "newer", Embedding: pgvector.NewVector(unit(model.ChunkEmbeddingDim, 0))}))
	require.NoError(t, s.Chunks().Create(ctx, &model.Chunk{DocumentID: done.ID, ChunkIndex: 2, Content: "partial", Embedding: pgvector.NewVector(unit(model.ChunkEmbeddingDim, 0, 1))}))
	require.NoError(t, s.Chunks().Create(ctx, &model.Chunk{DocumentID: done.ID, ChunkIndex: 3, Content: "orthogonal", Embedding: pgvector.NewVector(unit(model.ChunkEmbeddingDim, 5))}))
	require.NoError(t, s.Chunks().Create(ctx, &model.Chunk{DocumentID: pending.ID, ChunkIndex: 0, Content: "hidden", Embedding: pgvector.NewVector(unit(model.ChunkEmbeddingDim, 0))}))

	q := store.SimilarityQuery{Embedding: unit(model.ChunkEmbeddingDim, 0), Limit: 10, Threshold: 0.5}
	all, err := s.Chunks().SearchSimilar(ctx, q)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "partial", all[3].Content)

	withDocs, err := s.Chunks().SearchSimilarWithDocumentInfo(ctx, q)
	require.NoError(t, err)
	require.Len(t, withDocs, 3)
	assert.Equal(t, "newer", withDocs[0].Content)
	assert.Equal(t, "older", withDocs[1].Content)
	assert.Equal(t, "a.pdf", withDocs[0].Filename)

	_, err = s.Chunks().SearchSimilar(ctx, store.SimilarityQuery{Embedding: []float32{1}})
	assert.ErrorIs(t, err, errors.ErrInvalidEmbedding)
}

func TestCascadeDeleteCounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	doc := newDoc(t, s, model.DocumentStatusCompleted)
	for i := range 3 {
		c := chunk(doc.ID, i, unit(model.ChunkEmbeddingDim, i))
		require.NoError(t, s.Chunks().Create(ctx, c))
		for j := range 2 {
			require.NoError(t, s.Components().Create(ctx, &model.ChunkComponent{
				ChunkID: c.ID, ComponentIndex: j, Content: "p", Embedding: pgvector.NewVector(unit(model.ComponentEmbeddingDim, j)),
			}))
		}
	}

	res, err := s.Documents().Delete(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Chunks)
	assert.Equal(t, int64(6), res.Components)

	_, err = s.Documents().Get(ctx, doc.ID)
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
}

func TestSearchByTagsModes(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, n := range []string{"a", "b"} {
		_, err := s.Tags().Create(ctx, n)
		require.NoError(t, err)
	}
	doc := newDoc(t, s, model.DocumentStatusCompleted)
	require.NoError(t, s.Chunks().Create(ctx, chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0), "a")))
	require.NoError(t, s.Chunks().Create(ctx, chunk(doc.ID, 1, unit(model.ChunkEmbeddingDim, 0), "a", "b")))

	anyOf, err := s.Chunks().SearchByTags(ctx, store.TagQuery{Tags: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, anyOf, 2)

	allOf, err := s.Chunks().SearchByTags(ctx, store.TagQuery{Tags: []string{"a", "b"}, MatchAll: true})
	require.NoError(t, err)
	require.Len(t, allOf, 1)
	assert.Equal(t, 1, allOf[0].ChunkIndex)
}

func TestTagRenameAndDeleteRewriteChunks(t *testing.T) {
	ctx := context.Background()
	s := New()
	tag, err := s.Tags().Create(ctx, "draft")
	require.NoError(t, err)
	_, err = s.Tags().Create(ctx, "draft")
	assert.ErrorIs(t, err, errors.ErrTagExists)

	doc := newDoc(t, s, model.DocumentStatusCompleted)
	c := chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0), "draft")
	require.NoError(t, s.Chunks().Create(ctx, c))

	_, err = s.Tags().Update(ctx, tag.ID, "final")
	require.NoError(t, err)
	got, err := s.Chunks().GetTags(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"final"}, got)

	require.NoError(t, s.Tags().Delete(ctx, tag.ID))
	got, err = s.Chunks().GetTags(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTXRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	doc := newDoc(t, s, model.DocumentStatusProcessing)

	err := s.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		require.NoError(t, tx.Chunks().Create(ctx, chunk(doc.ID, 0, unit(model.ChunkEmbeddingDim, 0))))
		_, err := tx.Documents().UpdateStatus(ctx, doc.ID, model.DocumentStatusCompleted, "")
		require.NoError(t, err)
		return errors.ErrInternal
	})
	require.ErrorIs(t, err, errors.ErrInternal)

	rows, err := s.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	got, err := s.Documents().Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusProcessing, got.Status)
}

func TestUpdateStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := New()
	doc := newDoc(t, s, model.DocumentStatusPending)

	_, err := s.Documents().UpdateStatus(ctx, doc.ID, model.DocumentStatusCompleted, "")
	assert.ErrorIs(t, err, errors.ErrInvalidStatus)

	got, err := s.Documents().UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, "boom")
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
}
