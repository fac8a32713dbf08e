package store

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/pkg/errors"
)

func newMockFactory(t *testing.T) (Factory, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return NewFactory(db), mock
}

func embedding(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

func testChunk(docID string, idx int, tags ...string) *model.Chunk {
	c := &model.Chunk{
		DocumentID: docID,
		ChunkIndex: idx,
		Content:    "content",
		Embedding:  pgvector.NewVector(embedding(model.ChunkEmbeddingDim, 0.1)),
	}
	if tags != nil {
		c.Tags = tags
	}
	return c
}

func TestChunkCreateUnknownTag(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "chunks"`)).
		WillReturnError(&pgconn.PgError{
			Code:    "P0001",
			Message: "Tags not found in tags table: ghost, zzz",
			Detail:  `["zzz","ghost"]`,
		})

	err := f.Chunks().Create(context.Background(), testChunk("11111111-1111-1111-1111-111111111111", 0, "zzz", "known", "ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownTag)

	var unknown *UnknownTagError
	require.True(t, stderrors.As(err, &unknown))
	assert.Equal(t, []string{"ghost", "zzz"}, unknown.Tags)
	assert.Contains(t, err.Error(), "ghost, zzz")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkCreateRejectsWrongDimension(t *testing.T) {
	f, mock := newMockFactory(t)

	c := testChunk("d", 0)
	c.Embedding = pgvector.NewVector([]float32{1, 2, 3})

	err := f.Chunks().Create(context.Background(), c)
	assert.ErrorIs(t, err, errors.ErrInvalidEmbedding)
	assert.NoError(t, mock.ExpectationsWereMet(), "no SQL should be issued")
}

func TestChunkCreateBulkDuplicateRollsBack(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "chunks"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintChunkIndexUnique})
	mock.ExpectRollback()

	err := f.Chunks().CreateBulk(context.Background(), []*model.Chunk{
		testChunk("d", 0),
		testChunk("d", 0),
	})
	assert.ErrorIs(t, err, errors.ErrDuplicateChunkIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkCreateBulkIgnoreExisting(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "chunks" .* ON CONFLICT \("document_id","chunk_index"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	chunks := []*model.Chunk{testChunk("d", 0), testChunk("d", 1)}
	n, err := f.Chunks().CreateBulkIgnoreExisting(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	for _, c := range chunks {
		assert.NotEmpty(t, c.ID, "ids are assigned before insert")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkGetNotFound(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "chunks" WHERE id = $1`)).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := f.Chunks().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrChunkNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkDeleteByDocumentReturnsCount(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "chunks" WHERE document_id = $1`)).
		WithArgs("d").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := f.Chunks().DeleteByDocument(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkSearchSimilarQueryShape(t *testing.T) {
	f, mock := newMockFactory(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_id", "chunk_index", "content", "tags", "created_at", "similarity"}).
		AddRow("c1", "d", 0, "a", nil, now, 0.95).
		AddRow("c2", "d", 1, "b", "{x,y}", now.Add(-time.Minute), 0.8)

	mock.ExpectQuery(`1 - \(c.embedding <=> \$1::vector\) AS similarity.*>= \$3.*ORDER BY c.embedding <=> \$4::vector ASC, c.created_at DESC.*LIMIT \$5`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), DefaultSimilarityThreshold, sqlmock.AnyArg(), DefaultSimilarityLimit).
		WillReturnRows(rows)

	out, err := f.Chunks().SearchSimilar(context.Background(), SimilarityQuery{
		Embedding: embedding(model.ChunkEmbeddingDim, 0.2),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].ID)
	assert.InDelta(t, 0.95, out[0].Similarity, 1e-9)
	assert.Equal(t, []string{"x", "y"}, []string(out[1].Tags))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkSearchSimilarWithDocumentInfoFiltersCompleted(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectQuery(`JOIN documents d ON d.id = c.document_id\s+WHERE d.status = 'completed'`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "similarity", "filename", "mimetype"}).
			AddRow("c1", 0.9, "a.pdf", "application/pdf"))

	out, err := f.Chunks().SearchSimilarWithDocumentInfo(context.Background(), SimilarityQuery{
		Embedding: embedding(model.ChunkEmbeddingDim, 0.2),
		Limit:     3,
		Threshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.pdf", out[0].Filename)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkSearchByTagsModes(t *testing.T) {
	tests := []struct {
		name     string
		matchAll bool
		op       string
	}{
		{"match any", false, `tags && $1::text[]`},
		{"match all", true, `tags @> $1::text[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, mock := newMockFactory(t)

			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "chunks" WHERE `+tt.op+` ORDER BY created_at DESC LIMIT $2`)).
				WithArgs(`{"a","b"}`, DefaultTagSearchLimit).
				WillReturnRows(sqlmock.NewRows([]string{"id", "tags"}).AddRow("c1", "{a,b}"))

			out, err := f.Chunks().SearchByTags(context.Background(), TagQuery{
				Tags:     []string{"a", " b ", "a"},
				MatchAll: tt.matchAll,
			})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestChunkSearchByTagsEmpty(t *testing.T) {
	f, mock := newMockFactory(t)

	out, err := f.Chunks().SearchByTags(context.Background(), TagQuery{Tags: []string{" "}})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkUpdateNotFound(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "chunks" SET "content"=$1 WHERE id = $2`)).
		WithArgs("new", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	content := "new"
	_, err := f.Chunks().Update(context.Background(), "missing", model.ChunkPatch{Content: &content})
	assert.ErrorIs(t, err, errors.ErrChunkNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkSetTagsUnknown(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "chunks" SET "tags"=$1 WHERE id = $2`)).
		WithArgs(`{"a","nope"}`, "c1").
		WillReturnError(&pgconn.PgError{Code: "P0001", Message: "Tags not found in tags table: nope"})

	_, err := f.Chunks().SetTags(context.Background(), "c1", []string{"a", "nope"})
	var unknown *UnknownTagError
	require.True(t, stderrors.As(err, &unknown))
	assert.Equal(t, []string{"nope"}, unknown.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTagCreateDuplicate(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "tags"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintTagNameUnique})

	_, err := f.Tags().Create(context.Background(), "finance")
	assert.ErrorIs(t, err, errors.ErrTagExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTagListSearchEscapesPattern(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tags" WHERE name ILIKE $1 ORDER BY name ASC`)).
		WithArgs(`%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "50%"))

	out, err := f.Tags().List(context.Background(), "50%")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "50%", out[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentUpdateStatusRejectsInvalidTransition(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("d1", "completed"))
	mock.ExpectRollback()

	_, err := f.Documents().UpdateStatus(context.Background(), "d1", model.DocumentStatusPending, "")
	assert.ErrorIs(t, err, errors.ErrInvalidStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentUpdateStatusFailedRecordsMessage(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("d1", "processing"))
	mock.ExpectExec(`UPDATE "documents" SET "error_message"=\$1,"status"=\$2 WHERE .*"id" = \$3`).
		WithArgs("parser crashed", "failed", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := f.Documents().UpdateStatus(context.Background(), "d1", model.DocumentStatusFailed, "parser crashed")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	require.NotNil(t, doc.ErrorMessage)
	assert.Equal(t, "parser crashed", *doc.ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentDeleteCountsCascade(t *testing.T) {
	f, mock := newMockFactory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "documents" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("d1", "completed"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "chunk_components" JOIN chunks`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "chunks" WHERE document_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "documents" WHERE "documents"."id" = $1`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := f.Documents().Delete(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Chunks)
	assert.Equal(t, int64(5), res.Components)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *errors.Errno
	}{
		{"record not found", gorm.ErrRecordNotFound, errors.ErrChunkNotFound},
		{"component duplicate", &pgconn.PgError{Code: "23505", ConstraintName: constraintComponentIndexUnique}, errors.ErrDuplicateComponentIndex},
		{"missing document", &pgconn.PgError{Code: "23503", ConstraintName: constraintChunkDocumentFK}, errors.ErrDocumentNotFound},
		{"missing chunk", &pgconn.PgError{Code: "23503", ConstraintName: constraintComponentChunkFK}, errors.ErrChunkNotFound},
		{"vector dims", &pgconn.PgError{Code: "22000", Message: "expected 1536 dimensions, not 3"}, errors.ErrInvalidEmbedding},
		{"bad uuid", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid: \"x\""}, errors.ErrChunkNotFound},
		{"other", stderrors.New("connection reset"), errors.ErrDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err, errors.ErrChunkNotFound), tt.want)
		})
	}
}

func TestUnknownTagsFrom(t *testing.T) {
	tests := []struct {
		name string
		err  *pgconn.PgError
		want []string
	}{
		{"json detail", &pgconn.PgError{Message: "Tags not found in tags table: a", Detail: `["ghost","zzz"]`}, []string{"ghost", "zzz"}},
		{"empty detail array", &pgconn.PgError{Message: "Tags not found in tags table: {ghost}", Detail: `[]`}, []string{"ghost"}},
		{"malformed detail", &pgconn.PgError{Message: `Tags not found in tags table: {"a b",c}`, Detail: "not json"}, []string{"a b", "c"}},
		{"no list", &pgconn.PgError{Message: "Tags not found"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unknownTagsFrom(tt.err))
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil))
	assert.Equal(t, []string{"b", "a"}, NormalizeTags([]string{" b", "a", "", "b "}))
}
