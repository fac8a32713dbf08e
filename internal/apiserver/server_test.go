package apiserver

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/pgvector/pgvector-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/apiserver/router"
	"github.com/kart-io/chunkflow/internal/biz"
	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/store/memory"
	"github.com/kart-io/chunkflow/pkg/blob/local"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/component/storage"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/llm"
	"github.com/kart-io/chunkflow/pkg/middleware"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

const testUploadLimit = 1024

type fakeHealth struct {
	statuses map[string]storage.HealthStatus
}

func (f *fakeHealth) HealthCheckAll(context.Context) map[string]storage.HealthStatus {
	return f.statuses
}

// queryEmbedder maps each known query to a unit vector and fails on
// anything else.
type queryEmbedder struct {
	hot map[string]int
}

func (q *queryEmbedder) Name() string { return "query" }

func (q *queryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := q.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (q *queryEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	hot, ok := q.hot[text]
	if !ok {
		return nil, fmt.Errorf("model has no vector for %q", text)
	}
	return embedding(model.ChunkEmbeddingDim, hot), nil
}

type apiFixture struct {
	engine *gin.Engine
	store  *memory.Store
	broker *rabbitmq.MemoryBroker
	health *fakeHealth
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWith(t, &queryEmbedder{hot: map[string]int{"alpha": 0, "beta": 1}})
}

func newAPIFixtureWith(t *testing.T, embedder llm.EmbeddingProvider) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	blobs, err := local.New(t.TempDir(), "docs", "")
	require.NoError(t, err)

	broker := rabbitmq.NewMemoryBroker(2)
	require.NoError(t, pipeline.DeclareTopology(context.Background(), broker))

	st := memory.New()
	health := &fakeHealth{statuses: map[string]storage.HealthStatus{
		"postgres": {Name: "postgres", Healthy: true, Latency: time.Millisecond},
	}}

	engine := NewEngine(&Dependencies{
		Store:   st,
		Blobs:   blobs,
		Broker:  broker,
		Cache:   biz.NewSearchCache(client, &biz.SearchCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "test:search:"}),
		Health:  health,
		Limits:  router.Limits{Body: 1 << 20, Upload: testUploadLimit},
		GinMode: gin.TestMode,

		Embedder: embedder,
	})
	return &apiFixture{engine: engine, store: st, broker: broker, health: health}
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return f.serve(t, req)
}

func (f *apiFixture) upload(t *testing.T, filename string, content []byte, fields map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.serve(t, req)
}

func (f *apiFixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func embedding(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func TestUploadQueuesDocument(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.upload(t, "report.pdf", pdfBytes(), map[string]string{"username": "alice", "user_id": "u-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, w.Header().Get(middleware.HeaderXRequestID))

	uploaded := decode[model.UploadResponse](t, env)
	assert.NotEmpty(t, uploaded.DocumentID)
	assert.Equal(t, "report.pdf", uploaded.Filename)
	assert.Equal(t, "application/pdf", uploaded.MimeType)
	assert.True(t, strings.HasPrefix(uploaded.Key, "uploads/alice/"), uploaded.Key)
	assert.Equal(t, 1, f.broker.Len(filetype.FileProcessQueue))

	w, env = f.do(t, http.MethodGet, "/api/v1/documents?user_id=u-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Documents []*model.Document `json:"documents"`
	}](t, env)
	require.Len(t, listed.Documents, 1)
	assert.Equal(t, uploaded.DocumentID, listed.Documents[0].ID)
	assert.Equal(t, model.DocumentStatusPending, listed.Documents[0].Status)

	w, env = f.do(t, http.MethodGet, "/api/v1/documents/"+uploaded.DocumentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "report.pdf", decode[model.Document](t, env).Filename)
}

func TestUploadRejections(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
		code     int
	}{
		{"unsupported type", "notes.txt", []byte("just some plain text"), http.StatusUnsupportedMediaType, errors.ErrUnsupportedMediaType.Code},
		{"too large", "big.pdf", append(pdfBytes(), bytes.Repeat([]byte("x"), 2*testUploadLimit)...), http.StatusRequestEntityTooLarge, errors.ErrRequestTooLarge.Code},
		{"missing file", "", nil, http.StatusBadRequest, errors.ErrMissingParam.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := f.upload(t, tt.filename, tt.content, map[string]string{"user_id": "u-1"})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, env.Code)
		})
	}
	assert.Zero(t, f.broker.Len(filetype.FileProcessQueue))
}

func TestTagRoutes(t *testing.T) {
	f := newAPIFixture(t)

	for _, name := range []string{"finance", "legal", "fintech"} {
		w, _ := f.do(t, http.MethodPost, "/api/v1/tags", gin.H{"name": name})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, env := f.do(t, http.MethodPost, "/api/v1/tags", gin.H{"name": "finance"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotZero(t, env.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/tags?search=fin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Tags []*model.Tag `json:"tags"`
	}](t, env)
	names := make([]string, 0, len(listed.Tags))
	for _, tag := range listed.Tags {
		names = append(names, tag.Name)
	}
	assert.ElementsMatch(t, []string{"finance", "fintech"}, names)

	w, _ = f.do(t, http.MethodGet, "/api/v1/tags/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkRoutes(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	doc := &model.Document{UserID: "u-1", Filename: "a.pdf", MimeType: "application/pdf", Path: "uploads/u-1/a.pdf", Status: model.DocumentStatusCompleted}
	require.NoError(t, f.store.Documents().Create(ctx, doc))

	w, _ := f.do(t, http.MethodPost, "/api/v1/tags", gin.H{"name": "known"})
	require.Equal(t, http.StatusCreated, w.Code)

	create := func(index int, tags ...string) (*httptest.ResponseRecorder, envelope) {
		return f.do(t, http.MethodPost, "/api/v1/chunks", gin.H{
			"document_id": doc.ID,
			"chunk_index": index,
			"content":     fmt.Sprintf("chunk %d", index),
			"embedding":   embedding(model.ChunkEmbeddingDim, index),
			"tags":        tags,
		})
	}

	w, env := create(0, "known", "unknown")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrUnknownTag.Code, env.Code)
	assert.Contains(t, env.Message, "Tags not found in tags table")
	assert.Contains(t, env.Message, "unknown")

	w, env = create(0, "known")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	chunkID := decode[struct {
		ID string `json:"id"`
	}](t, env).ID
	require.NotEmpty(t, chunkID)

	w, _ = create(1)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/chunks/"+chunkID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Chunk *model.Chunk `json:"chunk"`
	}](t, env)
	assert.Equal(t, "chunk 0", got.Chunk.Content)

	w, _ = f.do(t, http.MethodPost, "/api/v1/tags", gin.H{"name": "extra"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/"+chunkID+"/tags", gin.H{"tags": []string{"extra", "known"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tagged := decode[struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	}](t, env)
	assert.ElementsMatch(t, []string{"known", "extra"}, tagged.Tags)

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/search/tags", gin.H{"tags": []string{"extra"}})
	require.Equal(t, http.StatusOK, w.Code)
	byTag := decode[struct {
		Chunks []*model.Chunk `json:"chunks"`
	}](t, env)
	require.Len(t, byTag.Chunks, 1)
	assert.Equal(t, chunkID, byTag.Chunks[0].ID)

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/search/similarity", gin.H{
		"embedding": embedding(model.ChunkEmbeddingDim, 0),
		"limit":     5,
		"threshold": 0.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	similar := decode[struct {
		Results []*model.SimilarityResult `json:"results"`
	}](t, env)
	require.Len(t, similar.Results, 1)
	assert.Equal(t, chunkID, similar.Results[0].ID)
	assert.InDelta(t, 1.0, similar.Results[0].Similarity, 1e-6)

	w, env = f.do(t, http.MethodGet, "/api/v1/chunks/document/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Chunks []*model.Chunk `json:"chunks"`
	}](t, env).Chunks, 2)

	w, env = f.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	deleted := decode[struct {
		Message string `json:"message"`
		Chunks  int64  `json:"chunks"`
	}](t, env)
	assert.Equal(t, int64(2), deleted.Chunks)

	w, _ = f.do(t, http.MethodGet, "/api/v1/chunks/"+chunkID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChunkQuerySearch(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	done := &model.Document{UserID: "u-1", Filename: "done.pdf", MimeType: "application/pdf", Path: "uploads/u-1/done.pdf", Status: model.DocumentStatusCompleted}
	busy := &model.Document{UserID: "u-1", Filename: "busy.pdf", MimeType: "application/pdf", Path: "uploads/u-1/busy.pdf", Status: model.DocumentStatusProcessing}
	for _, doc := range []*model.Document{done, busy} {
		require.NoError(t, f.store.Documents().Create(ctx, doc))
	}
	for _, c := range []*model.Chunk{
		{DocumentID: done.ID, ChunkIndex: 0, Content: "alpha done", Embedding: pgvector.NewVector(embedding(model.ChunkEmbeddingDim, 0))},
		{DocumentID: busy.ID, ChunkIndex: 0, Content: "alpha busy", Embedding: pgvector.NewVector(embedding(model.ChunkEmbeddingDim, 0))},
		{DocumentID: done.ID, ChunkIndex: 1, Content: "beta done", Embedding: pgvector.NewVector(embedding(model.ChunkEmbeddingDim, 1))},
	} {
		require.NoError(t, f.store.Chunks().Create(ctx, c))
	}

	type results struct {
		Results []*model.SimilarityResult `json:"results"`
	}

	w, env := f.do(t, http.MethodPost, "/api/v1/chunks/search/query", gin.H{"query": "alpha", "limit": 5, "threshold": 0.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	all := decode[results](t, env).Results
	require.Len(t, all, 2)
	for _, r := range all {
		assert.True(t, strings.HasPrefix(r.Content, "alpha"), r.Content)
		assert.InDelta(t, 1.0, r.Similarity, 1e-6)
	}

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/search/query", gin.H{"query": " alpha ", "threshold": 0.5, "completedOnly": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decode[results](t, env).Results
	require.Len(t, completed, 1)
	assert.Equal(t, "alpha done", completed[0].Content)
	assert.Equal(t, "done.pdf", completed[0].Filename)

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/search/query", gin.H{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrInvalidParam.Code, env.Code)

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/search/query", gin.H{"limit": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrValidationFailed.Code, env.Code)

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks/search/query", gin.H{"query": "gamma"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, errors.ErrEmbeddingFailure.Code, env.Code)
}

func TestChunkQuerySearchWithoutEmbedder(t *testing.T) {
	f := newAPIFixtureWith(t, nil)

	w, env := f.do(t, http.MethodPost, "/api/v1/chunks/search/query", gin.H{"query": "alpha"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errors.ErrServiceUnavailable.Code, env.Code)
}

func TestRequestValidation(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/v1/chunks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrInvalidParam.Code, env.Code)

	w, env = f.do(t, http.MethodPost, "/api/v1/chunks", gin.H{
		"document_id": "0b7e7a52-9a3e-4c36-9d8e-3f1f6f1c2a11",
		"chunk_index": 0,
		"content":     "x",
		"embedding":   []float32{0.1, 0.2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrValidationFailed.Code, env.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tags", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w, env = f.serve(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrBadRequest.Code, env.Code)
}

func TestHealthProbes(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "ok", decode[map[string]any](t, env)["status"])

	w, _ = f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.health.statuses["rabbitmq"] = storage.HealthStatus{Name: "rabbitmq", Error: fmt.Errorf("connection refused")}
	w, env = f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errors.ErrServiceUnavailable.Code, env.Code)

	report := decode[struct {
		Status     string `json:"status"`
		Components map[string]struct {
			Healthy bool   `json:"healthy"`
			Message string `json:"message"`
		} `json:"components"`
	}](t, env)
	assert.Equal(t, "not ready", report.Status)
	assert.True(t, report.Components["postgres"].Healthy)
	assert.False(t, report.Components["rabbitmq"].Healthy)
	assert.Equal(t, "connection refused", report.Components["rabbitmq"].Message)
}
