package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/internal/store/memory"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

type fixture struct {
	broker *rabbitmq.MemoryBroker
	store  *memory.Store
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	b := rabbitmq.NewMemoryBroker(2)
	for _, q := range filetype.Queues() {
		require.NoError(t, b.DeclareQueue(ctx, q, rabbitmq.QueueOptions{Durable: true, DeadLetter: true}))
	}
	s := memory.New()
	return &fixture{broker: b, store: s, router: NewRouter(b)}
}

func (f *fixture) upload(t *testing.T, fileType string) *message.FileProcessMessage {
	t.Helper()
	ctx := context.Background()
	doc := &model.Document{UserID: "alice", Filename: "f." + fileType, MimeType: "application/octet-stream", Path: "uploads/alice/f"}
	require.NoError(t, f.store.Documents().Create(ctx, doc))
	m := &message.FileProcessMessage{
		Version:    message.CurrentVersion,
		Username:   "alice",
		Filename:   doc.Filename,
		S3Key:      "uploads/alice/01J-f." + fileType,
		UploadedAt: time.Now().UTC(),
		FileType:   fileType,
		DocumentID: doc.ID,
	}
	require.NoError(t, f.broker.Publish(ctx, filetype.FileProcessQueue, m, message.PublishOptions()))
	return m
}

func (f *fixture) drain() int {
	return f.broker.Drain(context.Background(), filetype.FileProcessQueue, f.router.Handle)
}

func TestRouterRoutesEverySupportedType(t *testing.T) {
	f := newFixture(t)
	for _, ft := range []string{"pdf", "docx", "xlsx", "image"} {
		f.upload(t, ft)
	}

	assert.Equal(t, 4, f.drain())
	assert.Equal(t, 2, f.broker.Len(filetype.PDFParserQueue))
	assert.Equal(t, 1, f.broker.Len(filetype.DOCXParserQueue))
	assert.Equal(t, 1, f.broker.Len(filetype.XLSXParserQueue))
	assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.FileProcessQueue)))

	var routed message.FileProcessMessage
	require.NoError(t, f.broker.Pending(filetype.DOCXParserQueue)[0].Decode(&routed))
	assert.Equal(t, "docx", routed.FileType)
}

func TestRouterDropsUnsupportedType(t *testing.T) {
	f := newFixture(t)
	m := f.upload(t, "pptx")

	assert.Equal(t, 1, f.drain())
	for _, q := range filetype.Queues() {
		assert.Zero(t, f.broker.Len(q), q)
		assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(q)), q)
	}

	doc, err := f.store.Documents().Get(context.Background(), m.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusPending, doc.Status, "routing never writes document status")
	assert.Nil(t, doc.ErrorMessage)
}

func (f *fixture) publishRaw(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, f.broker.Publish(context.Background(), filetype.FileProcessQueue, json.RawMessage(body), rabbitmq.PublishOptions{}))
}

func TestRouterAcceptsWireEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		queue string
	}{
		{
			name:  "plain envelope",
			body:  `{"username":"alice","filename":"a.pdf","s3Key":"k1","uploadedAt":"2025-01-02T03:04:05Z","fileType":"pdf","documentId":"D1"}`,
			queue: filetype.PDFParserQueue,
		},
		{
			name:  "uuid document without version",
			body:  `{"username":"bob","filename":"b.docx","s3Key":"uploads/bob/b.docx","uploadedAt":"2025-01-02T03:04:05.123+08:00","fileType":"docx","documentId":"3f2b8c1e-6a4d-4f7e-9b0a-1c2d3e4f5a6b"}`,
			queue: filetype.DOCXParserQueue,
		},
		{
			name:  "explicit version",
			body:  `{"version":1,"s3Key":"k2","fileType":"image","documentId":"D1"}`,
			queue: filetype.PDFParserQueue,
		},
		{
			name:  "spreadsheet without optional fields",
			body:  `{"s3Key":"sheets/q3.xlsx","fileType":"xlsx","documentId":"D2"}`,
			queue: filetype.XLSXParserQueue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.publishRaw(t, tt.body)

			assert.Equal(t, 1, f.drain())
			require.Equal(t, 1, f.broker.Len(tt.queue))
			assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.FileProcessQueue)))

			var want, routed message.FileProcessMessage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &want))
			require.NoError(t, f.broker.Pending(tt.queue)[0].Decode(&routed))
			assert.Equal(t, want.DocumentID, routed.DocumentID)
			assert.Equal(t, want.S3Key, routed.S3Key)
			assert.Equal(t, message.CurrentVersion, routed.Version)
		})
	}
}

func TestRouterAcksEmptyAndUnknownFileType(t *testing.T) {
	for _, body := range []string{
		`{"username":"alice","filename":"a","s3Key":"k1","uploadedAt":"2025-01-02T03:04:05Z","fileType":"","documentId":"D1"}`,
		`{"s3Key":"k1","fileType":"unknown","documentId":"D1"}`,
		`{"s3Key":"k1","documentId":"D1"}`,
	} {
		f := newFixture(t)
		f.publishRaw(t, body)

		assert.Equal(t, 1, f.drain(), body)
		for _, q := range filetype.Queues() {
			assert.Zero(t, f.broker.Len(q), q)
			assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(q)), q)
		}
	}
}

func TestRouterRejectsInvalidMessage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.broker.Publish(context.Background(), filetype.FileProcessQueue, map[string]any{"fileType": "pdf"}, message.PublishOptions()))

	assert.Equal(t, 1, f.drain())
	assert.Equal(t, 1, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.FileProcessQueue)))
	assert.Zero(t, f.broker.Len(filetype.PDFParserQueue))
}

func TestRouterRejectsFutureSchema(t *testing.T) {
	f := newFixture(t)
	f.publishRaw(t, `{"version":2,"s3Key":"k1","fileType":"pdf","documentId":"D1"}`)

	assert.Equal(t, 1, f.drain())
	assert.Equal(t, 1, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.FileProcessQueue)))
	assert.Zero(t, f.broker.Len(filetype.PDFParserQueue))
}

func TestRouterRetriesPublishFailureThenDeadLetters(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "pdf")
	f.broker.FailPublish(filetype.PDFParserQueue, errors.ErrPublishFailed)

	assert.Equal(t, 3, f.drain(), "one attempt plus two retries")
	assert.Equal(t, 1, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.FileProcessQueue)))
	assert.Zero(t, f.broker.Len(filetype.PDFParserQueue))
}

func TestRouterRecoversAfterTransientPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "docx")
	f.broker.FailPublish(filetype.DOCXParserQueue, errors.ErrPublishFailed)

	calls := 0
	f.broker.Drain(context.Background(), filetype.FileProcessQueue, func(ctx context.Context, d *rabbitmq.Delivery) error {
		calls++
		if calls == 2 {
			f.broker.FailPublish(filetype.DOCXParserQueue, nil)
		}
		return f.router.Handle(ctx, d)
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, f.broker.Len(filetype.DOCXParserQueue))
	assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.FileProcessQueue)))
}
