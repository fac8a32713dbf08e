package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/internal/store/memory"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
)

type stubParser struct {
	calls int
	parse func(n int) (*Result, error)
}

func (p *stubParser) Name() string { return "stub" }

func (p *stubParser) Parse(_ context.Context, _ Source) (*Result, error) {
	p.calls++
	return p.parse(p.calls)
}

type consumerFixture struct {
	broker   *rabbitmq.MemoryBroker
	store    *memory.Store
	blobs    blob.Store
	parser   *stubParser
	consumer *Consumer
}

func newConsumerFixture(t *testing.T, parse func(n int) (*Result, error)) *consumerFixture {
	t.Helper()
	ctx := context.Background()
	b := rabbitmq.NewMemoryBroker(2)
	for _, q := range filetype.Queues() {
		require.NoError(t, b.DeclareQueue(ctx, q, rabbitmq.QueueOptions{Durable: true, DeadLetter: true}))
	}
	s := memory.New()
	blobs := newBlobs(t)
	p := &stubParser{parse: parse}
	reg := NewRegistry()
	reg.Register(filetype.PDF, p)
	return &consumerFixture{
		broker:   b,
		store:    s,
		blobs:    blobs,
		parser:   p,
		consumer: NewConsumer(filetype.PDFParserQueue, b, blobs, pipeline.StoreStatus{Documents: s.Documents()}, reg),
	}
}

func (f *consumerFixture) enqueue(t *testing.T, fileType string, status model.DocumentStatus) *model.Document {
	t.Helper()
	ctx := context.Background()
	doc := &model.Document{UserID: "alice", Filename: "report.pdf", MimeType: "application/pdf", Path: "uploads/alice/01J-report.pdf", Status: status}
	require.NoError(t, f.store.Documents().Create(ctx, doc))
	m := message.FileProcessMessage{
		Version:    message.CurrentVersion,
		Username:   "alice",
		Filename:   doc.Filename,
		S3Key:      doc.Path,
		UploadedAt: time.Now().UTC(),
		FileType:   fileType,
		DocumentID: doc.ID,
	}
	require.NoError(t, f.broker.Publish(ctx, filetype.PDFParserQueue, m, message.PublishOptions()))
	return doc
}

func (f *consumerFixture) drain() int {
	return f.broker.Drain(context.Background(), filetype.PDFParserQueue, f.consumer.Handle)
}

func (f *consumerFixture) status(t *testing.T, id string) *model.Document {
	t.Helper()
	doc, err := f.store.Documents().Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func TestConsumerParsesAndPublishes(t *testing.T) {
	f := newConsumerFixture(t, func(int) (*Result, error) {
		return &Result{Markdown: "# Intro\n\nhello", Pages: 1}, nil
	})
	doc := f.enqueue(t, "pdf", model.DocumentStatusPending)

	assert.Equal(t, 1, f.drain())
	assert.Equal(t, model.DocumentStatusProcessing, f.status(t, doc.ID).Status)

	pending := f.broker.Pending(filetype.ChunkingQueue)
	require.Len(t, pending, 1)
	var m message.ChunkingMessage
	require.NoError(t, pending[0].Decode(&m))
	require.NoError(t, m.Validate())
	assert.Equal(t, "docs", m.S3Bucket)
	assert.Equal(t, "parsed/"+doc.ID+"/01J-report.md", m.S3Key)
	assert.Equal(t, "report.pdf", m.OriginalFilename)

	data, err := blob.ReadAll(context.Background(), f.blobs, m.S3Key)
	require.NoError(t, err)
	assert.Equal(t, "# Intro\n\nhello", string(data))
}

func TestConsumerUsesParserProvidedKey(t *testing.T) {
	f := newConsumerFixture(t, func(int) (*Result, error) {
		return &Result{MarkdownKey: "parsed/external/out.md"}, nil
	})
	f.enqueue(t, "pdf", model.DocumentStatusPending)

	f.drain()
	var m message.ChunkingMessage
	require.NoError(t, f.broker.Pending(filetype.ChunkingQueue)[0].Decode(&m))
	assert.Equal(t, "parsed/external/out.md", m.S3Key)
}

func TestConsumerRetriesThenFailsDocument(t *testing.T) {
	f := newConsumerFixture(t, func(int) (*Result, error) {
		return nil, errors.ErrParseFailure.WithMessage("garbled")
	})
	doc := f.enqueue(t, "pdf", model.DocumentStatusPending)

	assert.Equal(t, 3, f.drain())
	assert.Equal(t, 3, f.parser.calls)
	assert.Equal(t, 1, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.PDFParserQueue)))
	assert.Zero(t, f.broker.Len(filetype.ChunkingQueue))

	got := f.status(t, doc.ID)
	assert.Equal(t, model.DocumentStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "garbled")
}

func TestConsumerRecoversOnRetry(t *testing.T) {
	f := newConsumerFixture(t, func(n int) (*Result, error) {
		if n == 1 {
			return nil, errors.ErrParseFailure
		}
		return &Result{Markdown: "text"}, nil
	})
	doc := f.enqueue(t, "pdf", model.DocumentStatusPending)

	assert.Equal(t, 2, f.drain())
	assert.Equal(t, model.DocumentStatusProcessing, f.status(t, doc.ID).Status)
	assert.Equal(t, 1, f.broker.Len(filetype.ChunkingQueue))
	assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.PDFParserQueue)))
}

func TestConsumerDropsUnregisteredType(t *testing.T) {
	f := newConsumerFixture(t, func(int) (*Result, error) { return &Result{Markdown: "x"}, nil })
	doc := f.enqueue(t, "image", model.DocumentStatusPending)

	assert.Equal(t, 1, f.drain())
	assert.Zero(t, f.parser.calls)
	assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.PDFParserQueue)))
	assert.Equal(t, model.DocumentStatusFailed, f.status(t, doc.ID).Status)
}

func TestConsumerDropsStaleMessage(t *testing.T) {
	f := newConsumerFixture(t, func(int) (*Result, error) { return &Result{Markdown: "x"}, nil })
	doc := f.enqueue(t, "pdf", model.DocumentStatusPending)
	ctx := context.Background()
	_, err := f.store.Documents().UpdateStatus(ctx, doc.ID, model.DocumentStatusProcessing, "")
	require.NoError(t, err)
	_, err = f.store.Documents().UpdateStatus(ctx, doc.ID, model.DocumentStatusCompleted, "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.drain())
	assert.Zero(t, f.parser.calls)
	assert.Zero(t, f.broker.Len(filetype.ChunkingQueue))
	assert.Zero(t, f.broker.Len(rabbitmq.DeadLetterQueue(filetype.PDFParserQueue)))
	assert.Equal(t, model.DocumentStatusCompleted, f.status(t, doc.ID).Status)
}

func TestConsumerRequeuesWhenBrokerUnavailable(t *testing.T) {
	f := newConsumerFixture(t, func(int) (*Result, error) { return &Result{Markdown: "x"}, nil })
	f.enqueue(t, "pdf", model.DocumentStatusPending)
	f.broker.FailPublish(filetype.ChunkingQueue, errors.ErrBrokerUnavailable)

	calls := 0
	f.broker.Drain(context.Background(), filetype.PDFParserQueue, func(ctx context.Context, d *rabbitmq.Delivery) error {
		calls++
		if calls == 2 {
			f.broker.FailPublish(filetype.ChunkingQueue, nil)
		}
		return f.consumer.Handle(ctx, d)
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, f.broker.Len(filetype.ChunkingQueue))
}
