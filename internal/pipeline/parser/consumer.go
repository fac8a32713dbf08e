package parser

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// Consumer 消费一个解析队列：解析文件、写入 markdown、投递分块消息。
type Consumer struct {
	queue    string
	broker   rabbitmq.Broker
	blobs    blob.Store
	status   pipeline.StatusUpdater
	registry *Registry
}

// NewConsumer 创建解析队列消费者。
func NewConsumer(queue string, broker rabbitmq.Broker, blobs blob.Store, status pipeline.StatusUpdater, registry *Registry) *Consumer {
	return &Consumer{
		queue:    queue,
		broker:   broker,
		blobs:    blobs,
		status:   status,
		registry: registry,
	}
}

// Queue 返回消费的队列名。
func (c *Consumer) Queue() string { return c.queue }

// Run 消费解析队列，直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context, consumerTag string) error {
	return c.broker.Consume(ctx, c.queue, consumerTag, c.Handle)
}

// Handle 处理一条 FileProcessMessage。
func (c *Consumer) Handle(ctx context.Context, d *rabbitmq.Delivery) error {
	m, err := message.Decode[message.FileProcessMessage](d)
	if err != nil {
		logger.Warnw("Rejecting invalid parser message",
			"queue", d.Queue,
			"message_id", d.MessageID,
			"error", err.Error(),
		)
		return err
	}

	ft := m.Type()
	p, err := c.registry.Get(ft)
	if err != nil {
		logger.Warnw("No parser for file type, dropping",
			"queue", c.queue,
			"document_id", m.DocumentID,
			"file_type", m.FileType,
		)
		return pipeline.Fail(ctx, c.status, d, m.DocumentID, err)
	}

	if err := pipeline.Begin(ctx, c.status, m.DocumentID); err != nil {
		logger.Warnw("Could not start parsing",
			"document_id", m.DocumentID,
			"error", err.Error(),
		)
		return err
	}

	fields := []any{
		"queue", c.queue,
		"document_id", m.DocumentID,
		"parser", p.Name(),
		"attempt", d.Attempt(),
	}

	res, err := p.Parse(ctx, NewSource(c.blobs, m.DocumentID, m.S3Key, m.Name(), ft))
	if err != nil {
		logger.Warnw("Parse failed", append(fields, "error", err.Error())...)
		return pipeline.Fail(ctx, c.status, d, m.DocumentID, retryable(err))
	}

	key := res.MarkdownKey
	if key == "" {
		key, err = c.blobs.Put(ctx, blob.ParsedKey(m.DocumentID, m.S3Key), strings.NewReader(res.Markdown), "text/markdown; charset=utf-8")
		if err != nil {
			logger.Warnw("Storing parsed markdown failed", append(fields, "error", err.Error())...)
			return pipeline.Fail(ctx, c.status, d, m.DocumentID, retryable(err))
		}
	}

	out := message.ChunkingMessage{
		Version:          message.CurrentVersion,
		S3Bucket:         c.blobs.Bucket(),
		S3Key:            key,
		DocumentID:       m.DocumentID,
		FileType:         ft.String(),
		OriginalFilename: m.Name(),
	}
	if err := c.broker.Publish(ctx, filetype.ChunkingQueue, out, message.PublishOptions()); err != nil {
		logger.Warnw("Publishing chunking message failed", append(fields, "error", err.Error())...)
		return pipeline.Fail(ctx, c.status, d, m.DocumentID, retryable(err))
	}

	logger.Infow("Parsed document", append(fields, "markdown_key", key, "pages", res.Pages)...)
	return nil
}

// retryable 决定解析阶段的错误是否进入有限重试。
func retryable(err error) error {
	switch {
	case stderrors.Is(err, errors.ErrBrokerUnavailable):
		return err
	case stderrors.Is(err, errors.ErrBlobNotFound), stderrors.Is(err, errors.ErrUnsupportedFileType):
		return err
	default:
		return rabbitmq.Retry(err)
	}
}
