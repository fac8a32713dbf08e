package chunking

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/logger"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/pipeline"
	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/infra/tracing"
)

// Consumer 消费分块队列：读取 markdown、切分、向量化并在一个事务内写库。
type Consumer struct {
	broker     rabbitmq.Broker
	blobs      blob.Store
	store      store.Factory
	splitter   *Splitter
	chunks     *Embedder
	components *Embedder
	cache      Invalidator
}

// Invalidator 在分块写入后清除依赖分块数据的缓存。
type Invalidator interface {
	Invalidate(ctx context.Context) int
}

// NewConsumer 创建分块消费者。components 为 nil 时不生成组件。
func NewConsumer(broker rabbitmq.Broker, blobs blob.Store, factory store.Factory, splitter *Splitter, chunks, components *Embedder) *Consumer {
	return &Consumer{
		broker:     broker,
		blobs:      blobs,
		store:      factory,
		splitter:   splitter,
		chunks:     chunks,
		components: components,
	}
}

// WithInvalidator 设置写入成功后需要清除的缓存。
func (c *Consumer) WithInvalidator(inv Invalidator) *Consumer {
	c.cache = inv
	return c
}

// Run 消费分块队列，直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context, consumerTag string) error {
	return c.broker.Consume(ctx, filetype.ChunkingQueue, consumerTag, c.Handle)
}

// Handle 处理一条 ChunkingMessage。
func (c *Consumer) Handle(ctx context.Context, d *rabbitmq.Delivery) error {
	m, err := message.Decode[message.ChunkingMessage](d)
	if err != nil {
		logger.Warnw("Rejecting invalid chunking message",
			"queue", d.Queue,
			"message_id", d.MessageID,
			"error", err.Error(),
		)
		return err
	}

	status := pipeline.StoreStatus{Documents: c.store.Documents()}
	if err := pipeline.Begin(ctx, status, m.DocumentID); err != nil {
		logger.Warnw("Could not start chunking",
			"document_id", m.DocumentID,
			"error", err.Error(),
		)
		return err
	}

	fields := []any{
		"queue", d.Queue,
		"document_id", m.DocumentID,
		"s3_key", m.S3Key,
		"attempt", d.Attempt(),
	}
	if m.S3Bucket != "" && m.S3Bucket != c.blobs.Bucket() {
		logger.Warnw("Chunking message names another bucket, reading from the configured store",
			append(fields, "s3_bucket", m.S3Bucket, "bucket", c.blobs.Bucket())...)
	}

	data, err := blob.ReadAll(ctx, c.blobs, m.S3Key)
	if err != nil {
		logger.Warnw("Reading parsed markdown failed", append(fields, "error", err.Error())...)
		return pipeline.Fail(ctx, status, d, m.DocumentID, retryable(err))
	}

	texts := c.splitter.Split(string(data))
	if len(texts) == 0 {
		err := errors.ErrChunkingFailure.WithMessage("document produced no chunks")
		logger.Warnw("Nothing to chunk", fields...)
		return pipeline.Fail(ctx, status, d, m.DocumentID, rabbitmq.Drop(err))
	}

	n, err := c.ingest(ctx, m.DocumentID, texts)
	if err != nil {
		logger.Warnw("Chunking failed", append(fields, "error", err.Error())...)
		return pipeline.Fail(ctx, status, d, m.DocumentID, retryable(err))
	}

	if c.cache != nil && n > 0 {
		c.cache.Invalidate(ctx)
	}

	logger.Infow("Chunked document", append(fields, "chunks", len(texts), "inserted", n)...)
	return nil
}

// ingest 为尚未写入的分块生成向量，并在同一事务内写入分块、组件并标记完成。
// 重复投递时已存在的 (document_id, chunk_index) 被跳过，因此结果收敛。
func (c *Consumer) ingest(ctx context.Context, documentID string, texts []string) (int64, error) {
	existing, err := c.store.Chunks().ListByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	have := sets.New[int]()
	for _, ch := range existing {
		have.Insert(ch.ChunkIndex)
	}

	var pending []*model.Chunk
	for i, text := range texts {
		if !have.Has(i) {
			pending = append(pending, &model.Chunk{DocumentID: documentID, ChunkIndex: i, Content: text})
		}
	}

	comps, err := c.embed(ctx, documentID, pending)
	if err != nil {
		return 0, err
	}

	var inserted int64
	err = c.store.TX(ctx, func(ctx context.Context, tx store.Factory) error {
		n, err := tx.Chunks().CreateBulkIgnoreExisting(ctx, pending)
		if err != nil {
			return err
		}
		inserted = n

		if len(comps) > 0 {
			stored, err := tx.Chunks().ListByDocument(ctx, documentID)
			if err != nil {
				return err
			}
			ids := make(map[int]string, len(stored))
			for _, ch := range stored {
				ids[ch.ChunkIndex] = ch.ID
			}
			var rows []*model.ChunkComponent
			for idx, cs := range comps {
				for _, comp := range cs {
					comp.ChunkID = ids[idx]
					rows = append(rows, comp)
				}
			}
			if _, err := tx.Components().CreateBulkIgnoreExisting(ctx, rows); err != nil {
				return err
			}
		}

		_, err = tx.Documents().UpdateStatus(ctx, documentID, model.DocumentStatusCompleted, "")
		return err
	})
	return inserted, err
}

// embed 填充 pending 的向量，并按分块序号返回待写入的组件。
func (c *Consumer) embed(ctx context.Context, documentID string, pending []*model.Chunk) (map[int][]*model.ChunkComponent, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, "chunking.embed", trace.SpanKindInternal,
		attribute.String("document.id", documentID),
		attribute.Int("chunks", len(pending)),
	)
	defer span.End()

	texts := make([]string, len(pending))
	for i, ch := range pending {
		texts[i] = ch.Content
	}
	vecs, err := c.chunks.Embed(ctx, texts)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	for i, ch := range pending {
		ch.Embedding = pgvector.NewVector(vecs[i])
	}

	if c.components == nil {
		return nil, nil
	}

	comps := make(map[int][]*model.ChunkComponent, len(pending))
	var compTexts []string
	for _, ch := range pending {
		for j, text := range c.splitter.Components(ch.Content) {
			comps[ch.ChunkIndex] = append(comps[ch.ChunkIndex], &model.ChunkComponent{ComponentIndex: j, Content: text})
			compTexts = append(compTexts, text)
		}
	}
	compVecs, err := c.components.Embed(ctx, compTexts)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	k := 0
	for _, ch := range pending {
		for _, comp := range comps[ch.ChunkIndex] {
			comp.Embedding = pgvector.NewVector(compVecs[k])
			k++
		}
	}
	return comps, nil
}

// retryable 决定分块阶段的错误是否进入有限重试。
func retryable(err error) error {
	switch {
	case stderrors.Is(err, errors.ErrBrokerUnavailable):
		return err
	case stderrors.Is(err, errors.ErrBlobNotFound),
		stderrors.Is(err, errors.ErrInvalidEmbedding),
		stderrors.Is(err, errors.ErrUnknownTag),
		stderrors.Is(err, errors.ErrDocumentNotFound):
		return err
	default:
		return rabbitmq.Retry(err)
	}
}
