// Package gateway routes announced uploads to the parser queue for their
// file type.
package gateway

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/logger"

	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/internal/pipeline/message"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// Router 消费 file-process-queue，按文件类型转发到解析队列。
// Router 无状态，只读写队列，不访问文档存储，可以多实例并行运行。
type Router struct {
	broker rabbitmq.Broker
}

// NewRouter 创建路由器。
func NewRouter(broker rabbitmq.Broker) *Router {
	return &Router{broker: broker}
}

// Run 消费 file-process-queue，直到 ctx 结束。
func (r *Router) Run(ctx context.Context, consumerTag string) error {
	return r.broker.Consume(ctx, filetype.FileProcessQueue, consumerTag, r.Handle)
}

// Handle 处理一条 FileProcessMessage。只有在转发消息得到确认后才返回 nil。
func (r *Router) Handle(ctx context.Context, d *rabbitmq.Delivery) error {
	m, err := message.Decode[message.FileProcessMessage](d)
	if err != nil {
		logger.Warnw("Rejecting invalid file process message",
			"queue", d.Queue,
			"message_id", d.MessageID,
			"error", err.Error(),
		)
		return err
	}

	queue, err := m.Type().ParserQueue()
	if err != nil {
		logger.Warnw("Unsupported file type, dropping",
			"document_id", m.DocumentID,
			"file_type", m.FileType,
			"filename", m.Name(),
		)
		return err
	}

	if err := r.broker.Publish(ctx, queue, m, message.PublishOptions()); err != nil {
		if stderrors.Is(err, errors.ErrBrokerUnavailable) {
			return err
		}
		return rabbitmq.Retry(err)
	}

	logger.Infow("Routed document",
		"document_id", m.DocumentID,
		"file_type", m.FileType,
		"queue", queue,
		"attempt", d.Attempt(),
	)
	return nil
}
