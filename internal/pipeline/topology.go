package pipeline

import (
	"context"

	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
)

// DeclareTopology 声明所有流水线队列及其死信队列。重复调用是安全的。
func DeclareTopology(ctx context.Context, broker rabbitmq.Broker) error {
	for _, q := range filetype.Queues() {
		if err := broker.DeclareQueue(ctx, q, rabbitmq.QueueOptions{Durable: true, DeadLetter: true}); err != nil {
			return err
		}
	}
	return nil
}
