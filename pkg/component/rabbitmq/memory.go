package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kart-io/chunkflow/pkg/infra/tracing"
)

// Message is a message held by MemoryBroker.
type Message struct {
	ID      string
	Body    []byte
	Headers map[string]any
}

// Decode unmarshals the body into v.
func (m Message) Decode(v any) error {
	d := Delivery{Body: m.Body}
	return d.Decode(v)
}

type memQueue struct {
	opts     QueueOptions
	messages []Message
	notify   chan struct{}
}

// MemoryBroker is an in-process Broker with the same settlement semantics
// as Client, used by tests.
type MemoryBroker struct {
	mu         sync.Mutex
	queues     map[string]*memQueue
	failures   map[string]error
	maxRetries int
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker(maxRetries int) *MemoryBroker {
	return &MemoryBroker{
		queues:     make(map[string]*memQueue),
		failures:   make(map[string]error),
		maxRetries: maxRetries,
	}
}

func (b *MemoryBroker) queue(name string) *memQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memQueue{notify: make(chan struct{}, 1)}
		b.queues[name] = q
	}
	return q
}

func (q *memQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// DeclareQueue records queue options. It is idempotent.
func (b *MemoryBroker) DeclareQueue(_ context.Context, name string, opts QueueOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue(name).opts = opts
	if opts.DeadLetter {
		b.queue(DeadLetterQueue(name))
	}
	return nil
}

// Publish appends payload to queue.
func (b *MemoryBroker) Publish(ctx context.Context, queue string, payload any, opts PublishOptions) error {
	body, err := encodeBody(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[queue]; err != nil {
		return err
	}

	headers := copyHeaders(opts.Headers)
	headers[HeaderSchemaVersion] = opts.schemaVersion()
	headers[HeaderRetryCount] = int32(opts.retryCount)
	tracing.InjectHeaders(ctx, headers)

	id := opts.MessageID
	if id == "" {
		id = ulid.Make().String()
	}

	q := b.queue(queue)
	q.messages = append(q.messages, Message{ID: id, Body: body, Headers: headers})
	q.signal()
	return nil
}

// Consume dispatches messages from queue until ctx is done.
func (b *MemoryBroker) Consume(ctx context.Context, queue, _ string, h Handler) error {
	for {
		msg, notify, ok := b.pop(queue)
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-notify:
				continue
			}
		}
		d := newDelivery(queue, msg.Body, msg.Headers, msg.ID, "application/json", time.Now().UTC(), b.maxRetries)
		dispatch(ctx, d, h, &memAck{b: b, queue: queue, msg: msg}, b.republish)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Drain dispatches messages from queue until it is empty and returns the
// number processed.
func (b *MemoryBroker) Drain(ctx context.Context, queue string, h Handler) int {
	n := 0
	for ctx.Err() == nil {
		msg, _, ok := b.pop(queue)
		if !ok {
			return n
		}
		d := newDelivery(queue, msg.Body, msg.Headers, msg.ID, "application/json", time.Now().UTC(), b.maxRetries)
		dispatch(ctx, d, h, &memAck{b: b, queue: queue, msg: msg}, b.republish)
		n++
	}
	return n
}

func (b *MemoryBroker) pop(queue string) (Message, <-chan struct{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	if len(q.messages) == 0 {
		return Message{}, q.notify, false
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, q.notify, true
}

func (b *MemoryBroker) republish(ctx context.Context, d *Delivery) error {
	return b.Publish(ctx, d.Queue, d.Body, retryPublishOptions(d))
}

// FailPublish makes every publish to queue return err. A nil err clears it.
func (b *MemoryBroker) FailPublish(queue string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, queue)
		return
	}
	b.failures[queue] = err
}

// Pending returns a snapshot of the messages waiting on queue.
func (b *MemoryBroker) Pending(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return nil
	}
	out := make([]Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// Len returns the number of messages waiting on queue.
func (b *MemoryBroker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queue]; ok {
		return len(q.messages)
	}
	return 0
}

type memAck struct {
	b     *MemoryBroker
	queue string
	msg   Message
}

func (a *memAck) Ack() error {
	return nil
}

func (a *memAck) Nack(requeue bool) error {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()

	q := a.b.queue(a.queue)
	if requeue {
		q.messages = append([]Message{a.msg}, q.messages...)
		q.signal()
		return nil
	}
	if q.opts.DeadLetter {
		dlq := a.b.queue(DeadLetterQueue(a.queue))
		dlq.messages = append(dlq.messages, a.msg)
		dlq.signal()
	}
	return nil
}
