package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Handler processes one decoded event. Returning an error nacks the message
// so the subscriber redelivers it.
type Handler[T any] func(ctx context.Context, event *T) error

// ConsumerCounts reports what a consumer did with the messages it received.
type ConsumerCounts struct {
	Handled uint64
	Failed  uint64
	Dropped uint64
	Skipped uint64
}

// Consumer decodes JSON messages from one topic and passes them to a typed handler.
//
// Malformed payloads are acked and dropped, since redelivery cannot fix them.
// Messages stamped with a different MetadataTopic are acked and skipped.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	handled atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64
}

func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
	}
}

func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages in the background until ctx is
// cancelled or Shutdown is called.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		cancel()

		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	c.cancel = cancel
	c.done = make(chan struct{})

	go c.consumeLoop(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handleMessage(ctx context.Context, msg *message.Message) {
	if topic := msg.Metadata.Get(MetadataTopic); topic != "" && topic != c.topic {
		c.skipped.Add(1)
		msg.Ack()

		return
	}

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.dropped.Add(1)
		c.logger.Warn("dropping malformed event",
			zap.String("message_id", msg.UUID),
			zap.Error(err),
		)
		msg.Ack()

		return
	}

	if err := c.handler(ctx, &event); err != nil {
		c.failed.Add(1)
		c.logger.Error("failed to handle event",
			zap.String("message_id", msg.UUID),
			zap.Error(err),
		)
		msg.Nack()

		return
	}

	c.handled.Add(1)
	msg.Ack()
}

func (c *Consumer[T]) Counts() ConsumerCounts {
	return ConsumerCounts{
		Handled: c.handled.Load(),
		Failed:  c.failed.Load(),
		Dropped: c.dropped.Load(),
		Skipped: c.skipped.Load(),
	}
}

// Shutdown stops the loop and waits for the in-flight message. It is a no-op
// for a consumer that never started and safe to call more than once.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel == nil {
		return nil
	}

	c.stopOnce.Do(func() {
		c.cancel()
		<-c.done

		counts := c.Counts()
		c.logger.Info("consumer stopped",
			zap.Uint64("handled", counts.Handled),
			zap.Uint64("failed", counts.Failed),
			zap.Uint64("dropped", counts.Dropped),
			zap.Uint64("skipped", counts.Skipped),
		)
	})

	return nil
}
