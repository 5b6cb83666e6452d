package worker

import (
	"context"

	"github.com/vietddude/foreman/internal/infra/broker"
)

// Delivery is one in-flight message. Every delivery must end in Ack or
// Nack; the consume loop guarantees this on all paths.
type Delivery interface {
	Body() []byte
	Ack(ctx context.Context) error
	Nack(ctx context.Context, requeue bool) error
}

// Source yields deliveries from the input queue, one at a time.
type Source interface {
	// Next blocks for up to the polling window and returns
	// broker.ErrQueueEmpty when nothing arrived.
	Next(ctx context.Context) (Delivery, error)

	// Recover requeues messages stranded by a crashed predecessor.
	Recover(ctx context.Context) (int, error)
}

// Publisher publishes result messages.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte, priority int) error
}

// brokerSource adapts a broker subscription to the Source interface.
type brokerSource struct {
	sub *broker.Subscription
}

// NewSource wraps a broker subscription for the consumer.
func NewSource(sub *broker.Subscription) Source {
	return brokerSource{sub: sub}
}

func (b brokerSource) Next(ctx context.Context) (Delivery, error) {
	d, err := b.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (b brokerSource) Recover(ctx context.Context) (int, error) {
	return b.sub.Recover(ctx)
}
