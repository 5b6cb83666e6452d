package broker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/foreman/internal/metrics"
)

// Publish enqueues a message body. Priority above zero jumps the line
// (head of the queue); everything else appends in FIFO order.
func (c *Client) Publish(ctx context.Context, queue string, body []byte, priority int) error {
	var err error
	if priority > 0 {
		err = c.rdb.LPush(ctx, queue, body).Err()
	} else {
		err = c.rdb.RPush(ctx, queue, body).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Delivery is one in-flight message held by a single consumer. The
// consumer must end every delivery in Ack or Nack.
type Delivery struct {
	client   *Client
	queue    string
	consumer string
	body     []byte
	count    int64
}

// Body returns the raw message payload.
func (d *Delivery) Body() []byte {
	return d.body
}

// DeliveryCount returns how many times this body has been delivered,
// this delivery included.
func (d *Delivery) DeliveryCount() int {
	return int(d.count)
}

// Ack removes the message permanently.
func (d *Delivery) Ack(ctx context.Context) error {
	pipe := d.client.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(d.queue, d.consumer), 1, d.body)
	pipe.HDel(ctx, deliveriesKey(d.queue), bodyChecksum(d.body))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack: %w", err)
	}
	return nil
}

// Nack releases the message. With requeue it goes back to the queue
// tail for another consumer, unless its delivery count has crossed the
// dead-letter threshold; without requeue it dead-letters immediately.
func (d *Delivery) Nack(ctx context.Context, requeue bool) error {
	metrics.MessagesNacked.WithLabelValues(d.queue).Inc()

	pipe := d.client.rdb.TxPipeline()
	pipe.LRem(ctx, processingKey(d.queue, d.consumer), 1, d.body)

	if requeue && !deadLettered(d.count, d.client.threshold) {
		pipe.RPush(ctx, d.queue, d.body)
	} else {
		pipe.LPush(ctx, deadKey(d.queue), d.body)
		pipe.HDel(ctx, deliveriesKey(d.queue), bodyChecksum(d.body))
		metrics.MessagesDeadLettered.WithLabelValues(d.queue).Inc()
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack: %w", err)
	}
	return nil
}

// Consume blocks for up to the polling window waiting for one message,
// moving it into the consumer's processing list. One unacknowledged
// message per consumer at a time: the caller only holds one Delivery.
func (c *Client) Consume(ctx context.Context, queue, consumer string) (*Delivery, error) {
	body, err := c.rdb.BLMove(ctx, queue, processingKey(queue, consumer), "LEFT", "RIGHT", blockTimeout).Result()
	if err == redis.Nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("blmove failed: %w", err)
	}

	raw := []byte(body)
	count, err := c.rdb.HIncrBy(ctx, deliveriesKey(queue), bodyChecksum(raw), 1).Result()
	if err != nil {
		// Counting failed; deliver anyway with a conservative count.
		count = 1
	}

	return &Delivery{
		client:   c,
		queue:    queue,
		consumer: consumer,
		body:     raw,
		count:    count,
	}, nil
}

// Recover moves messages stranded in a consumer's processing list back
// onto the queue. Called once when a consumer starts, so a crashed
// predecessor's in-flight message is redelivered.
func (c *Client) Recover(ctx context.Context, queue, consumer string) (int, error) {
	key := processingKey(queue, consumer)
	bodies, err := c.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("lrange failed: %w", err)
	}
	if len(bodies) == 0 {
		return 0, nil
	}

	pipe := c.rdb.TxPipeline()
	for _, b := range bodies {
		pipe.RPush(ctx, queue, b)
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to requeue stranded messages: %w", err)
	}
	return len(bodies), nil
}

// Subscription binds a client to one queue and consumer name.
type Subscription struct {
	client   *Client
	queue    string
	consumer string
}

// Subscribe creates a subscription for a named queue. The consumer name
// scopes the processing list; each worker process uses its own.
func (c *Client) Subscribe(queue, consumer string) *Subscription {
	return &Subscription{client: c, queue: queue, consumer: consumer}
}

// Next returns the next delivery, or ErrQueueEmpty after the blocking
// window elapses.
func (s *Subscription) Next(ctx context.Context) (*Delivery, error) {
	return s.client.Consume(ctx, s.queue, s.consumer)
}

// Recover requeues messages stranded by a previous consumer instance.
func (s *Subscription) Recover(ctx context.Context) (int, error) {
	return s.client.Recover(ctx, s.queue, s.consumer)
}

// Queue returns the subscribed queue name.
func (s *Subscription) Queue() string {
	return s.queue
}

// deadLettered decides whether a message past its delivery count should
// stop being requeued. The threshold counts deliveries, so a message
// delivered `threshold` times never goes around again.
func deadLettered(count int64, threshold int) bool {
	return threshold > 0 && count >= int64(threshold)
}

// bodyChecksum keys the delivery counter. Hashing the body means even a
// malformed message that cannot be parsed is still bounded.
func bodyChecksum(body []byte) string {
	sum := sha1.Sum(body)
	return hex.EncodeToString(sum[:])
}
