package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Consume when no message arrived within
// the blocking window.
var ErrQueueEmpty = errors.New("queue empty")

// Standard queue names.
const (
	TaskQueue           = "task_queue"
	ResultQueue         = "result_queue"
	DialogTaskQueue     = "dialog_task_queue"
	DialogResponseQueue = "dialog_response_queue"
)

const (
	defaultDeadLetterThreshold = 3
	blockTimeout               = 5 * time.Second
)

// Config holds broker connection configuration.
type Config struct {
	URL                 string `yaml:"url"`
	Password            string `yaml:"password"`
	DeadLetterThreshold int    `yaml:"dead_letter_threshold"`
}

// Client wraps Redis operations for durable task and result queues.
// Queues are Redis lists consumed with the reliable-queue pattern: a
// blocking move into a per-consumer processing list, removed on ack.
type Client struct {
	rdb       *redis.Client
	threshold int
}

// NewClient creates a new broker client and verifies the connection.
// The connect timeout is short and failures are fatal to the caller:
// restart policy belongs to the supervisor, not to a local retry loop.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	threshold := cfg.DeadLetterThreshold
	if threshold <= 0 {
		threshold = defaultDeadLetterThreshold
	}

	return &Client{rdb: rdb, threshold: threshold}, nil
}

// Close closes the broker connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func processingKey(queue, consumer string) string {
	return fmt.Sprintf("%s:processing:%s", queue, consumer)
}

func deadKey(queue string) string {
	return fmt.Sprintf("%s:dead", queue)
}

func deliveriesKey(queue string) string {
	return fmt.Sprintf("%s:deliveries", queue)
}

// Depth returns the number of messages waiting in a queue.
func (c *Client) Depth(ctx context.Context, queue string) (int64, error) {
	n, err := c.rdb.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen failed: %w", err)
	}
	return n, nil
}

// DeadDepth returns the number of dead-lettered messages for a queue.
func (c *Client) DeadDepth(ctx context.Context, queue string) (int64, error) {
	return c.Depth(ctx, deadKey(queue))
}

// DeadPeek returns up to limit dead-lettered message bodies without
// removing them.
func (c *Client) DeadPeek(ctx context.Context, queue string, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	bodies, err := c.rdb.LRange(ctx, deadKey(queue), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}
	return bodies, nil
}

// RedriveDead moves every dead-lettered message back onto the queue and
// resets its delivery counter, giving each a fresh set of attempts.
func (c *Client) RedriveDead(ctx context.Context, queue string) (int, error) {
	bodies, err := c.rdb.LRange(ctx, deadKey(queue), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("lrange failed: %w", err)
	}
	if len(bodies) == 0 {
		return 0, nil
	}

	pipe := c.rdb.TxPipeline()
	for _, b := range bodies {
		pipe.RPush(ctx, queue, b)
		pipe.HDel(ctx, deliveriesKey(queue), bodyChecksum([]byte(b)))
	}
	pipe.Del(ctx, deadKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to redrive dead letters: %w", err)
	}
	return len(bodies), nil
}
