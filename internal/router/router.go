package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/infra/notify"
	"github.com/vietddude/foreman/internal/metrics"
	"github.com/vietddude/foreman/internal/resilience"
)

// Delivery is one in-flight result message.
type Delivery interface {
	Body() []byte
	Ack(ctx context.Context) error
	Nack(ctx context.Context, requeue bool) error
}

// Source yields result deliveries, one at a time.
type Source interface {
	Next(ctx context.Context) (Delivery, error)
	Recover(ctx context.Context) (int, error)
}

// brokerSource adapts a broker subscription to the Source interface.
type brokerSource struct {
	sub *broker.Subscription
}

// NewSource wraps a broker subscription for the router.
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

// SinkClassifier builds the classifier for the notification executor:
// sink API rejections are deterministic, so resending cannot fix them
// and they are never retried. Everything else follows the default table.
func SinkClassifier() *resilience.Classifier {
	return resilience.NewClassifier(resilience.Rule{
		Kind:      resilience.ErrorKind("sink_rejected"),
		Retryable: false,
		Match: func(err error) bool {
			var apiErr *notify.APIError
			return errors.As(err, &apiErr)
		},
	})
}

// Config holds router settings.
type Config struct {
	SummaryInterval time.Duration
	PreviewLimit    int
}

// Router consumes completed task results, dispatches per-result
// notifications, and emits periodic aggregate summaries. Notification
// failures are isolated from the task pipeline: the result is already
// acknowledged when dispatch happens, so a sink outage can never replay
// a task.
type Router struct {
	cfg      Config
	source   Source
	sink     notify.Sink
	executor *resilience.Executor
	window   *window
	log      *slog.Logger
}

// New creates a result router. The executor bounds notification
// retries; sink API errors are surfaced but never fatal.
func New(cfg Config, source Source, sink notify.Sink, executor *resilience.Executor, log *slog.Logger) *Router {
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = time.Hour
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 400
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		executor: executor,
		window:   newWindow(),
		log:      log,
	}
}

// Run drives the router until the context is cancelled.
func (r *Router) Run(ctx context.Context) error {
	if n, err := r.source.Recover(ctx); err != nil {
		return err
	} else if n > 0 {
		r.log.Info("requeued stranded results", "count", n)
	}

	ticker := time.NewTicker(r.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("result router stopping")
			return nil
		case <-ticker.C:
			r.emitSummary(ctx)
		default:
		}

		delivery, err := r.source.Next(ctx)
		if errors.Is(err, broker.ErrQueueEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("result consume failed", "error", err)
			continue
		}

		r.onResult(ctx, delivery)
	}
}

// onResult handles one result delivery end to end.
func (r *Router) onResult(ctx context.Context, delivery Delivery) {
	finish := context.WithoutCancel(ctx)

	result, err := domain.DecodeResult(delivery.Body())
	if err != nil {
		r.log.Warn("malformed result message, requeueing", "error", err)
		if nerr := delivery.Nack(finish, true); nerr != nil {
			r.log.Error("nack failed", "error", nerr)
		}
		return
	}

	// Acknowledge before dispatch: notification trouble must never send
	// the result back through the queue.
	if err := delivery.Ack(finish); err != nil {
		r.log.Error("ack failed", "task_id", result.TaskID, "error", err)
	}

	r.window.record(result)
	r.dispatch(ctx, result)
}

// dispatch formats and sends the per-result notification with bounded
// retries. Failures are logged and counted, nothing more.
func (r *Router) dispatch(ctx context.Context, result *domain.Result) {
	text := formatResult(result, r.cfg.PreviewLimit)

	res := r.executor.Execute(ctx, "notify:"+result.TaskID, func(ctx context.Context) (any, error) {
		return nil, r.sink.Send(ctx, text)
	})

	if res.Status == resilience.StatusSuccess {
		metrics.NotificationsSent.WithLabelValues("ok").Inc()
		return
	}

	var apiErr *notify.APIError
	if errors.As(res.Err, &apiErr) {
		metrics.NotificationsSent.WithLabelValues(apiErr.Code).Inc()
		r.log.Error("notification rejected by sink",
			"task_id", result.TaskID,
			"code", apiErr.Code)
		return
	}

	metrics.NotificationsSent.WithLabelValues("error").Inc()
	r.log.Error("notification dispatch failed",
		"task_id", result.TaskID,
		"error", res.Err)
}

// emitSummary sends the periodic aggregate report with the same bounded
// retries as per-result dispatch. The window resets only on a successful
// send; a failed dispatch folds the snapshot back in so the aggregate
// carries over to the next tick instead of being dropped.
func (r *Router) emitSummary(ctx context.Context) {
	stats := r.window.snapshotAndReset()
	if stats.Count == 0 {
		return
	}

	text := formatSummary(stats)
	res := r.executor.Execute(ctx, "notify:summary", func(ctx context.Context) (any, error) {
		return nil, r.sink.Send(ctx, text)
	})
	if res.Status != resilience.StatusSuccess {
		r.window.restore(stats)
		r.log.Error("summary dispatch failed", "error", res.Err)
		return
	}
	r.log.Info("summary report sent",
		"tasks", stats.Count,
		"success_rate", stats.SuccessRate(),
		"avg_duration_ms", stats.AvgDurationMillis())
}
