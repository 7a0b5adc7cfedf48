package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
	"github.com/mr1hm/go-flood-alerts/internal/observability"
	"github.com/mr1hm/go-flood-alerts/internal/worker"
)

// ErrQueueFull is returned when a station's delivery shard has no room left.
var ErrQueueFull = errors.New("notification queue full")

const defaultDeliveryTimeout = 30 * time.Second

// Target is whatever finally delivers an event, normally a *Dispatcher.
type Target interface {
	Dispatch(ctx context.Context, ev models.NotificationEvent) error
}

// Queue decouples alert evaluation from delivery. Dispatch only enqueues;
// shard workers keyed by station hand events to the target, so one
// station's events stay in order and a slow transport never holds the
// caller.
type Queue struct {
	target  Target
	pool    *worker.WorkerPool
	metrics *observability.Metrics
	timeout time.Duration
}

func NewQueue(target Target, workers, buffer int, metrics *observability.Metrics) *Queue {
	q := &Queue{
		target:  target,
		metrics: metrics,
		timeout: defaultDeliveryTimeout,
	}
	q.pool = worker.NewWorkerPool(workers, buffer, q.deliver)
	return q
}

// Start launches the shard workers. Cancelling ctx does not stop them;
// Stop drains what is queued first.
func (q *Queue) Start(ctx context.Context) {
	q.pool.Start(context.WithoutCancel(ctx))
}

func (q *Queue) Stop() {
	q.pool.Stop()
}

// Dispatch enqueues ev without blocking.
func (q *Queue) Dispatch(_ context.Context, ev models.NotificationEvent) error {
	if !q.pool.TrySubmit(ev.StationCode, ev) {
		q.metrics.NotificationsDispatched.WithLabelValues("queue", "dropped").Inc()
		return fmt.Errorf("event %s for %s: %w", ev.Type, ev.StationCode, ErrQueueFull)
	}
	return nil
}

func (q *Queue) deliver(ctx context.Context, job worker.Job) error {
	ev, ok := job.(models.NotificationEvent)
	if !ok {
		return fmt.Errorf("unexpected job type %T", job)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := q.target.Dispatch(ctx, ev); err != nil {
		return fmt.Errorf("failed to deliver %s for alert %d: %w", ev.Type, ev.AlertID, err)
	}
	return nil
}
