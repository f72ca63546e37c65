package persistq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sales/internal/obs"
	"github.com/noah-isme/backend-sales/internal/order"
)

// TypeOrderPersist identifies order persistence retry tasks.
const TypeOrderPersist = "order:persist"

type persistPayload struct {
	OrderID string              `json:"order_id"`
	Update  order.UpdatePayload `json:"update"`
}

// NewPersistTask builds an asynq task carrying a failed order update.
// The task id pins one pending retry per order so rapid successive edits
// collapse to the latest snapshot.
func NewPersistTask(orderID string, update order.UpdatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(persistPayload{OrderID: orderID, Update: update})
	if err != nil {
		return nil, fmt.Errorf("encode persist task: %w", err)
	}
	return asynq.NewTask(TypeOrderPersist, payload, asynq.TaskID("persist:"+orderID)), nil
}

// Enqueuer hands failed persists to the background queue.
type Enqueuer struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	Queue     string
}

func (e Enqueuer) queueName() string {
	if e.Queue == "" {
		return "default"
	}
	return e.Queue
}

// EnqueuePersist schedules a background retry of the given order update.
// A retry already pending for the same order is replaced, since the newer
// snapshot supersedes the old one.
func (e Enqueuer) EnqueuePersist(ctx context.Context, orderID string, update order.UpdatePayload) error {
	if e.Client == nil {
		return fmt.Errorf("persist queue not configured")
	}
	task, err := NewPersistTask(orderID, update)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(10), asynq.Queue(e.queueName())}
	_, err = e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) && e.Inspector != nil {
		if delErr := e.Inspector.DeleteTask(e.queueName(), "persist:"+orderID); delErr != nil {
			return fmt.Errorf("replace pending persist retry: %w", delErr)
		}
		_, err = e.Client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return fmt.Errorf("enqueue persist retry: %w", err)
	}
	if obs.PersistRetryEnqueued != nil {
		obs.PersistRetryEnqueued.Inc()
	}
	return nil
}

// Worker replays persisted order updates against the backend.
type Worker struct {
	Store  order.Persister
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler for order persist retries.
func (w Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p persistPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		w.Logger.Error().Err(err).Msg("malformed persist task")
		return fmt.Errorf("decode persist task: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.Store.PersistOrder(ctx, p.OrderID, p.Update); err != nil {
		w.Logger.Warn().Err(err).Str("order_id", p.OrderID).Msg("persist retry failed")
		return err
	}
	w.Logger.Info().Str("order_id", p.OrderID).Msg("persist retry succeeded")
	return nil
}
