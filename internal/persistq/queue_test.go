package persistq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sales/internal/order"
	"github.com/noah-isme/backend-sales/internal/persistq"
	"github.com/noah-isme/backend-sales/internal/pricing"
)

type fakeStore struct {
	orderID string
	payload order.UpdatePayload
	err     error
}

func (f *fakeStore) PersistOrder(_ context.Context, orderID string, payload order.UpdatePayload) error {
	f.orderID = orderID
	f.payload = payload
	return f.err
}

func TestNewPersistTaskCarriesSnapshot(t *testing.T) {
	update := order.UpdatePayload{
		Products:    []pricing.LineItem{{ID: "p1", Rate: 100, Qty: 2, Stock: 5}},
		TotalGST:    21.6,
		TotalAmount: 142,
	}
	task, err := persistq.NewPersistTask("ord-1", update)
	require.NoError(t, err)
	require.Equal(t, persistq.TypeOrderPersist, task.Type())

	var decoded struct {
		OrderID string              `json:"order_id"`
		Update  order.UpdatePayload `json:"update"`
	}
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "ord-1", decoded.OrderID)
	require.Equal(t, update, decoded.Update)
}

func TestWorkerReplaysUpdate(t *testing.T) {
	store := &fakeStore{}
	worker := persistq.Worker{Store: store, Logger: zerolog.Nop()}

	update := order.UpdatePayload{TotalGST: 10.8, TotalAmount: 125}
	task, err := persistq.NewPersistTask("ord-9", update)
	require.NoError(t, err)

	require.NoError(t, worker.ProcessTask(context.Background(), task))
	require.Equal(t, "ord-9", store.orderID)
	require.Equal(t, update.TotalAmount, store.payload.TotalAmount)
}

func TestWorkerPropagatesBackendError(t *testing.T) {
	store := &fakeStore{err: errors.New("backend down")}
	worker := persistq.Worker{Store: store, Logger: zerolog.Nop()}

	task, err := persistq.NewPersistTask("ord-9", order.UpdatePayload{})
	require.NoError(t, err)

	err = worker.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	worker := persistq.Worker{Store: &fakeStore{}, Logger: zerolog.Nop()}
	task := asynq.NewTask(persistq.TypeOrderPersist, []byte("{not json"))

	err := worker.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
