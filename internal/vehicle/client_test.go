package vehicle

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

func testBusConfig() bus.Config {
	return bus.Config{PollInterval: 10 * time.Millisecond, Workers: 4, MaxQueueSize: 1000}
}

func testClientConfig() Config {
	return Config{LockTTL: 200 * time.Millisecond, CacheTTL: time.Minute, StopWindow: time.Second, IdleAfter: 1, IdleBackoff: 50 * time.Millisecond}
}

func candidateBatchMessage(topic, orderType string, orderID int64, summary model.OrderSummary) bus.Message {
	batch := model.OrderBatch{strconv.FormatInt(orderID, 10): summary}
	body, _ := json.Marshal(batch)
	return bus.Message{
		Topic:     topic,
		HeaderMap: map[string]string{"type": orderType, "channel": topic},
		Body:      body,
	}
}

// TestClaimRaceExactlyOneWinner is P1/S1: three vehicles race for the same
// order; exactly one claims it.
func TestClaimRaceExactlyOneWinner(t *testing.T) {
	store := newFakeStore()
	order := &model.Order{OrderNo: "O-1", OrderTypeCode: 701, Status: model.OrderStatusPending, Version: 1, ExpireTime: time.Now().Add(time.Hour)}
	orderID, err := store.InsertOrder(context.Background(), order)
	require.NoError(t, err)

	cache := kv.NewMemCache()
	e1 := bus.NewInMemoryEndpoint("vehicle_orders", testBusConfig(), logger.NewNop())
	e2 := bus.NewInMemoryEndpoint("order_update", testBusConfig(), logger.NewNop())
	e3 := bus.NewInMemoryEndpoint("order_log_task", testBusConfig(), logger.NewNop())
	defer e1.Stop()
	defer e2.Stop()
	defer e3.Stop()

	registry := NewRegistry()
	ids := []int64{10, 20, 30}
	clients := make([]*Client, 0, len(ids))
	for _, uvID := range ids {
		store.putVehicle(&model.UVehicle{ID: uvID, SupportedTypes: "701"})

		c := NewClient(uvID, store, cache, e1, e2, e3, registry, logger.NewNop(), testClientConfig())
		require.NoError(t, c.Start(context.Background()))
		clients = append(clients, c)
	}
	defer func() {
		for _, c := range clients {
			c.Stop()
		}
	}()

	msg := candidateBatchMessage("vehicle_orders", "701", orderID, model.OrderSummary{OrderNo: "O-1"})
	require.NoError(t, e1.Publish(msg))

	require.Eventually(t, func() bool {
		o, ok := store.getOrder(orderID)
		return ok && o.Status == model.OrderStatusClaimed
	}, 2*time.Second, 20*time.Millisecond)

	o, ok := store.getOrder(orderID)
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusClaimed, o.Status)
	assert.Equal(t, 2, o.Version)
	require.NotNil(t, o.UVID)
	assert.Contains(t, ids, *o.UVID)

	store.mu.Lock()
	grabLogCount := len(store.grabLogs)
	taskCount := len(store.deliveryTasks)
	store.mu.Unlock()
	assert.Equal(t, 1, grabLogCount)
	assert.Equal(t, 1, taskCount)
}

// TestCapabilityRoutingOnlyMatchingVehicleReceives is P4/S2: a HEADERS
// publish for one order_type_code must not reach a vehicle whose
// supported_types doesn't include it.
func TestCapabilityRoutingOnlyMatchingVehicleReceives(t *testing.T) {
	store := newFakeStore()
	store.vehicles[40] = &model.UVehicle{ID: 40, SupportedTypes: "701"}

	cache := kv.NewMemCache()
	e1 := bus.NewInMemoryEndpoint("vehicle_orders", testBusConfig(), logger.NewNop())
	e2 := bus.NewInMemoryEndpoint("order_update", testBusConfig(), logger.NewNop())
	e3 := bus.NewInMemoryEndpoint("order_log_task", testBusConfig(), logger.NewNop())
	defer e1.Stop()
	defer e2.Stop()
	defer e3.Stop()

	registry := NewRegistry()
	c := NewClient(40, store, cache, e1, e2, e3, registry, logger.NewNop(), testClientConfig())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	msg := candidateBatchMessage("vehicle_orders", "601", 1002, model.OrderSummary{OrderNo: "O-1002"})
	require.NoError(t, e1.Publish(msg))

	time.Sleep(200 * time.Millisecond)

	entries, err := cache.HGetAll(context.Background(), "vehicle_orders:40")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestFinalizationCompensatesOnDeliveryTaskFailure is P3/S3: a delivery
// task insert failure after a successful grab log must roll the order
// back, remove the orphan grab log, and republish to retry.
func TestFinalizationCompensatesOnDeliveryTaskFailure(t *testing.T) {
	store := newFakeStore()
	store.failDeliveryTask = true
	uvID := int64(50)
	store.putVehicle(&model.UVehicle{ID: uvID, SupportedTypes: "101"})
	store.putOrder(&model.Order{ID: 1003, OrderTypeCode: 101, Status: model.OrderStatusClaimed, Version: 6, UVID: &uvID, ExpireTime: time.Now().Add(time.Hour)})

	cache := kv.NewMemCache()
	e1 := bus.NewInMemoryEndpoint("vehicle_orders", testBusConfig(), logger.NewNop())
	e2 := bus.NewInMemoryEndpoint("order_update", testBusConfig(), logger.NewNop())
	e3 := bus.NewInMemoryEndpoint("order_log_task", testBusConfig(), logger.NewNop())
	defer e1.Stop()
	defer e2.Stop()
	defer e3.Stop()

	retryMsgs := make(chan bus.Message, 4)
	e2.SubscribeHeaders(map[string]string{"type": "101", "channel": "retry_orders"}, func(m bus.Message) {
		retryMsgs <- m
	}, "order_retry")

	registry := NewRegistry()
	c := NewClient(uvID, store, cache, e1, e2, e3, registry, logger.NewNop(), testClientConfig())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	payload := model.FinalizationPayload{OrderID: "1003", UVID: uvID, ResponseTimeMs: 12, OrderTypeCode: 101, OrderReward: 9.5}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, e3.Publish(bus.Message{Topic: "order_log_task", Body: body}))

	var retry bus.Message
	select {
	case retry = <-retryMsgs:
	case <-time.After(2 * time.Second):
		t.Fatal("no order_retry message received")
	}
	assert.Equal(t, "1003", string(retry.Body))

	require.Eventually(t, func() bool {
		o, ok := store.getOrder(1003)
		return ok && o.Status == model.OrderStatusPending
	}, 2*time.Second, 20*time.Millisecond)

	o, ok := store.getOrder(1003)
	require.True(t, ok)
	assert.Equal(t, 0, o.Version)
	assert.Nil(t, o.UVID)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.grabLogs)
	assert.Empty(t, store.deliveryTasks)
}
