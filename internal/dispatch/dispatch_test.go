package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/db/repository"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

func testBusConfig() bus.Config {
	return bus.Config{PollInterval: 10 * time.Millisecond, Workers: 4, MaxQueueSize: 1000}
}

// fakeStore implements only QueryOrdersPage against a fixed page of
// in-memory orders; every other OrderStore method panics if called, since
// Dispatch never needs them.
type fakeStore struct {
	repository.OrderStore
	pages map[int]repository.Page[*model.Order]
}

func (s *fakeStore) QueryOrdersPage(ctx context.Context, p repository.QueryAdvancedParams, page, pageSize int) (repository.Page[*model.Order], error) {
	return s.pages[page], nil
}

func TestRunCycleGroupsByTypeCodeAndPublishes(t *testing.T) {
	store := &fakeStore{pages: map[int]repository.Page[*model.Order]{
		1: {
			Items: []*model.Order{
				{ID: 1, OrderNo: "O-1", OrderTypeCode: 701, ExpireTime: time.Now().Add(time.Hour)},
				{ID: 2, OrderNo: "O-2", OrderTypeCode: 701, ExpireTime: time.Now().Add(time.Hour)},
				{ID: 3, OrderNo: "O-3", OrderTypeCode: 601, ExpireTime: time.Now().Add(time.Hour)},
			},
			Total: 3,
			Pages: 1,
		},
	}}

	e1 := bus.NewInMemoryEndpoint("vehicle_orders", testBusConfig(), logger.NewNop())
	defer e1.Stop()

	received := make(chan bus.Message, 4)
	e1.SubscribeHeaders(map[string]string{"type": "701", "channel": "vehicle_orders"}, func(m bus.Message) {
		received <- m
	}, "vehicle_orders")

	d := New(store, fakeReverser{}, e1, logger.NewNop())
	require.NoError(t, d.RunCycle(context.Background()))

	select {
	case msg := <-received:
		var batch model.OrderBatch
		require.NoError(t, json.Unmarshal(msg.Body, &batch))
		assert.Len(t, batch, 2)
		_, has1 := batch["1"]
		_, has2 := batch["2"]
		assert.True(t, has1)
		assert.True(t, has2)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received for type 701")
	}

	assert.Equal(t, 1, d.page)
}

func TestRunCycleAdvancesAndWrapsPage(t *testing.T) {
	store := &fakeStore{pages: map[int]repository.Page[*model.Order]{
		1: {Items: []*model.Order{{ID: 1, OrderTypeCode: 701, ExpireTime: time.Now().Add(time.Hour)}}, Pages: 2},
		2: {Items: nil, Pages: 2},
	}}
	e1 := bus.NewInMemoryEndpoint("vehicle_orders", testBusConfig(), logger.NewNop())
	defer e1.Stop()

	d := New(store, fakeReverser{}, e1, logger.NewNop())
	require.NoError(t, d.RunCycle(context.Background()))
	assert.Equal(t, 2, d.page)

	require.NoError(t, d.RunCycle(context.Background()))
	assert.Equal(t, 1, d.page, "should wrap back to page 1 after the last page")
}

type fakeReverser struct{}

func (fakeReverser) ReverseGeocode(ctx context.Context, p orb.Point) (string, error) {
	return "somewhere", nil
}
