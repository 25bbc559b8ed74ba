package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

// fakeTransport is an in-process stand-in for a Kafka topic: WriteMessages
// appends to a slice that ReadMessage drains, so Endpoint's drain and
// receive loops can be exercised without a live broker.
type fakeTransport struct {
	mu     sync.Mutex
	queue  []kafka.Message
	closed bool
}

func (f *fakeTransport) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, msgs...)
	return nil
}

func (f *fakeTransport) ReadMessage(ctx context.Context) (kafka.Message, error) {
	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			m := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return m, nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, errors.New("no message")
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestEndpoint(t *testing.T) (*Endpoint, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	cfg := Config{MaxQueueSize: 100, SendTimeoutMs: 50, BatchSize: 10, PollInterval: 5 * time.Millisecond, Workers: 2}
	ep := newEndpoint("test", cfg, logger.NewNop(), tr, tr)
	t.Cleanup(ep.Stop)
	return ep, tr
}

// TestEndpointHeadersDelivery covers P4: a HEADERS publish with
// {type:T, channel:"vehicle_orders"} is delivered only to subscribers whose
// filter accepts T.
func TestEndpointHeadersDelivery(t *testing.T) {
	ep, _ := newTestEndpoint(t)

	var got []string
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	ep.SubscribeHeaders(map[string]string{"type": "701", "channel": "vehicle_orders"}, func(m Message) {
		mu.Lock()
		got = append(got, m.Topic)
		mu.Unlock()
		done <- struct{}{}
	}, "vehicle_orders")

	require.NoError(t, ep.Publish(Message{
		Topic:     "vehicle_orders",
		HeaderMap: map[string]string{"type": "701", "channel": "vehicle_orders"},
		Body:      []byte(`{"1001":{}}`),
	}))
	require.NoError(t, ep.Publish(Message{
		Topic:     "vehicle_orders",
		HeaderMap: map[string]string{"type": "601", "channel": "vehicle_orders"},
		Body:      []byte(`{"1002":{}}`),
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for matching delivery")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"vehicle_orders"}, got)
}

func TestEndpointDirectDelivery(t *testing.T) {
	ep, _ := newTestEndpoint(t)
	done := make(chan Message, 1)
	ep.Subscribe([]string{"order_log_task"}, func(m Message) { done <- m }, Direct)

	require.NoError(t, ep.Publish(Message{Topic: "order_log_task", Body: []byte("x")}))

	select {
	case m := <-done:
		require.Equal(t, "order_log_task", m.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
