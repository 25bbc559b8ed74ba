package bus

import (
	"context"

	kafka "github.com/segmentio/kafka-go"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

// loopback is an in-process writerTransport/readerTransport pair: every
// write is immediately available to read. Used by NewInMemoryEndpoint for
// tests and local development that need real Subscribe/Publish/matches
// behavior without a Kafka broker.
type loopback struct {
	ch chan kafka.Message
}

func (l *loopback) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		select {
		case l.ch <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *loopback) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-l.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (l *loopback) Close() error { return nil }

// NewInMemoryEndpoint builds an Endpoint over a loopback transport: no
// broker involved, but the full publisher queue, receiver fan-out, and
// exchange matching rules run exactly as in production.
func NewInMemoryEndpoint(name string, cfg Config, log logger.InterfaceLogger) *Endpoint {
	lb := &loopback{ch: make(chan kafka.Message, 4096)}
	return newEndpoint(name, cfg, log, lb, lb)
}
