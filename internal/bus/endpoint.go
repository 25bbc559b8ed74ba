package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/metrics"
)

// writerTransport and readerTransport narrow kafka.Writer/kafka.Reader down
// to what Endpoint needs, so tests can substitute in-memory fakes without a
// live broker.
type writerTransport interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type readerTransport interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config bounds one Endpoint's publisher/subscriber behavior
type Config struct {
	MaxQueueSize  int
	SendTimeoutMs int
	BatchSize     int
	PollInterval  time.Duration
	Workers       int
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10000
	}
	if c.SendTimeoutMs <= 0 {
		c.SendTimeoutMs = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	return c
}

// Endpoint is a named bus address: a bounded publisher queue draining to a
// Kafka topic, and a single receiver goroutine fanning delivered messages
// out to every matching subscription via a worker pool.
type Endpoint struct {
	name   string
	cfg    Config
	log    logger.InterfaceLogger
	writer writerTransport
	reader readerTransport

	queue *boundedQueue
	tasks chan func()

	mu   sync.RWMutex
	subs []*subscription

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// newEndpoint wires an Endpoint over the given transports. Production
// callers use NewKafkaEndpoint; tests construct this directly with fakes.
func newEndpoint(name string, cfg Config, log logger.InterfaceLogger, w writerTransport, r readerTransport) *Endpoint {
	cfg = cfg.withDefaults()
	e := &Endpoint{
		name:   name,
		cfg:    cfg,
		log:    log,
		writer: w,
		reader: r,
		queue:  newBoundedQueue(cfg.MaxQueueSize, log),
		tasks:  make(chan func(), cfg.Workers*4),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.wg.Add(1)
	go e.drainLoop()
	if r != nil {
		e.wg.Add(1)
		go e.receiveLoop()
	}
	return e
}

// NewKafkaEndpoint builds an Endpoint backed by a real Kafka topic, wiring
// a Reader/Writer pair for one topic.
func NewKafkaEndpoint(brokers []string, topic, groupID string, cfg Config, log logger.InterfaceLogger) *Endpoint {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return newEndpoint(topic, cfg, log, w, r)
}

func (e *Endpoint) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case fn := <-e.tasks:
			fn()
		}
	}
}

// Publish enqueues msg. See boundedQueue.push for overflow semantics.
func (e *Endpoint) Publish(msg Message) error {
	err := e.queue.push(msg)
	if err != nil {
		metrics.BusOverflowTotal.WithLabelValues(e.name).Inc()
		return err
	}
	metrics.BusQueueDepth.WithLabelValues(e.name).Set(float64(e.queue.len()))
	return nil
}

// PublishBatch enqueues msgs in order with one Publish call each, so every
// message takes the queue lock on its own and publishes from other
// goroutines can interleave with the batch. It stops at the first failure,
// leaving the messages before it enqueued; it is not an atomic broker batch.
func (e *Endpoint) PublishBatch(msgs []Message) error {
	for _, m := range msgs {
		if err := e.Publish(m); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a DIRECT, TOPIC, or FANOUT handler.
func (e *Endpoint) Subscribe(topics []string, handler Handler, exchange ExchangeType) {
	sub := &subscription{exchange: exchange, handler: handler}
	switch exchange {
	case Direct:
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	case Topic:
		if len(topics) > 0 {
			sub.prefix = topics[0]
		}
	}
	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()
}

// SubscribeHeaders registers a HEADERS handler.
func (e *Endpoint) SubscribeHeaders(filter map[string]string, handler Handler, topic string) {
	sub := &subscription{exchange: Headers, handler: handler, filter: filter, topic: topic}
	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()
}

// drainLoop pops batches off the queue and writes each batch to the
// transport in one call bounded by the send timeout; a batch whose write
// fails is dropped as a whole.
func (e *Endpoint) drainLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		batch := e.queue.drain(e.cfg.BatchSize)
		if len(batch) == 0 {
			continue
		}
		metrics.BusQueueDepth.WithLabelValues(e.name).Set(float64(e.queue.len()))

		kmsgs := make([]kafka.Message, 0, len(batch))
		for _, m := range batch {
			kmsgs = append(kmsgs, toKafkaMessage(m))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.SendTimeoutMs)*time.Millisecond)
		err := e.writer.WriteMessages(ctx, kmsgs...)
		cancel()
		if err != nil {
			e.log.Warnf("bus[%s]: send failed, dropping %d messages: %v", e.name, len(batch), err)
			metrics.BusSendTimeoutTotal.WithLabelValues(e.name).Add(float64(len(batch)))
		}
	}
}

// receiveLoop polls the transport and dispatches each delivered message to
// every matching subscription on the worker pool.
func (e *Endpoint) receiveLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PollInterval)
		km, err := e.reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			continue
		}

		msg := fromKafkaMessage(km)

		e.mu.RLock()
		subs := make([]*subscription, len(e.subs))
		copy(subs, e.subs)
		e.mu.RUnlock()

		for _, s := range subs {
			if !s.matches(msg) {
				continue
			}
			h := s.handler
			m := msg
			select {
			case e.tasks <- func() { h(m) }:
			case <-e.stopCh:
				return
			}
		}
	}
}

// Stop signals the receive/drain loops and worker pool to exit. In-flight
// handler calls are not awaited beyond their own completion.
func (e *Endpoint) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.queue.close()
		if e.reader != nil {
			_ = e.reader.Close()
		}
		_ = e.writer.Close()
	})
	e.wg.Wait()
}

func toKafkaMessage(m Message) kafka.Message {
	body, _ := json.Marshal(m)
	headers := []kafka.Header{
		{Key: "x-id", Value: []byte(m.ID)},
		{Key: "x-topic", Value: []byte(m.Topic)},
		{Key: "x-routing-key", Value: []byte(m.RoutingKey)},
		{Key: "x-headers", Value: []byte(m.HeaderString())},
	}
	return kafka.Message{
		Key:     []byte(m.Topic),
		Value:   body,
		Headers: headers,
		Time:    time.UnixMilli(m.TimestampMs),
	}
}

func fromKafkaMessage(km kafka.Message) Message {
	var m Message
	if err := json.Unmarshal(km.Value, &m); err == nil && m.Topic != "" {
		return m
	}
	// Fall back to reconstructing from headers for frames not produced by
	// this package (e.g. third-party producers).
	m = Message{Body: km.Value, TimestampMs: km.Time.UnixMilli()}
	for _, h := range km.Headers {
		switch h.Key {
		case "x-id":
			m.ID = string(h.Value)
		case "x-topic":
			m.Topic = string(h.Value)
		case "x-routing-key":
			m.RoutingKey = string(h.Value)
		case "x-headers":
			m.HeaderMap = ParseHeaderString(string(h.Value))
		}
	}
	return m
}
