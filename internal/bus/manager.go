package bus

import (
	"sync"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

// InstanceManager keys live Endpoints by name so one process can host many
// publishers/subscribers sharing a single underlying connection per
// endpoint, acquired idempotently. groupID is the Kafka consumer group every
// acquired endpoint's Subscriber joins: Kafka hands each message to exactly
// one member of a group, so broadcasting a message to every subscribing
// process requires each process to pass its own unique groupID here — the
// caller (cmd/vehicle, cmd/dispatcher) is responsible for deriving one, not
// sharing the raw config value across the fleet.
type InstanceManager struct {
	brokers []string
	groupID string
	cfg     Config
	log     logger.InterfaceLogger

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

func NewInstanceManager(brokers []string, groupID string, cfg Config, log logger.InterfaceLogger) *InstanceManager {
	return &InstanceManager{
		brokers:   brokers,
		groupID:   groupID,
		cfg:       cfg,
		log:       log,
		endpoints: make(map[string]*Endpoint),
	}
}

// Acquire returns the Endpoint bound to name, creating it on first call.
func (m *InstanceManager) Acquire(name string) *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ep, ok := m.endpoints[name]; ok {
		return ep
	}
	ep := NewKafkaEndpoint(m.brokers, name, m.groupID, m.cfg, m.log)
	m.endpoints[name] = ep
	return ep
}

// StopAll stops every acquired endpoint.
func (m *InstanceManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ep := range m.endpoints {
		ep.Stop()
	}
}
