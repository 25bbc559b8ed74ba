// Package bus implements a transport-agnostic pub/sub fabric: four exchange
// disciplines (DIRECT, TOPIC, FANOUT, HEADERS) over a bounded, batched
// publisher and a filtering subscriber, backed by Kafka topics
// (segmentio/kafka-go), generalizing a Reader/Writer wrapping idiom.
package bus

import (
	"sort"
	"strings"
)

// ExchangeType selects how a publisher's frame is matched to subscribers.
type ExchangeType int

const (
	Direct ExchangeType = iota
	Topic
	Fanout
	Headers
)

func (e ExchangeType) String() string {
	switch e {
	case Direct:
		return "DIRECT"
	case Topic:
		return "TOPIC"
	case Fanout:
		return "FANOUT"
	case Headers:
		return "HEADERS"
	default:
		return "UNKNOWN"
	}
}

// Message is one bus frame. Topic/RoutingKey/HeaderMap are populated
// according to the publishing exchange type; unused fields are left zero.
type Message struct {
	ID         string
	TimestampMs int64
	Topic      string
	RoutingKey string
	HeaderMap  map[string]string
	Body       []byte
}

// HeaderString serializes HeaderMap as "k1=v1;k2=v2;", the HEADERS frame
// layout's first element.
func (m Message) HeaderString() string {
	if len(m.HeaderMap) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m.HeaderMap))
	for k := range m.HeaderMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m.HeaderMap[k])
		b.WriteByte(';')
	}
	return b.String()
}

// ParseHeaderString parses the "k1=v1;k2=v2;" wire format back into a map.
func ParseHeaderString(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

// RoutingTopic returns the composite "routing_key:topic" frame used by the
// TOPIC exchange.
func (m Message) RoutingTopic() string {
	return m.RoutingKey + ":" + m.Topic
}
