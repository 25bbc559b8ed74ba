package bus

import "strings"

// Handler processes one delivered message. Handlers must not block; the
// Endpoint posts calls to a worker pool.
type Handler func(Message)

// subscription is one registered (filter, handler) pair on an Endpoint.
type subscription struct {
	exchange ExchangeType
	handler  Handler

	// DIRECT: exact topic set.
	topics map[string]struct{}

	// TOPIC: prefix match against RoutingTopic().
	prefix string

	// HEADERS: every filter key must be present and match (comma-list
	// values match if any element equals the message's value); topic, if
	// non-empty, must match exactly too.
	filter map[string]string
	topic  string
}

// matches reports whether msg should be delivered to this subscription,
// per-exchange delivery rule.
func (s subscription) matches(msg Message) bool {
	switch s.exchange {
	case Direct:
		_, ok := s.topics[msg.Topic]
		return ok
	case Topic:
		return strings.HasPrefix(msg.RoutingTopic(), s.prefix)
	case Fanout:
		return true
	case Headers:
		if s.topic != "" && s.topic != msg.Topic {
			return false
		}
		for k, want := range s.filter {
			got, ok := msg.HeaderMap[k]
			if !ok {
				return false
			}
			if !headerValueMatches(want, got) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// headerValueMatches implements the comma-list-any-match rule: want may be
// a comma-separated list, matching if any element equals got.
func headerValueMatches(want, got string) bool {
	if !strings.Contains(want, ",") {
		return want == got
	}
	for _, part := range strings.Split(want, ",") {
		if strings.TrimSpace(part) == got {
			return true
		}
	}
	return false
}
