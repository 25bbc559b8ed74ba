package bus

import "testing"

func TestHeaderStringRoundTrip(t *testing.T) {
	m := Message{HeaderMap: map[string]string{"type": "701", "channel": "vehicle_orders"}}
	s := m.HeaderString()
	if s != "channel=vehicle_orders;type=701;" {
		t.Fatalf("unexpected header string: %q", s)
	}
	parsed := ParseHeaderString(s)
	if parsed["type"] != "701" || parsed["channel"] != "vehicle_orders" {
		t.Fatalf("round-trip mismatch: %+v", parsed)
	}
}

func TestSubscriptionMatchesHeadersCommaList(t *testing.T) {
	sub := subscription{
		exchange: Headers,
		filter:   map[string]string{"type": "701,102"},
		topic:    "vehicle_orders",
	}
	match := Message{Topic: "vehicle_orders", HeaderMap: map[string]string{"type": "701"}}
	noMatchType := Message{Topic: "vehicle_orders", HeaderMap: map[string]string{"type": "601"}}
	noMatchTopic := Message{Topic: "other", HeaderMap: map[string]string{"type": "701"}}

	if !sub.matches(match) {
		t.Fatal("expected match on comma-list type")
	}
	if sub.matches(noMatchType) {
		t.Fatal("expected no match on different type")
	}
	if sub.matches(noMatchTopic) {
		t.Fatal("expected no match on different topic")
	}
}

func TestSubscriptionMatchesDirect(t *testing.T) {
	sub := subscription{exchange: Direct, topics: map[string]struct{}{"order_log_task": {}}}
	if !sub.matches(Message{Topic: "order_log_task"}) {
		t.Fatal("expected exact topic match")
	}
	if sub.matches(Message{Topic: "other"}) {
		t.Fatal("expected no match")
	}
}

func TestSubscriptionMatchesTopicPrefix(t *testing.T) {
	sub := subscription{exchange: Topic, prefix: "order_retry:"}
	msg := Message{RoutingKey: "order_retry", Topic: "1003"}
	if !sub.matches(msg) {
		t.Fatal("expected prefix match")
	}
}

func TestSubscriptionMatchesFanout(t *testing.T) {
	sub := subscription{exchange: Fanout}
	if !sub.matches(Message{Topic: "anything"}) {
		t.Fatal("fanout must match everything")
	}
}
