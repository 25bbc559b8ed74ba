package model

// OrderSummary is the per-order body nested under the stringified order id
// in the Dispatch -> VehicleClient payload. Field names are the
// literal Chinese keys the wire format uses.
type OrderSummary struct {
	OrderNo        string  `json:"订单编号"`
	OrderType      string  `json:"订单类型"`
	PickupAddress  string  `json:"取货地点"`
	DeliveryAddr   string  `json:"送货地点"`
	PublishedAt    string  `json:"发布时间"`
	Reward         float64 `json:"奖励金额"`
	Distance       int     `json:"配送距离"`
	RemainingTime  string  `json:"剩余时间"`
}

// OrderBatch is the full publish payload: a JSON object keyed by the
// stringified order id.
type OrderBatch map[string]OrderSummary

// FinalizationPayload is the order_log_task body.
type FinalizationPayload struct {
	OrderID         string  `json:"order_id"`
	UVID            int64   `json:"uv_id"`
	ResponseTimeMs  int64   `json:"response_time_ms"`
	OrderTypeCode   int     `json:"order_type_code"`
	OrderReward     float64 `json:"order_reward"`
}

// CachedOrderEntry is the per-vehicle candidate buffered in KVCache under
// key "vehicle_orders:{uv_id}", field = stringified order id.
type CachedOrderEntry struct {
	OrderID int64
	Payload OrderSummary
}

// CachedOrderTTLSeconds is the default TTL for per-vehicle candidate
// entries.
const CachedOrderTTLSeconds = 1800

// DeadLetterRecord is the hash stored at "deadletter:{msg_id}".
type DeadLetterRecord struct {
	Timestamp int64
	MsgID     string
	Data      []byte
}

// DeadLetterMaxBodyBytes caps the archived body size, per Orderdeadletter.h.
const DeadLetterMaxBodyBytes = 1024 * 1024

// DeadLetterTTLSeconds is the Redis TTL applied on dead-letter store.
const DeadLetterTTLSeconds = 86400
