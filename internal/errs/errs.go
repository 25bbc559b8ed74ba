// Package errs defines the structured error kinds the core distinguishes
// between: Transient, Semantic, Protocol and Fatal. Handlers use errors.Is
// against the sentinels below rather than matching on strings.
package errs

import "errors"

// Transient errors: the caller may retry or tolerate them.
var (
	ErrBusTimeout     = errors.New("bus: send timeout")
	ErrBusOverflow    = errors.New("bus: queue overflow")
	ErrKVUnavailable  = errors.New("kv: unavailable")
	ErrDBDeadlock     = errors.New("db: deadlock")
	ErrLockContended  = errors.New("kv: lock contended")
)

// Semantic errors: the caller recovers locally without surfacing a fault.
var (
	ErrClaimLost = errors.New("order: claim lost")
	ErrNotFound  = errors.New("order: not found")
	ErrDuplicate = errors.New("order: duplicate key")
)

// Protocol errors: reject malformed input.
var (
	ErrBadQuery   = errors.New("query: paging requires order-by")
	ErrBadPayload = errors.New("payload: not parsable")
	ErrBadConfig  = errors.New("config: invalid")
)

// Fatal errors: surfaced to the process boundary, then the process stops.
var (
	ErrEndpointBindFailed  = errors.New("bus: endpoint bind failed permanently")
	ErrDBPoolExhausted     = errors.New("db: pool exhausted at startup")
)
