// Package vehicle implements one logical actor per vehicle id: subscribes
// to candidate orders filtered by capability, runs the optimistic claim
// loop, and finalizes successful claims with compensating rollback on
// partial failure.
package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/db/repository"
	"github.com/nopeoplecar/uvdispatch/internal/errs"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/metrics"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

// Config bounds one Client's claim/backoff timing.
type Config struct {
	LockTTL     time.Duration
	CacheTTL    time.Duration
	StopWindow  time.Duration
	IdleAfter   int
	IdleBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = model.CachedOrderTTLSeconds * time.Second
	}
	if c.StopWindow <= 0 {
		c.StopWindow = 3 * time.Second
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 5
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = 5 * time.Second
	}
	return c
}

// Client is one vehicle's dispatch actor. It owns no persistent state; its
// candidate cache lives in the shared KVCache, keyed by its own vehicle id.
type Client struct {
	uvID           int64
	supportedTypes string

	store    repository.OrderStore
	cache    kv.Cache
	e1       *bus.Endpoint
	e2       *bus.Endpoint
	e3       *bus.Endpoint
	registry *Registry
	log      logger.InterfaceLogger
	cfg      Config

	state  stateBox
	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient constructs a Client in the Created state. Start begins message
// delivery and the claim loop.
func NewClient(uvID int64, store repository.OrderStore, cache kv.Cache, e1, e2, e3 *bus.Endpoint, registry *Registry, log logger.InterfaceLogger, cfg Config) *Client {
	return &Client{
		uvID:     uvID,
		store:    store,
		cache:    cache,
		e1:       e1,
		e2:       e2,
		e3:       e3,
		registry: registry,
		log:      log,
		cfg:      cfg.withDefaults(),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (c *Client) candidateKey() string {
	return fmt.Sprintf("vehicle_orders:%d", c.uvID)
}

func lockKey(orderID int64) string {
	return fmt.Sprintf("order_lock:%d", orderID)
}

// Start resolves the vehicle's supported_types, wires its subscriptions,
// registers it, and launches the claim loop.
func (c *Client) Start(ctx context.Context) error {
	v, err := c.store.QueryVehicleByID(ctx, c.uvID)
	if err != nil {
		return fmt.Errorf("vehicle[%d]: resolve supported_types: %w", c.uvID, err)
	}
	c.supportedTypes = v.SupportedTypes
	c.state.store(Started)

	c.e3.Subscribe([]string{"order_log_task"}, c.handleFinalization, bus.Direct)
	c.e2.SubscribeHeaders(map[string]string{"type": c.supportedTypes, "channel": "retry_orders"}, c.handleCandidate, "order_retry")
	c.e2.SubscribeHeaders(map[string]string{"type": c.supportedTypes, "channel": "update_orders"}, c.handleOrderUpdate, "order_update")
	c.e1.SubscribeHeaders(map[string]string{"type": c.supportedTypes, "channel": "vehicle_orders"}, c.handleCandidate, "vehicle_orders")

	c.registry.Register(c.uvID, c)
	c.state.store(Running)

	c.wg.Add(1)
	go c.claimLoop()
	return nil
}

// wake is a one-shot, non-blocking notification from a candidate handler
// to the claim loop's idle wait.
func (c *Client) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// handleCandidate handles both the dispatch feed (E1, vehicle_orders) and
// the retry feed (E2, order_retry). Only a body that decodes as an
// OrderBatch keyed by stringified order id is cached. An order_retry
// message, whose body is the bare order id (see compensate), does not
// decode as one; it is logged as a bad payload and nothing is cached.
func (c *Client) handleCandidate(msg bus.Message) {
	if !c.state.deliverable() {
		return
	}
	var batch model.OrderBatch
	if err := json.Unmarshal(msg.Body, &batch); err != nil {
		c.log.Warnf("vehicle[%d]: bad candidate payload: %v", c.uvID, err)
		return
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := c.candidateKey()
	for orderIDStr, summary := range batch {
		data, err := json.Marshal(summary)
		if err != nil {
			continue
		}
		if err := c.cache.HSet(ctx, key, orderIDStr, string(data)); err != nil {
			c.log.Warnf("vehicle[%d]: cache candidate %s failed: %v", c.uvID, orderIDStr, err)
		}
	}
	_ = c.cache.Expire(ctx, key, c.cfg.CacheTTL)
	c.wake()
}

// handleOrderUpdate evicts a now-claimed order from the local candidate
// cache. Other status codes require no action here.
func (c *Client) handleOrderUpdate(msg bus.Message) {
	if !c.state.deliverable() {
		return
	}
	orderIDStr := string(msg.Body)
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	order, err := c.store.QueryOrderByID(ctx, orderID)
	if err != nil {
		return
	}
	if order.Status == model.OrderStatusClaimed {
		_ = c.cache.HDel(ctx, c.candidateKey(), orderIDStr)
	}
}

// handleFinalization is subscribed by every Client, but only the instance
// whose uv_id matches the payload persists: every subscriber runs, and the
// mismatched ones just no-op.
func (c *Client) handleFinalization(msg bus.Message) {
	var payload model.FinalizationPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.log.Warnf("vehicle[%d]: bad finalization payload: %v", c.uvID, err)
		return
	}
	if payload.UVID != c.uvID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.finalize(ctx, payload)
}

// finalize performs the grab-log + delivery-task insert pair and, on
// partial failure, compensates
func (c *Client) finalize(ctx context.Context, payload model.FinalizationPayload) {
	orderID, err := strconv.ParseInt(payload.OrderID, 10, 64)
	if err != nil {
		c.log.Errorf("vehicle[%d]: bad order id in finalization payload: %v", c.uvID, err)
		return
	}

	reward := decimal.NewFromFloat(payload.OrderReward)
	logID, err := c.store.InsertGrabLog(ctx, &model.GrabLog{
		OrderID: orderID, UVID: payload.UVID, Status: 1, Result: 1,
		BidAmount: reward, ResponseTime: int(payload.ResponseTimeMs),
	})
	if err != nil {
		c.log.Warnf("vehicle[%d]: grab log insert failed for order %d, compensating: %v", c.uvID, orderID, err)
		c.compensate(ctx, orderID, 0, payload.OrderTypeCode)
		return
	}

	now := time.Now()
	_, err = c.store.InsertDeliveryTask(ctx, &model.DeliveryTask{
		OrderID: orderID, UVID: payload.UVID, Status: model.DeliveryTaskStatusStarted, StartTime: now,
	})
	if err != nil {
		c.log.Warnf("vehicle[%d]: delivery task insert failed for order %d, compensating: %v", c.uvID, orderID, err)
		c.compensate(ctx, orderID, logID, payload.OrderTypeCode)
		return
	}
}

// compensate rolls an order back to status=0/version=0/uv_id=NULL, removes
// the orphan grab-log row if one was written, and republishes the order
// for retry. Preserves invariant I2 under at-least-once messaging.
func (c *Client) compensate(ctx context.Context, orderID, grabLogID int64, orderTypeCode int) {
	metrics.FinalizationCompensationsTotal.WithLabelValues(strconv.FormatInt(c.uvID, 10)).Inc()
	if _, err := c.store.ExecUpdate(ctx,
		`UPDATE xc_uv_order SET status=0, version=0, uv_id=NULL WHERE order_id=$1 AND status=1`, orderID,
	); err != nil {
		c.log.Errorf("vehicle[%d]: compensation rollback failed for order %d: %v", c.uvID, orderID, err)
	}
	if grabLogID != 0 {
		if err := c.store.RemoveGrabLog(ctx, grabLogID); err != nil {
			c.log.Errorf("vehicle[%d]: failed to remove orphan grab log %d: %v", c.uvID, grabLogID, err)
		}
	}

	msg := bus.Message{
		ID:          uuid.NewString(),
		TimestampMs: time.Now().UnixMilli(),
		Topic:       "order_retry",
		HeaderMap:   map[string]string{"type": strconv.Itoa(orderTypeCode), "channel": "retry_orders"},
		Body:        []byte(strconv.FormatInt(orderID, 10)),
	}
	if err := c.e2.Publish(msg); err != nil {
		c.log.Warnf("vehicle[%d]: publish order_retry failed for order %d: %v", c.uvID, orderID, err)
	}
}

// claimLoop is the idle-backoff-driven claim cycle.
func (c *Client) claimLoop() {
	defer c.wg.Done()
	idle := 0
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		entries, err := c.cache.HGetAll(hctx, c.candidateKey())
		cancel()
		if err != nil {
			c.log.Warnf("vehicle[%d]: candidate cache read failed: %v", c.uvID, err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if len(entries) == 0 {
			idle++
			if idle >= c.cfg.IdleAfter {
				c.state.store(Idle)
				select {
				case <-c.wakeCh:
				case <-time.After(c.cfg.IdleBackoff):
				case <-c.stopCh:
					return
				}
				c.state.store(Running)
				idle = 0
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		idle = 0
		for orderIDStr := range entries {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.attemptClaim(orderIDStr)
		}
	}
}

// attemptClaim runs one order through the lock-then-CAS claim protocol:
// lock, re-read, CAS update, publish on success, unlock.
func (c *Client) attemptClaim(orderIDStr string) {
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LockTTL+time.Second)
	defer cancel()

	lock, ok, err := kv.TryLock(ctx, c.cache, lockKey(orderID), c.cfg.LockTTL)
	if err != nil {
		c.log.Warnf("vehicle[%d]: lock attempt failed for order %d: %v", c.uvID, orderID, err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			c.log.Warnf("vehicle[%d]: unlock failed for order %d: %v", c.uvID, orderID, err)
		}
	}()

	order, err := c.store.QueryOrderByID(ctx, orderID)
	if err != nil {
		_ = c.cache.HDel(ctx, c.candidateKey(), orderIDStr)
		return
	}
	if order.Status != model.OrderStatusPending {
		_ = c.cache.HDel(ctx, c.candidateKey(), orderIDStr)
		return
	}

	tStart := time.Now()
	affected, err := c.store.ExecUpdate(ctx,
		`UPDATE xc_uv_order SET status=1, uv_id=$1, version=$2, updated_at=$3 WHERE order_id=$4 AND version=$5 AND is_delete=0`,
		c.uvID, order.Version+1, tStart, orderID, order.Version,
	)
	if err != nil {
		c.log.Warnf("vehicle[%d]: claim update failed for order %d: %v", c.uvID, orderID, err)
		return
	}
	if affected == 0 {
		c.log.Infof("vehicle[%d]: %v for order %d", c.uvID, errs.ErrClaimLost, orderID)
		metrics.ClaimsLostTotal.WithLabelValues(strconv.FormatInt(c.uvID, 10)).Inc()
		return
	}
	metrics.ClaimsWonTotal.WithLabelValues(strconv.FormatInt(c.uvID, 10)).Inc()

	_ = c.cache.HDel(ctx, c.candidateKey(), orderIDStr)
	responseTimeMs := time.Since(tStart).Milliseconds()

	c.publishOrderUpdate(orderID, order.OrderTypeCode)
	c.publishFinalizationTask(orderID, order.OrderTypeCode, responseTimeMs, order.Reward)
}

func (c *Client) publishOrderUpdate(orderID int64, orderTypeCode int) {
	msg := bus.Message{
		ID:          uuid.NewString(),
		TimestampMs: time.Now().UnixMilli(),
		Topic:       "order_update",
		HeaderMap:   map[string]string{"type": strconv.Itoa(orderTypeCode), "channel": "update_orders"},
		Body:        []byte(strconv.FormatInt(orderID, 10)),
	}
	if err := c.e2.Publish(msg); err != nil {
		c.log.Warnf("vehicle[%d]: publish order_update failed for order %d: %v", c.uvID, orderID, err)
	}
}

func (c *Client) publishFinalizationTask(orderID int64, orderTypeCode int, responseTimeMs int64, reward decimal.Decimal) {
	rewardF, _ := reward.Float64()
	payload := model.FinalizationPayload{
		OrderID:        strconv.FormatInt(orderID, 10),
		UVID:           c.uvID,
		ResponseTimeMs: responseTimeMs,
		OrderTypeCode:  orderTypeCode,
		OrderReward:    rewardF,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorf("vehicle[%d]: marshal finalization payload failed: %v", c.uvID, err)
		return
	}
	msg := bus.Message{ID: uuid.NewString(), TimestampMs: time.Now().UnixMilli(), Topic: "order_log_task", Body: body}
	if err := c.e3.Publish(msg); err != nil {
		c.log.Warnf("vehicle[%d]: publish order_log_task failed for order %d: %v", c.uvID, orderID, err)
	}
}

// Stop signals the claim loop and message handlers to wind down, drops the
// candidate cache key, and joins with a bounded shutdown window before
// detaching.
func (c *Client) Stop() {
	c.state.store(Stopping)
	close(c.stopCh)
	c.registry.Unregister(c.uvID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = c.cache.Del(ctx, c.candidateKey())
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.StopWindow):
		c.log.Warnf("vehicle[%d]: stop window elapsed, detaching", c.uvID)
	}
	c.state.store(Terminated)
}
