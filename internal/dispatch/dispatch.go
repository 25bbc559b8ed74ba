// Package dispatch implements the Dispatch component: page-sweeping pending
// orders out of OrderStore and publishing them to endpoint E1 as HEADERS
// frames keyed on order_type_code, so every VehicleClient whose
// supported_types includes that code picks them up as claim candidates.
// Grounded on OrderDispatcher.h's publish-cycle shape, adapted from a
// cache-refresh cron that pages a fixed window of recent rows on a
// schedule.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/db/repository"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/metrics"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

// Reverser resolves a point to a human address, cached indefinitely by the
// caller. Satisfied by *geocode.Geocoder.
type Reverser interface {
	ReverseGeocode(ctx context.Context, p orb.Point) (string, error)
}

const pageSize = 100

// Dispatcher holds the one piece of state a publish cycle needs across
// invocations: which page to sweep next. It wraps around to page 1 once it
// runs past the end, so a long-running process keeps cycling through
// whatever is still pending.
type Dispatcher struct {
	store     repository.OrderStore
	geocoder  Reverser
	e1        *bus.Endpoint
	log       logger.InterfaceLogger

	mu   sync.Mutex
	page int
}

// New builds a Dispatcher publishing to e1.
func New(store repository.OrderStore, geocoder Reverser, e1 *bus.Endpoint, log logger.InterfaceLogger) *Dispatcher {
	return &Dispatcher{store: store, geocoder: geocoder, e1: e1, log: log, page: 1}
}

// RunCycle executes one page-sweep-and-publish pass, meant to be invoked by
// a cron tick. Errors from an individual order's address
// lookup do not abort the cycle; they just leave that order's address
// blank and move on, since a partial publish is strictly better than none.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.DispatchCycleSeconds.Observe(time.Since(start).Seconds()) }()

	d.mu.Lock()
	page := d.page
	d.mu.Unlock()

	params := repository.QueryAdvancedParams{
		Equals:  map[string]any{"status": model.OrderStatusPending, "is_delete": 0},
		OrderBy: "created_at DESC",
	}

	result, err := d.store.QueryOrdersPage(ctx, params, page, pageSize)
	if err != nil {
		return fmt.Errorf("dispatch: query page %d: %w", page, err)
	}

	d.advancePage(page, result.Pages)

	if len(result.Items) == 0 {
		return nil
	}

	batches := d.groupByTypeCode(ctx, result.Items)
	for typeCode, batch := range batches {
		if err := d.publishBatch(ctx, typeCode, batch); err != nil {
			d.log.Errorf("dispatch: publish type %d: %v", typeCode, err)
			continue
		}
		metrics.DispatchBatchOrders.Add(float64(len(batch)))
	}
	return nil
}

// advancePage wraps back to page 1 once it runs past the last page, or
// once the store reports there are no pages at all (nothing pending).
func (d *Dispatcher) advancePage(current, totalPages int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := current + 1
	if totalPages <= 0 || next > totalPages {
		next = 1
	}
	d.page = next
}

// groupByTypeCode buckets the page's orders by order_type_code so each
// HEADERS publish carries one homogeneous batch, mirroring how
// VehicleClient.supported_types filters on a single code per subscription.
func (d *Dispatcher) groupByTypeCode(ctx context.Context, orders []*model.Order) map[int]model.OrderBatch {
	out := make(map[int]model.OrderBatch)
	for _, o := range orders {
		batch, ok := out[o.OrderTypeCode]
		if !ok {
			batch = model.OrderBatch{}
			out[o.OrderTypeCode] = batch
		}
		batch[strconv.FormatInt(o.ID, 10)] = d.toSummary(ctx, o)
	}
	return out
}

// toSummary composes the publish payload for one order, reverse-geocoding
// pickup/delivery into human addresses. A geocoding
// failure degrades to an empty address rather than dropping the order.
func (d *Dispatcher) toSummary(ctx context.Context, o *model.Order) model.OrderSummary {
	pickup, err := d.geocoder.ReverseGeocode(ctx, o.Pickup)
	if err != nil {
		d.log.Warnf("dispatch: reverse geocode pickup for order %d: %v", o.ID, err)
	}
	delivery, err := d.geocoder.ReverseGeocode(ctx, o.Delivery)
	if err != nil {
		d.log.Warnf("dispatch: reverse geocode delivery for order %d: %v", o.ID, err)
	}

	reward, _ := o.Reward.Float64()
	return model.OrderSummary{
		OrderNo:       o.OrderNo,
		OrderType:     o.OrderType,
		PickupAddress: pickup,
		DeliveryAddr:  delivery,
		PublishedAt:   o.CreatedAt.Format("2006-01-02 15:04:05"),
		Reward:        reward,
		Distance:      o.Distance,
		RemainingTime: remainingTime(o),
	}
}

func (d *Dispatcher) publishBatch(ctx context.Context, typeCode int, batch model.OrderBatch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	msg := bus.Message{
		Topic:     "vehicle_orders",
		HeaderMap: map[string]string{"type": strconv.Itoa(typeCode), "channel": "vehicle_orders"},
		Body:      body,
	}
	if err := d.e1.Publish(msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// remainingTime formats the seconds left until expiry as "<int>秒", per
// the wire payload's "剩余时间" field.
func remainingTime(o *model.Order) string {
	remaining := int(time.Until(o.ExpireTime).Round(time.Second).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return strconv.Itoa(remaining) + "秒"
}
