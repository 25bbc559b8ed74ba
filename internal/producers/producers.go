// Package producers implements cron-driven synthetic Order and
// UVehicle factories that exercise the rest of the core without being part
// of its correctness surface. Grounded on OrderCreatorScheduler.h's
// createRandomOrder/batchCreateOrders and createRandomUVehicle.h's
// createRandomUVehicle/batchCreateUVehicles, including their order-number
// scheme, fixed candidate-location list, and geocode-cache round trip.
package producers

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

// candidateLocations is the original's fixed six-city sample set
// (createRandomOrder / createRandomUVehicle).
var candidateLocations = []string{
	"北京市朝阳区", "上海市浦东新区", "广州市天河区",
	"深圳市南山区", "成都市武侯区", "杭州市余杭区",
}

var vehicleClasses = []string{"四轮车", "无人机", "机器人"}

// Geocoder resolves a human address to a point, caching the result itself.
// Satisfied by *geocode.Geocoder.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (orb.Point, error)
}

// OrderInserter is the narrow slice of OrderStore Producers needs for
// orders, mirroring dispatch.Reverser's narrowing of its own dependency.
type OrderInserter interface {
	BulkInsertOrders(ctx context.Context, os []*model.Order) ([]int64, error)
}

// VehicleInserter is the narrow slice of OrderStore Producers needs for
// vehicles.
type VehicleInserter interface {
	BulkInsertVehicles(ctx context.Context, vs []*model.UVehicle) ([]int64, error)
}

// Producers generates synthetic load for the dispatch pipeline on a cron.
// It owns no state beyond its collaborators; batch sizing is decided by the
// caller at each invocation.
type Producers struct {
	orders   OrderInserter
	vehicles VehicleInserter
	geocoder Geocoder
	log      logger.InterfaceLogger
	rng      *rand.Rand
}

// New builds a Producers over store and geocoder. seed fixes the random
// draws (types, locations, amounts), so tests get a repeatable sequence;
// order numbers, UV codes and timestamps also carry the wall clock and so
// differ between runs. Production callers pass time.Now().UnixNano().
func New(orders OrderInserter, vehicles VehicleInserter, geocoder Geocoder, log logger.InterfaceLogger, seed int64) *Producers {
	return &Producers{
		orders:   orders,
		vehicles: vehicles,
		geocoder: geocoder,
		log:      log,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// GenerateOrderBatch builds count random orders across the fixed
// order_type_code table and bulk-inserts them, mirroring
// batchCreateOrders's one-call-per-tick shape.
func (p *Producers) GenerateOrderBatch(ctx context.Context, count int) ([]int64, error) {
	if count <= 0 {
		return nil, nil
	}
	orders := make([]*model.Order, 0, count)
	for i := 0; i < count; i++ {
		o, err := p.randomOrder(ctx)
		if err != nil {
			p.log.Warnf("producers: building order %d/%d failed: %v", i+1, count, err)
			continue
		}
		orders = append(orders, o)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	start := time.Now()
	ids, err := p.orders.BulkInsertOrders(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("producers: bulk insert %d orders: %w", len(orders), err)
	}
	p.log.Infof("producers: created %d orders in %s", len(ids), time.Since(start))
	return ids, nil
}

// GenerateVehicleBatch builds count random vehicles and bulk-inserts them,
// mirroring batchCreateUVehicles.
func (p *Producers) GenerateVehicleBatch(ctx context.Context, count int) ([]int64, error) {
	if count <= 0 {
		return nil, nil
	}
	vehicles := make([]*model.UVehicle, 0, count)
	for i := 0; i < count; i++ {
		v, err := p.randomVehicle(ctx)
		if err != nil {
			p.log.Warnf("producers: building vehicle %d/%d failed: %v", i+1, count, err)
			continue
		}
		vehicles = append(vehicles, v)
	}
	if len(vehicles) == 0 {
		return nil, nil
	}

	start := time.Now()
	ids, err := p.vehicles.BulkInsertVehicles(ctx, vehicles)
	if err != nil {
		return nil, fmt.Errorf("producers: bulk insert %d vehicles: %w", len(vehicles), err)
	}
	p.log.Infof("producers: created %d vehicles in %s", len(ids), time.Since(start))
	return ids, nil
}

func (p *Producers) randomOrder(ctx context.Context) (*model.Order, error) {
	codes := make([]int, 0, len(model.OrderTypeTable))
	for code := range model.OrderTypeTable {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	typeCode := codes[p.rng.Intn(len(codes))]
	params := model.OrderTypeTable[typeCode]

	pickup, err := p.resolveLocation(ctx, p.randomLocation())
	if err != nil {
		return nil, err
	}
	delivery, err := p.resolveLocation(ctx, p.randomLocation())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	reward := decimal.NewFromFloat(roundTo2(10 + p.rng.Float64()*490))
	return &model.Order{
		OrderNo:       generateOrderNumber(p.rng),
		MerchantID:    int64(p.rng.Intn(1000) + 1),
		Reward:        reward,
		Distance:      p.rng.Intn(50) + 1,
		Pickup:        pickup,
		Delivery:      delivery,
		OrderType:     strings.Join(params.Capabilities, ","),
		OrderTypeCode: typeCode,
		Status:        model.OrderStatusPending,
		Version:       1,
		ExpireTime:    now.Add(time.Duration(p.rng.Intn(72)+1) * time.Hour),
		IsDelete:      0,
	}, nil
}

func (p *Producers) randomVehicle(ctx context.Context) (*model.UVehicle, error) {
	modelType := p.rng.Intn(3) + 1
	class := vehicleClasses[modelType-1]
	codes := model.CodesByVehicleClass(class)

	var supported []string
	for _, c := range codes {
		if p.rng.Intn(2) == 0 {
			supported = append(supported, strconv.Itoa(c))
		}
	}
	if len(supported) == 0 && len(codes) > 0 {
		supported = []string{strconv.Itoa(codes[p.rng.Intn(len(codes))])}
	}
	supportedCSV := strings.Join(supported, ",")

	loc, err := p.resolveLocation(ctx, p.randomLocation())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &model.UVehicle{
		UVCode:         generateUVCode(p.rng),
		ModelType:      modelType,
		Status:         p.rng.Intn(3),
		Battery:        p.rng.Intn(81) + 20,
		Capabilities:   strings.Join(model.CapabilitiesForTypes(supportedCSV), ","),
		SupportedTypes: supportedCSV,
		Location:       loc,
		Version:        1,
		HeartbeatTime:  now,
		IsDelete:       0,
	}, nil
}

func (p *Producers) randomLocation() string {
	return candidateLocations[p.rng.Intn(len(candidateLocations))]
}

// resolveLocation geocodes address through the shared Geocoder, which
// itself caches under "geo:{address}" indefinitely; Producers
// does not maintain a second cache layer on top of it.
func (p *Producers) resolveLocation(ctx context.Context, address string) (orb.Point, error) {
	pt, err := p.geocoder.Geocode(ctx, address)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	return pt, nil
}

// generateOrderNumber follows generateOrderNumber()'s "ORD-<ts>-<rand>" scheme.
func generateOrderNumber(rng *rand.Rand) string {
	return fmt.Sprintf("ORD-%d-%d", time.Now().UnixMilli(), rng.Intn(9000)+1000)
}

// generateUVCode follows generateUVCode()'s "UV-<ts>-<rand>" scheme.
func generateUVCode(rng *rand.Rand) string {
	return fmt.Sprintf("UV-%d-%d", time.Now().UnixMilli(), rng.Intn(900)+100)
}

func roundTo2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
