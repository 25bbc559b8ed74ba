package vehicle

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nopeoplecar/uvdispatch/internal/db/repository"
	"github.com/nopeoplecar/uvdispatch/internal/errs"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

// fakeStore is a minimal in-memory OrderStore exercising exactly the
// operations the claim loop and finalization handler use: QueryOrderByID,
// ExecUpdate (claim CAS + compensation rollback), vehicle lookup, and the
// grab-log/delivery-task insert/remove pair. failDeliveryTask simulates the
// fault injection S3 requires.
type fakeStore struct {
	mu sync.Mutex

	orders        map[int64]*model.Order
	vehicles      map[int64]*model.UVehicle
	grabLogs      map[int64]*model.GrabLog
	deliveryTasks map[int64]*model.DeliveryTask

	nextGrabLogID int64
	nextTaskID    int64

	failDeliveryTask bool
}

var _ repository.OrderStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:        make(map[int64]*model.Order),
		vehicles:      make(map[int64]*model.UVehicle),
		grabLogs:      make(map[int64]*model.GrabLog),
		deliveryTasks: make(map[int64]*model.DeliveryTask),
	}
}

func (s *fakeStore) putOrder(o *model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
}

func (s *fakeStore) putVehicle(v *model.UVehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vehicles[v.ID] = &cp
}

func (s *fakeStore) getOrder(id int64) (*model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (s *fakeStore) InsertOrder(ctx context.Context, o *model.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = int64(len(s.orders) + 1)
	cp := *o
	s.orders[o.ID] = &cp
	return o.ID, nil
}

func (s *fakeStore) BulkInsertOrders(ctx context.Context, os []*model.Order) ([]int64, error) {
	ids := make([]int64, 0, len(os))
	for _, o := range os {
		id, err := s.InsertOrder(ctx, o)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return errs.ErrNotFound
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *fakeStore) RemoveOrder(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	o.IsDelete = 1
	return nil
}

func (s *fakeStore) BulkRemoveOrders(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := s.RemoveOrder(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) RestoreOrder(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	o.IsDelete = 0
	return nil
}

func (s *fakeStore) QueryOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	o, ok := s.getOrder(id)
	if !ok || o.IsDelete != 0 {
		return nil, errs.ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) QueryOrdersPage(ctx context.Context, p repository.QueryAdvancedParams, page, pageSize int) (repository.Page[*model.Order], error) {
	return repository.Page[*model.Order]{}, errors.New("not implemented in fake")
}

func (s *fakeStore) InsertVehicle(ctx context.Context, v *model.UVehicle) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = int64(len(s.vehicles) + 1)
	cp := *v
	s.vehicles[v.ID] = &cp
	return v.ID, nil
}

func (s *fakeStore) BulkInsertVehicles(ctx context.Context, vs []*model.UVehicle) ([]int64, error) {
	ids := make([]int64, 0, len(vs))
	for _, v := range vs {
		id, err := s.InsertVehicle(ctx, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) UpdateVehicle(ctx context.Context, v *model.UVehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[v.ID]; !ok {
		return errs.ErrNotFound
	}
	cp := *v
	s.vehicles[v.ID] = &cp
	return nil
}

func (s *fakeStore) QueryVehicleByID(ctx context.Context, id int64) (*model.UVehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *fakeStore) InsertGrabLog(ctx context.Context, g *model.GrabLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGrabLogID++
	g.ID = s.nextGrabLogID
	cp := *g
	s.grabLogs[g.ID] = &cp
	return g.ID, nil
}

func (s *fakeStore) InsertDeliveryTask(ctx context.Context, d *model.DeliveryTask) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeliveryTask {
		return 0, errors.New("injected delivery task failure")
	}
	s.nextTaskID++
	d.ID = s.nextTaskID
	cp := *d
	s.deliveryTasks[d.ID] = &cp
	return d.ID, nil
}

func (s *fakeStore) RemoveDeliveryTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveryTasks, id)
	return nil
}

func (s *fakeStore) RemoveGrabLog(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grabLogs, id)
	return nil
}

// ExecUpdate recognizes the two raw statements this package issues: the
// claim CAS update and the compensation rollback.
func (s *fakeStore) ExecUpdate(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(query, "status=1, uv_id="):
		uvID := args[0].(int64)
		newVersion := args[1].(int)
		orderID := args[3].(int64)
		oldVersion := args[4].(int)

		o, ok := s.orders[orderID]
		if !ok || o.IsDelete != 0 || o.Version != oldVersion {
			return 0, nil
		}
		o.Status = model.OrderStatusClaimed
		o.UVID = &uvID
		o.Version = newVersion
		return 1, nil

	case strings.Contains(query, "status=0, version=0"):
		orderID := args[0].(int64)
		o, ok := s.orders[orderID]
		if !ok || o.Status != model.OrderStatusClaimed {
			return 0, nil
		}
		o.Status = model.OrderStatusPending
		o.Version = 0
		o.UVID = nil
		return 1, nil

	default:
		return 0, errors.New("fake store: unrecognized ExecUpdate query")
	}
}
