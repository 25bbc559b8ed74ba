package repository

import (
	"context"

	"github.com/nopeoplecar/uvdispatch/internal/model"
)

// Page is the result shape of QueryPage: the items found, the total row
// count across all pages, and the number of pages at the requested size.
type Page[T any] struct {
	Items []T
	Total int
	Pages int
}

// QueryAdvancedParams groups the condition categories accepted by
// QueryOrdersPage; there is no separate non-paged query call that takes
// them. Empty categories are omitted from the generated
// WHERE clause; conditions across categories are AND-combined.
type QueryAdvancedParams struct {
	Equals  map[string]any
	Ranges  map[string][2]any
	Fuzzies map[string]string
	Ins     map[string][]any
	Raw     string
	RawArgs []any
	GroupBy string
	OrderBy string
	Limit   int
	Offset  int
}

// OrderStore is typed CRUD plus advanced query/paging over the four
// canonical tables, and the optimistic-update primitive the claim path
// relies on. Grounded on the OrderRepository/Repository shape, generalized
// from a single order_uid-keyed entity to ParamObj.h's four SOCI_MAP
// entities.
type OrderStore interface {
	InsertOrder(ctx context.Context, o *model.Order) (int64, error)
	BulkInsertOrders(ctx context.Context, os []*model.Order) ([]int64, error)
	UpdateOrder(ctx context.Context, o *model.Order) error
	RemoveOrder(ctx context.Context, id int64) error
	BulkRemoveOrders(ctx context.Context, ids []int64) error
	RestoreOrder(ctx context.Context, id int64) error
	QueryOrderByID(ctx context.Context, id int64) (*model.Order, error)
	QueryOrdersPage(ctx context.Context, p QueryAdvancedParams, page, pageSize int) (Page[*model.Order], error)

	InsertVehicle(ctx context.Context, v *model.UVehicle) (int64, error)
	BulkInsertVehicles(ctx context.Context, vs []*model.UVehicle) ([]int64, error)
	UpdateVehicle(ctx context.Context, v *model.UVehicle) error
	QueryVehicleByID(ctx context.Context, id int64) (*model.UVehicle, error)

	InsertGrabLog(ctx context.Context, g *model.GrabLog) (int64, error)
	InsertDeliveryTask(ctx context.Context, d *model.DeliveryTask) (int64, error)
	RemoveDeliveryTask(ctx context.Context, id int64) error
	RemoveGrabLog(ctx context.Context, id int64) error

	// ExecUpdate runs a raw parametrized statement and returns rows
	// affected. The claim path uses it for its CAS update; 0 rows
	// affected there means ClaimLost.
	ExecUpdate(ctx context.Context, query string, args ...any) (int64, error)
}
