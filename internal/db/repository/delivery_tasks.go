package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nopeoplecar/uvdispatch/internal/model"
)

const qInsertDeliveryTask = `
INSERT INTO xc_uv_delivery (order_id, uv_id, actual_distance, start_time, end_time, status)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING task_id`

func (s *Store) InsertDeliveryTask(ctx context.Context, d *model.DeliveryTask) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := s.db.QueryRowContext(ctx, qInsertDeliveryTask,
		d.OrderID, d.UVID, d.ActualDistance, d.StartTime, d.EndTime, d.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert delivery task: %w", err)
	}
	return id, nil
}

// RemoveDeliveryTask deletes a partially-finalized task row. Used only by
// the compensation path when a grab-log/delivery-task pair is rolled back.
func (s *Store) RemoveDeliveryTask(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM xc_uv_delivery WHERE task_id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery task: %w", err)
	}
	return nil
}
