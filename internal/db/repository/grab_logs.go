package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nopeoplecar/uvdispatch/internal/model"
)

const qInsertGrabLog = `
INSERT INTO xc_uv_grab_log (order_id, uv_id, status, result, bid_amount, response_time)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING log_id`

// InsertGrabLog appends a claim-attempt record. Grab logs are append-only
// in normal operation; RemoveGrabLog exists only for the finalization
// compensation path, which deletes the partial row it just wrote.
func (s *Store) InsertGrabLog(ctx context.Context, g *model.GrabLog) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := s.db.QueryRowContext(ctx, qInsertGrabLog,
		g.OrderID, g.UVID, g.Status, g.Result, g.BidAmount, g.ResponseTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert grab log: %w", err)
	}
	return id, nil
}

func (s *Store) RemoveGrabLog(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM xc_uv_grab_log WHERE log_id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete grab log: %w", err)
	}
	return nil
}
