package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nopeoplecar/uvdispatch/internal/errs"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

const qInsertOrder = `
INSERT INTO xc_uv_order
	(order_no, merchant_id, reward, distance, pickup, delivery, order_type,
	 order_type_code, status, version, uv_id, expire_time)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING order_id`

func (s *Store) InsertOrder(ctx context.Context, o *model.Order) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pickup, err := pointBytes(o.Pickup)
	if err != nil {
		return 0, fmt.Errorf("encode pickup: %w", err)
	}
	delivery, err := pointBytes(o.Delivery)
	if err != nil {
		return 0, fmt.Errorf("encode delivery: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, qInsertOrder,
		o.OrderNo, o.MerchantID, o.Reward, o.Distance, pickup, delivery, o.OrderType,
		o.OrderTypeCode, o.Status, o.Version, o.UVID, o.ExpireTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (s *Store) BulkInsertOrders(ctx context.Context, os []*model.Order) ([]int64, error) {
	if len(os) == 0 {
		return nil, nil
	}
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, qInsertOrder)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]int64, 0, len(os))
	for _, o := range os {
		pickup, err := pointBytes(o.Pickup)
		if err != nil {
			return nil, fmt.Errorf("encode pickup: %w", err)
		}
		delivery, err := pointBytes(o.Delivery)
		if err != nil {
			return nil, fmt.Errorf("encode delivery: %w", err)
		}
		var id int64
		if err := stmt.QueryRowContext(ctx,
			o.OrderNo, o.MerchantID, o.Reward, o.Distance, pickup, delivery, o.OrderType,
			o.OrderTypeCode, o.Status, o.Version, o.UVID, o.ExpireTime,
		).Scan(&id); err != nil {
			return nil, fmt.Errorf("bulk insert order: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

const qUpdateOrder = `
UPDATE xc_uv_order SET
	reward=$1, distance=$2, pickup=$3, delivery=$4, order_type=$5,
	order_type_code=$6, status=$7, version=$8, uv_id=$9, expire_time=$10,
	updated_at=now()
WHERE order_id=$11 AND is_delete=0`

func (s *Store) UpdateOrder(ctx context.Context, o *model.Order) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pickup, err := pointBytes(o.Pickup)
	if err != nil {
		return fmt.Errorf("encode pickup: %w", err)
	}
	delivery, err := pointBytes(o.Delivery)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	res, err := s.db.ExecContext(ctx, qUpdateOrder,
		o.Reward, o.Distance, pickup, delivery, o.OrderType,
		o.OrderTypeCode, o.Status, o.Version, o.UVID, o.ExpireTime, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveOrder(ctx context.Context, id int64) error {
	return s.softDelete(ctx, "xc_uv_order", "order_id", id)
}

func (s *Store) BulkRemoveOrders(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := s.RemoveOrder(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RestoreOrder(ctx context.Context, id int64) error {
	return s.restore(ctx, "xc_uv_order", "order_id", id)
}

func (s *Store) softDelete(ctx context.Context, table, pk string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	q := fmt.Sprintf(`UPDATE %s SET is_delete=1, updated_at=now() WHERE %s=$1 AND is_delete=0`, table, pk)
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) restore(ctx context.Context, table, pk string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	q := fmt.Sprintf(`UPDATE %s SET is_delete=0, updated_at=now() WHERE %s=$1 AND is_delete=1`, table, pk)
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("restore %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

const qSelOrderByID = `
SELECT order_id, order_no, merchant_id, reward, distance, pickup, delivery,
       order_type, order_type_code, status, version, uv_id, expire_time,
       created_at, updated_at, is_delete
FROM xc_uv_order WHERE order_id=$1 AND is_delete=0`

func (s *Store) QueryOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var o model.Order
	var pickup, delivery []byte
	var uvID sql.NullInt64

	err := s.db.QueryRowContext(ctx, qSelOrderByID, id).Scan(
		&o.ID, &o.OrderNo, &o.MerchantID, &o.Reward, &o.Distance, &pickup, &delivery,
		&o.OrderType, &o.OrderTypeCode, &o.Status, &o.Version, &uvID, &o.ExpireTime,
		&o.CreatedAt, &o.UpdatedAt, &o.IsDelete,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	if uvID.Valid {
		v := uvID.Int64
		o.UVID = &v
	}
	if o.Pickup, err = scanPoint(pickup); err != nil {
		return nil, err
	}
	if o.Delivery, err = scanPoint(delivery); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) QueryOrdersPage(ctx context.Context, p QueryAdvancedParams, page, pageSize int) (Page[*model.Order], error) {
	rows, total, err := queryPage(ctx, s.db, "xc_uv_order", orderColumns, p, page, pageSize)
	if err != nil {
		return Page[*model.Order]{}, err
	}
	defer func() { _ = rows.Close() }()

	var items []*model.Order
	for rows.Next() {
		var o model.Order
		var pickup, delivery []byte
		var uvID sql.NullInt64
		if err := rows.Scan(
			&o.ID, &o.OrderNo, &o.MerchantID, &o.Reward, &o.Distance, &pickup, &delivery,
			&o.OrderType, &o.OrderTypeCode, &o.Status, &o.Version, &uvID, &o.ExpireTime,
			&o.CreatedAt, &o.UpdatedAt, &o.IsDelete,
		); err != nil {
			return Page[*model.Order]{}, fmt.Errorf("scan order: %w", err)
		}
		if uvID.Valid {
			v := uvID.Int64
			o.UVID = &v
		}
		if o.Pickup, err = scanPoint(pickup); err != nil {
			return Page[*model.Order]{}, err
		}
		if o.Delivery, err = scanPoint(delivery); err != nil {
			return Page[*model.Order]{}, err
		}
		items = append(items, &o)
	}
	if err := rows.Err(); err != nil {
		return Page[*model.Order]{}, fmt.Errorf("rows: %w", err)
	}

	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return Page[*model.Order]{Items: items, Total: total, Pages: pages}, nil
}

var orderColumns = "order_id, order_no, merchant_id, reward, distance, pickup, delivery, " +
	"order_type, order_type_code, status, version, uv_id, expire_time, created_at, updated_at, is_delete"

// ExecUpdate runs a raw parametrized statement and reports rows affected.
// The claim path's CAS update goes through this: 0 rows affected there
// means the order was already claimed, advanced in version, or tombstoned.
func (s *Store) ExecUpdate(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
