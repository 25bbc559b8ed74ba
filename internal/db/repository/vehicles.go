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

const qInsertVehicle = `
INSERT INTO xc_uv_vehicle
	(uv_code, model_type, status, battery, capabilities, location, version,
	 supported_types, heartbeat_time)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING uv_id`

func (s *Store) InsertVehicle(ctx context.Context, v *model.UVehicle) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	loc, err := pointBytes(v.Location)
	if err != nil {
		return 0, fmt.Errorf("encode location: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, qInsertVehicle,
		v.UVCode, v.ModelType, v.Status, v.Battery, v.Capabilities, loc, v.Version,
		v.SupportedTypes, v.HeartbeatTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert vehicle: %w", err)
	}
	return id, nil
}

func (s *Store) BulkInsertVehicles(ctx context.Context, vs []*model.UVehicle) ([]int64, error) {
	if len(vs) == 0 {
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

	stmt, err := tx.PrepareContext(ctx, qInsertVehicle)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]int64, 0, len(vs))
	for _, v := range vs {
		loc, err := pointBytes(v.Location)
		if err != nil {
			return nil, fmt.Errorf("encode location: %w", err)
		}
		var id int64
		if err := stmt.QueryRowContext(ctx,
			v.UVCode, v.ModelType, v.Status, v.Battery, v.Capabilities, loc, v.Version,
			v.SupportedTypes, v.HeartbeatTime,
		).Scan(&id); err != nil {
			return nil, fmt.Errorf("bulk insert vehicle: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

const qUpdateVehicle = `
UPDATE xc_uv_vehicle SET
	status=$1, battery=$2, capabilities=$3, location=$4, version=$5,
	supported_types=$6, heartbeat_time=$7, updated_at=now()
WHERE uv_id=$8 AND is_delete=0`

func (s *Store) UpdateVehicle(ctx context.Context, v *model.UVehicle) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	loc, err := pointBytes(v.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	res, err := s.db.ExecContext(ctx, qUpdateVehicle,
		v.Status, v.Battery, v.Capabilities, loc, v.Version, v.SupportedTypes, v.HeartbeatTime, v.ID,
	)
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
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

const qSelVehicleByID = `
SELECT uv_id, uv_code, model_type, status, battery, capabilities, location,
       version, supported_types, heartbeat_time, created_at, updated_at, is_delete
FROM xc_uv_vehicle WHERE uv_id=$1 AND is_delete=0`

func (s *Store) QueryVehicleByID(ctx context.Context, id int64) (*model.UVehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var v model.UVehicle
	var loc []byte
	err := s.db.QueryRowContext(ctx, qSelVehicleByID, id).Scan(
		&v.ID, &v.UVCode, &v.ModelType, &v.Status, &v.Battery, &v.Capabilities, &loc,
		&v.Version, &v.SupportedTypes, &v.HeartbeatTime, &v.CreatedAt, &v.UpdatedAt, &v.IsDelete,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select vehicle: %w", err)
	}
	if v.Location, err = scanPoint(loc); err != nil {
		return nil, err
	}
	return &v, nil
}
