package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

// Partitions manages the monthly range partitions of xc_uv_grab_log.
// Grounded on the time-series partition upkeep the original performs over
// its grab-log table, reimplemented as Postgres native declarative
// partitioning instead of manual table-suffix sharding.
type Partitions struct {
	db  *sql.DB
	log logger.InterfaceLogger
}

func NewPartitions(db *sql.DB, log logger.InterfaceLogger) *Partitions {
	return &Partitions{db: db, log: log}
}

func partitionName(month time.Time) string {
	return fmt.Sprintf("xc_uv_grab_log_%04d_%02d", month.Year(), month.Month())
}

// CreateNextMonthPartition creates the partition covering the calendar
// month following now, if it doesn't already exist. Idempotent: a second
// call for the same month is a no-op.
func (p *Partitions) CreateNextMonthPartition(ctx context.Context, now time.Time) error {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return p.createPartition(ctx, next)
}

func (p *Partitions) createPartition(ctx context.Context, monthStart time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	monthEnd := monthStart.AddDate(0, 1, 0)
	name := partitionName(monthStart)

	q := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF xc_uv_grab_log FOR VALUES FROM ($1) TO ($2)`,
		name,
	)
	if _, err := p.db.ExecContext(ctx, q, monthStart, monthEnd); err != nil {
		return fmt.Errorf("create partition %s: %w", name, err)
	}
	return nil
}

// EnsureFuturePartitions creates every monthly partition from the current
// month through lookaheadMonths ahead, skipping any that already exist.
func (p *Partitions) EnsureFuturePartitions(ctx context.Context, now time.Time, lookaheadMonths int) error {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= lookaheadMonths; i++ {
		month := start.AddDate(0, i, 0)
		if err := p.createPartition(ctx, month); err != nil {
			return err
		}
	}
	return nil
}

// PartitionHealth reports which expected months are missing a partition.
type PartitionHealth struct {
	Missing []time.Time
}

// CheckPartitionHealth reports, without modifying anything, which months
// in [now, now+lookaheadMonths] lack a partition table.
func (p *Partitions) CheckPartitionHealth(ctx context.Context, now time.Time, lookaheadMonths int) (PartitionHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var health PartitionHealth
	for i := 0; i <= lookaheadMonths; i++ {
		month := start.AddDate(0, i, 0)
		name := partitionName(month)
		var exists bool
		err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_class WHERE relname = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return PartitionHealth{}, fmt.Errorf("check partition %s: %w", name, err)
		}
		if !exists {
			health.Missing = append(health.Missing, month)
		}
	}
	return health, nil
}

// RepairMissingPartitions creates every partition CheckPartitionHealth
// reported missing. Logs a warning per repaired month so gaps in the
// upkeep cron are visible after the fact.
func (p *Partitions) RepairMissingPartitions(ctx context.Context, health PartitionHealth) error {
	for _, month := range health.Missing {
		if err := p.createPartition(ctx, month); err != nil {
			return err
		}
		if p.log != nil {
			p.log.Warnf("repaired missing grab-log partition for %s", month.Format("2006-01"))
		}
	}
	return nil
}
