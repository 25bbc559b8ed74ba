// Package repository is the OrderStore: typed CRUD and
// advanced query/paging over orders, vehicles, grab-logs and
// delivery-tasks, plus partition maintenance. Built on raw database/sql,
// with context.WithTimeout per call, explicit Begin/deferred-Rollback/
// Commit, and fmt.Errorf(...: %w) wrapping throughout.
package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/nopeoplecar/uvdispatch/internal/config"
)

const Driver = "postgres"

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}
