package repository

import (
	"database/sql"
	"sync"

	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

// Store is the Postgres-backed OrderStore. It talks to the database
// directly over database/sql; no ORM sits between it and the driver.
//
// bulkMu serializes BulkInsertOrders and BulkInsertVehicles, following the
// single db_mutex the original batchCreateOrders/batchCreateUVehicles hold
// around their insert transactions. The per-row CRUD paths don't need it:
// Postgres already serializes those at the row/transaction level.
type Store struct {
	db     *sql.DB
	logger logger.InterfaceLogger
	bulkMu sync.Mutex
}

var _ OrderStore = (*Store)(nil)

func NewStore(db *sql.DB, log logger.InterfaceLogger) *Store {
	return &Store{db: db, logger: log}
}
