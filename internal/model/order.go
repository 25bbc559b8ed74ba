// Package model holds the core entities: Order, UVehicle, GrabLog,
// DeliveryTask, and the transient cache/dead-letter record shapes. Field
// names and table names follow ParamObj.h's SOCI_MAP declarations.
package model

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderStatusPending    = 0
	OrderStatusClaimed    = 1
	OrderStatusDelivering = 2
	OrderStatusCompleted  = 3
	OrderStatusCanceled   = 4
)

// Order is a merchant's delivery request. Table: xc_uv_order.
type Order struct {
	ID            int64
	OrderNo       string
	MerchantID    int64
	Reward        decimal.Decimal
	Distance      int
	Pickup        orb.Point
	Delivery      orb.Point
	OrderType     string
	OrderTypeCode int
	Status        int
	Version       int
	UVID          *int64
	ExpireTime    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	IsDelete      int
}

// UVehicle model types.
const (
	ModelTypeGround = 1
	ModelTypeDrone  = 2
	ModelTypeRobot  = 3
)

// UVehicle statuses.
const (
	UVehicleStatusIdle        = 0
	UVehicleStatusBusy        = 1
	UVehicleStatusMaintenance = 2
)

// UVehicle is a participating vehicle. Table: xc_uv_vehicle.
type UVehicle struct {
	ID             int64
	UVCode         string
	ModelType      int
	Status         int
	Battery        int
	Capabilities   string
	SupportedTypes string
	Location       orb.Point
	Version        int
	HeartbeatTime  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDelete       int
}

// GrabLog is an append-only record of a claim attempt. Table: xc_uv_grab_log.
type GrabLog struct {
	ID           int64
	OrderID      int64
	UVID         int64
	Status       int
	Result       int
	BidAmount    decimal.Decimal
	ResponseTime int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsDelete     int
}

// DeliveryTask statuses.
const (
	DeliveryTaskStatusStarted = 1
)

// DeliveryTask is the work item created when a claim completes. Table:
// xc_uv_delivery.
type DeliveryTask struct {
	ID             int64
	OrderID        int64
	UVID           int64
	ActualDistance int
	StartTime      time.Time
	EndTime        time.Time
	Status         int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsDelete       int
}
