// Command vehicle runs a single VehicleClient process for one uv_id,
// selected by the UVDISPATCH_UV_ID environment variable. No HTTP surface:
// load config, connect, run the client loop, graceful shutdown on signal.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/config"
	"github.com/nopeoplecar/uvdispatch/internal/db/repository"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/vehicle"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := log.Sync(); err != nil {
			log.Warnf("logger sync failed: %v", err)
		}
	}()

	uvID, err := strconv.ParseInt(os.Getenv("UVDISPATCH_UV_ID"), 10, 64)
	if err != nil {
		log.Fatalf("UVDISPATCH_UV_ID must be set to the vehicle's uv_id: %v", err)
	}

	db, err := repository.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer func(db *sql.DB) { _ = db.Close() }(db)
	store := repository.NewStore(db, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, err := kv.NewRedisCache(ctx, &cfg.KV)
	if err != nil {
		log.Fatalf("connect kv: %v", err)
	}
	defer func() { _ = cache.Close() }()

	busCfg := bus.Config{
		MaxQueueSize:  cfg.Bus.MaxQueueSize,
		SendTimeoutMs: cfg.Bus.SendTimeoutMs,
		BatchSize:     cfg.Bus.BatchSize,
	}
	// Each vehicle process must see every message a HEADERS publish
	// matches, not compete for it, so it joins a consumer group of its
	// own rather than sharing cfg.Bus.GroupID with the rest of the fleet
	// — a shared group would give Kafka's competing-consumer semantics
	// and hand each order to exactly one vehicle process at the transport
	// layer, before the claim protocol ever runs.
	groupID := fmt.Sprintf("%s-vehicle-%d", cfg.Bus.GroupID, uvID)
	instances := bus.NewInstanceManager(cfg.Bus.Brokers, groupID, busCfg, log)
	defer instances.StopAll()

	e1 := instances.Acquire(cfg.Bus.EndpointE1)
	e2 := instances.Acquire(cfg.Bus.EndpointE2)
	e3 := instances.Acquire(cfg.Bus.EndpointE3)

	registry := vehicle.NewRegistry()
	clientCfg := vehicle.Config{
		LockTTL:  time.Duration(cfg.Claim.LockTTLMs) * time.Millisecond,
		CacheTTL: time.Duration(cfg.Cache.OrderTTLSec) * time.Second,
	}
	client := vehicle.NewClient(uvID, store, cache, e1, e2, e3, registry, log, clientCfg)

	if err := client.Start(ctx); err != nil {
		log.Fatalf("start vehicle client for uv_id=%d: %v", uvID, err)
	}
	log.Infof("vehicle client started for uv_id=%d", uvID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("shutting down vehicle client for uv_id=%d", uvID)
	cancel()
	client.Stop()
}
