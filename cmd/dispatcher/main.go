// Command dispatcher wires OrderStore, KVCache, Bus, Scheduler, Dispatch,
// DeadLetter and Producers into one process: load config, connect and
// migrate, construct services, run, graceful shutdown on signal. No HTTP
// surface — this process only drives the cron-scheduled core.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/config"
	"github.com/nopeoplecar/uvdispatch/internal/db/repository"
	"github.com/nopeoplecar/uvdispatch/internal/deadletter"
	"github.com/nopeoplecar/uvdispatch/internal/dispatch"
	"github.com/nopeoplecar/uvdispatch/internal/geocode"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/producers"
	"github.com/nopeoplecar/uvdispatch/internal/scheduler"
)

const shutdownWindow = 5 * time.Second

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

	log.Info("connecting to database")
	db, err := repository.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer func(db *sql.DB) { _ = db.Close() }(db)

	log.Info("running migrations")
	if err := repository.RunMigrations(db); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	store := repository.NewStore(db, log)
	partitions := repository.NewPartitions(db, log)

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
	// A group id of its own, distinct from any vehicle's, so the
	// dispatcher's dead-letter observer reads every message on E1/E2/E3
	// rather than competing with a vehicle process's group for them.
	groupID := fmt.Sprintf("%s-dispatcher", cfg.Bus.GroupID)
	instances := bus.NewInstanceManager(cfg.Bus.Brokers, groupID, busCfg, log)
	defer instances.StopAll()

	e1 := instances.Acquire(cfg.Bus.EndpointE1)
	e2 := instances.Acquire(cfg.Bus.EndpointE2)
	e3 := instances.Acquire(cfg.Bus.EndpointE3)

	geocoder := geocode.New(cfg.Geocode, cache, log)
	dispatcher := dispatch.New(store, geocoder, e1, log)
	prod := producers.New(store, store, geocoder, log, time.Now().UnixNano())

	expireAfter := time.Duration(cfg.DeadLetter.ExpireSec) * time.Second
	observer := deadletter.NewObserver(cache, log, expireAfter)
	observer.Watch(e1)
	observer.Watch(e2)
	observer.Watch(e3)
	archiver := deadletter.NewArchiver(cache, log, cfg.DeadLetter.ArchiveDir)

	if err := partitions.EnsureFuturePartitions(ctx, time.Now(), cfg.Partition.LookaheadMonths); err != nil {
		log.Warnf("ensure future partitions: %v", err)
	}

	sched := scheduler.New(8, log)
	mustAddCron(sched, log, "dispatch", "*/2 * * * * *", func(ctx context.Context) {
		if err := dispatcher.RunCycle(ctx); err != nil {
			log.Errorf("dispatch cycle: %v", err)
		}
	})
	mustAddCron(sched, log, "deadletter-archive", "0 */10 * * * *", func(ctx context.Context) {
		if err := archiver.RunCycle(ctx); err != nil {
			log.Errorf("deadletter archive cycle: %v", err)
		}
	})
	mustAddCron(sched, log, "partition-maintenance", "0 0 3 1 * *", func(ctx context.Context) {
		health, err := partitions.CheckPartitionHealth(ctx, time.Now(), cfg.Partition.LookaheadMonths)
		if err != nil {
			log.Errorf("check partition health: %v", err)
			return
		}
		if len(health.Missing) == 0 {
			return
		}
		if err := partitions.RepairMissingPartitions(ctx, health); err != nil {
			log.Errorf("repair missing partitions: %v", err)
		}
	})
	mustAddCron(sched, log, "produce-orders", "*/15 * * * * *", func(ctx context.Context) {
		if _, err := prod.GenerateOrderBatch(ctx, 5); err != nil {
			log.Errorf("generate order batch: %v", err)
		}
	})
	mustAddCron(sched, log, "produce-vehicles", "0 */2 * * * *", func(ctx context.Context) {
		if _, err := prod.GenerateVehicleBatch(ctx, 2); err != nil {
			log.Errorf("generate vehicle batch: %v", err)
		}
	})

	sched.Start(ctx)
	log.Info("dispatcher started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	sched.Stop(shutdownWindow)
}

func mustAddCron(sched *scheduler.Scheduler, log logger.InterfaceLogger, name, expr string, run func(context.Context)) {
	if err := sched.AddCron(name, expr, run); err != nil {
		log.Fatalf("register cron task %s: %v", name, err)
	}
}
