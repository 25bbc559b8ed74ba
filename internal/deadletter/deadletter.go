// Package deadletter implements an Observer that watches bus
// endpoints passively for frames whose age exceeds a threshold and parks
// them in KVCache with a TTL, and an Archiver that periodically flushes
// aging entries to disk before their TTL expires. Grounded on
// Orderdeadletter.h's ZmqCleaner (cleanup_expired / process_deadletters /
// maintain_deadletters), reimplemented as bus subscribers plus a
// scheduler task instead of a ZMQ SUB poll loop.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nopeoplecar/uvdispatch/internal/bus"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
	"github.com/nopeoplecar/uvdispatch/internal/metrics"
	"github.com/nopeoplecar/uvdispatch/internal/model"
)

// keyPrefix/statsKey match Orderdeadletter.h's "deadletter:" / pattern
// "deadletter:*" and its "deadletter_maintenance" stats hash, renamed with
// a colon to stay inside the same key namespace.
const (
	keyPrefix     = "deadletter:"
	keyPattern    = "deadletter:*"
	statsKey      = "deadletter:maintenance"
	archiveAlertBytes = 100 * 1024 * 1024
	maintainTTLThreshold = 12 * time.Hour
)

// Observer subscribes to bus endpoints as a passive fanout listener and
// dead-letters any message older than ExpireAfter (default 300s, matching
// the deadletter.expireSec config key).
type Observer struct {
	cache       kv.Cache
	log         logger.InterfaceLogger
	expireAfter time.Duration
}

// NewObserver builds an Observer with the given age threshold.
func NewObserver(cache kv.Cache, log logger.InterfaceLogger, expireAfter time.Duration) *Observer {
	if expireAfter <= 0 {
		expireAfter = 300 * time.Second
	}
	return &Observer{cache: cache, log: log, expireAfter: expireAfter}
}

// Watch registers the Observer as a FANOUT subscriber on ep, so it sees
// every message that passes through regardless of topic or headers
// (Orderdeadletter.h's ZmqCleaner connects to every monitored endpoint
// with an empty subscribe filter).
func (o *Observer) Watch(ep *bus.Endpoint) {
	ep.Subscribe(nil, o.handle, bus.Fanout)
}

func (o *Observer) handle(msg bus.Message) {
	if !o.isExpired(msg) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.store(ctx, msg); err != nil {
		o.log.Warnf("deadletter: store failed for msg %s: %v", msg.ID, err)
		return
	}
	metrics.DeadLetterStoredTotal.Inc()
}

func (o *Observer) isExpired(msg bus.Message) bool {
	if msg.TimestampMs == 0 {
		return false
	}
	age := time.Since(time.UnixMilli(msg.TimestampMs))
	return age > o.expireAfter
}

// store writes the record under "deadletter:{msg_id}" with a 24h TTL,
// capping the archived body at 1 MiB.
func (o *Observer) store(ctx context.Context, msg bus.Message) error {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	body := msg.Body
	if len(body) > model.DeadLetterMaxBodyBytes {
		body = body[:model.DeadLetterMaxBodyBytes]
	}

	fields := map[string]string{
		"timestamp": strconv.FormatInt(msg.TimestampMs, 10),
		"msg_id":    id,
		"data":      string(body),
	}
	return o.cache.HMSetWithTTL(ctx, keyPrefix+id, fields, model.DeadLetterTTLSeconds*time.Second)
}

// Archiver periodically scans deadletter:* and flushes entries nearing
// TTL expiry to disk.
type Archiver struct {
	cache kv.Cache
	log   logger.InterfaceLogger
	dir   string
}

func NewArchiver(cache kv.Cache, log logger.InterfaceLogger, archiveDir string) *Archiver {
	if archiveDir == "" {
		archiveDir = "/var/deadletter/"
	}
	return &Archiver{cache: cache, log: log, dir: archiveDir}
}

// RunCycle archives every dead-letter key whose remaining TTL is below
// 12h, records a deadletter:maintenance stats hash, and logs an [ALERT]
// line if cumulative archived size this cycle exceeds 100 MiB.
func (a *Archiver) RunCycle(ctx context.Context) error {
	keys, err := a.cache.Keys(ctx, keyPattern)
	if err != nil {
		return fmt.Errorf("deadletter: list keys: %w", err)
	}

	var processed, failed int
	var totalSize int64
	for _, key := range keys {
		if key == statsKey {
			continue
		}
		ttl, err := a.cache.TTL(ctx, key)
		if err != nil {
			failed++
			a.log.Warnf("deadletter: ttl check failed for %s: %v", key, err)
			continue
		}
		if ttl >= maintainTTLThreshold {
			continue
		}

		size, err := a.archiveOne(ctx, key)
		if err != nil {
			failed++
			a.log.Warnf("deadletter: archive failed for %s: %v", key, err)
			continue
		}
		processed++
		totalSize += size
		metrics.DeadLetterArchivedTotal.Inc()
	}

	if err := a.recordStats(ctx, processed, failed); err != nil {
		a.log.Warnf("deadletter: stats write failed: %v", err)
	}

	metrics.DeadLetterArchiveSizeBytes.Add(float64(totalSize))
	if totalSize > archiveAlertBytes {
		a.log.Errorf("[ALERT] deadletter archive volume %d bytes exceeds threshold this cycle", totalSize)
	}
	return nil
}

// archiveOne serializes one key's hash to
// "{dir}/YYYYMMDD_{key}.json" and removes the KV entry on success, per
// archive file format.
func (a *Archiver) archiveOne(ctx context.Context, key string) (int64, error) {
	data, err := a.cache.HGetAll(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read hash: %w", err)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("empty hash")
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir archive dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", time.Now().Format("20060102"), key)
	path := filepath.Join(a.dir, name)

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal hash: %w", err)
	}
	if len(body) == 0 {
		return 0, fmt.Errorf("archive body empty, refusing to count as archived")
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return 0, fmt.Errorf("write archive file: %w", err)
	}

	if err := a.cache.Del(ctx, key); err != nil {
		return 0, fmt.Errorf("delete kv entry: %w", err)
	}
	return int64(len(body)), nil
}

func (a *Archiver) recordStats(ctx context.Context, processed, failed int) error {
	fields := map[string]string{
		"last_run":  strconv.FormatInt(time.Now().Unix(), 10),
		"processed": strconv.Itoa(processed),
		"failed":    strconv.Itoa(failed),
	}
	return a.cache.HMSet(ctx, statsKey, fields)
}
