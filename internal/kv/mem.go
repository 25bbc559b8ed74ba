package kv

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemCache is an in-process Cache used by tests, standing in for a
// generated mock. Guarded by a single RWMutex over a set of maps, one per
// value kind.
type MemCache struct {
	mu      sync.RWMutex
	strings map[string]valEntry
	hashes  map[string]map[string]string
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
}

type valEntry struct {
	value   string
	expires time.Time // zero means no TTL
}

func NewMemCache() *MemCache {
	return &MemCache{
		strings: make(map[string]valEntry),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
	}
}

var _ Cache = (*MemCache)(nil)

func (c *MemCache) expired(e valEntry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (c *MemCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := valEntry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.strings[key] = e
	return nil
}

func (c *MemCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.strings[key]
	if !ok || c.expired(e) {
		delete(c.strings, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (c *MemCache) HMSet(_ context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (c *MemCache) HMSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := c.HMSet(ctx, key, fields); err != nil {
		return err
	}
	return c.Expire(ctx, key, ttl)
}

func (c *MemCache) HGet(_ context.Context, key, field string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (c *MemCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (c *MemCache) HDel(_ context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(c.hashes, key)
	}
	return nil
}

func (c *MemCache) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev := make([]string, len(values))
	for i, v := range values {
		rev[len(values)-1-i] = v
	}
	c.lists[key] = append(rev, c.lists[key]...)
	return nil
}

func (c *MemCache) RPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = append(c.lists[key], values...)
	return nil
}

func (c *MemCache) LPop(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[0]
	c.lists[key] = l[1:]
	return v, true, nil
}

func (c *MemCache) RPop(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[len(l)-1]
	c.lists[key] = l[:len(l)-1]
	return v, true, nil
}

func (c *MemCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func (c *MemCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		s = make(map[string]struct{})
		c.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (c *MemCache) SIsMember(_ context.Context, key, member string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sets[key][member]
	return ok, nil
}

func (c *MemCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.sets[key]
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (c *MemCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(s, m)
	}
	return nil
}

func (c *MemCache) ZAdd(_ context.Context, key, member string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		z = make(map[string]float64)
		c.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (c *MemCache) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	z := c.zsets[key]
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(z))
	for m, s := range z {
		pairs = append(pairs, pair{m, s})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	n := int64(len(pairs))
	if n == 0 {
		return nil, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, pairs[i].member)
	}
	return out, nil
}

func (c *MemCache) ZRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(z, m)
	}
	return nil
}

func (c *MemCache) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		return nil
	}
	for m, s := range z {
		if s >= min && s <= max {
			delete(z, m)
		}
	}
	return nil
}

func (c *MemCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.strings, k)
		delete(c.hashes, k)
		delete(c.lists, k)
		delete(c.sets, k)
		delete(c.zsets, k)
	}
	return nil
}

func (c *MemCache) Keys(_ context.Context, pattern string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range c.strings {
		if ok, _ := filepath.Match(pattern, k); ok {
			seen[k] = struct{}{}
		}
	}
	for k := range c.hashes {
		if ok, _ := filepath.Match(pattern, k); ok {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (c *MemCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.strings[key]
	if !ok || e.expires.IsZero() {
		return -1, nil
	}
	d := time.Until(e.expires)
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func (c *MemCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.strings[key]
	if !ok {
		e = valEntry{}
	}
	e.expires = time.Now().Add(ttl)
	c.strings[key] = e
	return nil
}

func (c *MemCache) AtomicIncr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.strings[key]
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	c.strings[key] = e
	return n, nil
}

func (c *MemCache) AtomicCAS(_ context.Context, key, oldValue, newValue string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.strings[key]
	if !ok || c.expired(e) || e.value != oldValue {
		return false, nil
	}
	e.value = newValue
	c.strings[key] = e
	return true, nil
}

func (c *MemCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.strings[key]; ok && !c.expired(e) {
		return false, nil
	}
	e := valEntry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.strings[key] = e
	return true, nil
}

func (c *MemCache) DeleteIfMatch(_ context.Context, key, expected string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.strings[key]
	if !ok || c.expired(e) || e.value != expected {
		return false, nil
	}
	delete(c.strings, key)
	return true, nil
}

func (c *MemCache) Close() error { return nil }
