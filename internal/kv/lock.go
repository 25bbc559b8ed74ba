package kv

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nopeoplecar/uvdispatch/internal/errs"
)

// Lock is a distributed mutex over one KV key. Acquire via TryLock;
// released via Unlock, which only succeeds if this acquirer still holds
// the token.
type Lock struct {
	cache Cache
	key   string
	token string
	ttl   time.Duration
}

// TryLock attempts to acquire key for ttl using an atomic SET NX PX.
// Returns (nil, false, nil) on contention, not an error — callers branch
// on the bool, matching the claim loop's "continue, leave it for next
// cycle" behavior.
func TryLock(ctx context.Context, cache Cache, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{cache: cache, key: key, token: token, ttl: ttl}, true, nil
}

// Renew extends the lock's TTL, failing if it has since expired or been
// stolen by another acquirer.
func (l *Lock) Renew(ctx context.Context) error {
	cur, ok, err := l.cache.Get(ctx, l.key)
	if err != nil {
		return err
	}
	if !ok || cur != l.token {
		return errors.New("kv: lock no longer held")
	}
	return l.cache.Set(ctx, l.key, l.token, l.ttl)
}

// Unlock releases the lock only if still held by this acquirer (a
// token-compare release).
func (l *Lock) Unlock(ctx context.Context) error {
	ok, err := l.cache.DeleteIfMatch(ctx, l.key, l.token)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrLockContended
	}
	return nil
}
