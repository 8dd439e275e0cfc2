package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrAlreadyHeld = errors.New("lock already held by this process")
var ErrNotAcquired = errors.New("lock not acquired")

const campaignKeyPrefix = "campaigns:dispatch:"

// Locker abstracts distributed locking implementations.
type Locker interface {
	// Acquire attempts to lock a key for the given TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) error
	// Extend pushes the expiry of a held lock to ttl from now.
	Extend(ctx context.Context, key string, ttl time.Duration) error
	// Release frees the lock for the given key.
	Release(ctx context.Context, key string) error
}

// CampaignKey is the lock guarding dispatch of a single campaign.
func CampaignKey(campaignID string) string {
	return campaignKeyPrefix + campaignID
}

// Hold acquires key, runs fn and releases the key afterwards. The lock is
// extended every ttl/2 while fn runs.
func Hold(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx, key, ttl); err != nil {
		return err
	}
	defer func() {
		_ = l.Release(context.WithoutCancel(ctx), key)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(max(ttl/2, time.Second))
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(runCtx, key, ttl); err != nil && runCtx.Err() == nil {
					lost <- fmt.Errorf("extend lock %s: %w", key, err)
					cancel()
					return
				}
			}
		}
	}()

	err := fn(runCtx)
	select {
	case lostErr := <-lost:
		return errors.Join(lostErr, err)
	default:
		return err
	}
}
