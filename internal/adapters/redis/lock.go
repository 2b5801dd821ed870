package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kieranvance/pulsetrader/internal/pipeline"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// pipelineLock is one resource-scoped redlock acquisition, satisfying
// internal/pipeline.Lock.
type pipelineLock struct {
	client *Client
	name   string
	ttl    time.Duration
}

// TryAcquire attempts a non-blocking RedLock acquisition.
func (l *pipelineLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := l.client.lockManager.Lock(ctx, l.name, l.ttl)
	if err != nil {
		return false, nil
	}
	return expiry > 0, nil
}

// Release unlocks the resource.
func (l *pipelineLock) Release(ctx context.Context) error {
	if err := l.client.lockManager.UnLock(ctx, l.name); err != nil {
		return fmt.Errorf("release lock %s: %w", l.name, err)
	}
	return nil
}

// LockFactory builds C6's per-timeframe pipeline.LockFactory, keying each
// lock as "pipeline:<timeframe>" with the given TTL.
func (c *Client) LockFactory(ttl time.Duration) pipeline.LockFactory {
	return func(timeframe models.Timeframe) pipeline.Lock {
		return &pipelineLock{client: c, name: fmt.Sprintf("pipeline:%s", timeframe), ttl: ttl}
	}
}
