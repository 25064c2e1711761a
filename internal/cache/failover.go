package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverSnapshotRepository writes through to the durable tier first
// and treats the fast tier as best-effort. Reads prefer the fast tier
// while it is healthy and fall back otherwise, so a dead redis never
// takes the cache down with it.
type FailoverSnapshotRepository struct {
	fast      SnapshotRepository
	durable   SnapshotRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSnapshotRepository(fast, durable SnapshotRepository, logger *zerolog.Logger) *FailoverSnapshotRepository {
	return &FailoverSnapshotRepository{
		fast:    fast,
		durable: durable,
		logger:  logger,
	}
}

func (r *FailoverSnapshotRepository) PutSnapshot(ctx context.Context, resourceType string, data json.RawMessage) error {
	// Durable tier must succeed; it backs the durability invariant.
	if err := r.durable.PutSnapshot(ctx, resourceType, data); err != nil {
		return err
	}

	if r.fast == nil || r.isDown.Load() {
		r.maybeRecover(ctx, resourceType, data)
		return nil
	}

	if err := r.fast.PutSnapshot(ctx, resourceType, data); err != nil {
		r.markDown(err)
	}
	return nil
}

func (r *FailoverSnapshotRepository) GetSnapshot(ctx context.Context, resourceType string) (json.RawMessage, error) {
	if r.fast != nil && !r.isDown.Load() {
		data, err := r.fast.GetSnapshot(ctx, resourceType)
		if err == nil && data != nil {
			return data, nil
		}
		if err != nil {
			r.markDown(err)
		}
	}

	return r.durable.GetSnapshot(ctx, resourceType)
}

func (r *FailoverSnapshotRepository) markDown(err error) {
	if r.isDown.CompareAndSwap(false, true) && r.logger != nil {
		r.logger.Error().Err(err).Msg("fast snapshot tier failed, falling back to durable store")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// maybeRecover retries the fast tier after a minute of downtime.
func (r *FailoverSnapshotRepository) maybeRecover(ctx context.Context, resourceType string, data json.RawMessage) {
	if r.fast == nil || !r.isDown.Load() {
		return
	}
	if time.Since(time.Unix(0, r.lastCheck.Load())) < time.Minute {
		return
	}

	if err := r.fast.PutSnapshot(ctx, resourceType, data); err != nil {
		r.lastCheck.Store(time.Now().UnixNano())
		return
	}
	r.isDown.Store(false)
	if r.logger != nil {
		r.logger.Info().Msg("fast snapshot tier recovered")
	}
}
