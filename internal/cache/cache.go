package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// SnapshotRepository is the read/write contract for the snapshot cache.
// The durable store implements it directly; redis acts as a faster tier
// in front of it.
type SnapshotRepository interface {
	PutSnapshot(ctx context.Context, resourceType string, data json.RawMessage) error
	GetSnapshot(ctx context.Context, resourceType string) (json.RawMessage, error)
}

// ApplyOptimistic loads a snapshot, runs mutate over it and writes the
// result back. A nil input to mutate means no snapshot exists yet. All
// domain adapters share this instead of re-implementing the
// read-modify-write cycle per entity type.
func ApplyOptimistic(ctx context.Context, repo SnapshotRepository, resourceType string, mutate func(json.RawMessage) (json.RawMessage, error)) error {
	current, err := repo.GetSnapshot(ctx, resourceType)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", resourceType, err)
	}

	next, err := mutate(current)
	if err != nil {
		return fmt.Errorf("mutate snapshot %s: %w", resourceType, err)
	}

	if err := repo.PutSnapshot(ctx, resourceType, next); err != nil {
		return fmt.Errorf("store snapshot %s: %w", resourceType, err)
	}
	return nil
}
