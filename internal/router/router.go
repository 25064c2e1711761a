package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"posync/internal/cache"
	"posync/internal/connectivity"
	"posync/internal/metrics"

	"github.com/rs/zerolog"
)

// ErrNoOfflineData is returned for a read issued offline with nothing in
// the snapshot cache.
var ErrNoOfflineData = errors.New("no offline data available")

// Sender performs the remote call. Satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error)
}

// Queue records write intents for later replay. Satisfied by *store.Store.
type Queue interface {
	Enqueue(ctx context.Context, endpoint, method string, payload json.RawMessage) (string, error)
}

// Result is the outcome of a write request. When PendingSync is set the
// write was durably queued instead of delivered, and Data is empty.
type Result struct {
	Success     bool            `json:"success"`
	Offline     bool            `json:"offline"`
	PendingSync bool            `json:"pendingSync"`
	OperationID string          `json:"operation_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Router is the facade the rest of the application talks to. Every call
// resolves promptly with either a real or an optimistic result; nothing
// blocks waiting for connectivity.
type Router struct {
	monitor   *connectivity.Monitor
	gateway   Sender
	queue     Queue
	snapshots cache.SnapshotRepository
	logger    *zerolog.Logger
}

func New(monitor *connectivity.Monitor, gw Sender, queue Queue, snapshots cache.SnapshotRepository, logger *zerolog.Logger) *Router {
	return &Router{
		monitor:   monitor,
		gateway:   gw,
		queue:     queue,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Get reads from the remote backend when online, refreshing the snapshot
// cache on success and falling back to it on failure. Offline reads are
// served from the cache or fail with ErrNoOfflineData.
func (r *Router) Get(ctx context.Context, endpoint, resourceType string) (json.RawMessage, error) {
	if !r.monitor.Online() {
		return r.fromCache(ctx, resourceType)
	}

	data, err := r.gateway.Send(ctx, endpoint, http.MethodGet, nil)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("remote read failed, trying cache")
		}
		if cached, cacheErr := r.fromCache(ctx, resourceType); cacheErr == nil {
			return cached, nil
		}
		return nil, err
	}

	if resourceType != "" {
		if err := r.snapshots.PutSnapshot(ctx, resourceType, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (r *Router) fromCache(ctx context.Context, resourceType string) (json.RawMessage, error) {
	if resourceType == "" {
		return nil, ErrNoOfflineData
	}
	cached, err := r.snapshots.GetSnapshot(ctx, resourceType)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, ErrNoOfflineData
	}
	return cached, nil
}

// Write attempts the remote call when online and demotes to the durable
// queue on failure or while offline. The optimistic result is returned
// only after the operation is committed to storage.
func (r *Router) Write(ctx context.Context, endpoint, method string, payload json.RawMessage) (*Result, error) {
	if r.monitor.Online() {
		data, err := r.gateway.Send(ctx, endpoint, method, payload)
		if err == nil {
			return &Result{Success: true, Data: data}, nil
		}
		if r.logger != nil {
			r.logger.Warn().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("remote write failed, queueing for sync")
		}
	}

	id, err := r.queue.Enqueue(ctx, endpoint, method, payload)
	if err != nil {
		// Storage failure is fatal to the write path; no silent swallow.
		return nil, err
	}
	metrics.IncEnqueued()

	return &Result{Success: true, Offline: true, PendingSync: true, OperationID: id}, nil
}

func (r *Router) Post(ctx context.Context, endpoint string, payload json.RawMessage) (*Result, error) {
	return r.Write(ctx, endpoint, http.MethodPost, payload)
}

func (r *Router) Put(ctx context.Context, endpoint string, payload json.RawMessage) (*Result, error) {
	return r.Write(ctx, endpoint, http.MethodPut, payload)
}

func (r *Router) Delete(ctx context.Context, endpoint string) (*Result, error) {
	return r.Write(ctx, endpoint, http.MethodDelete, nil)
}
