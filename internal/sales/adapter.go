package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"posync/internal/cache"
	"posync/internal/connectivity"
	"posync/internal/events"
	"posync/internal/models"
	"posync/internal/router"

	"github.com/rs/zerolog"
)

const salesEndpoint = "/sales"

// ErrOffline is returned by SyncPending when no connectivity is present.
var ErrOffline = errors.New("cannot sync sales while offline")

// Sender performs direct replay calls during a manual sales sync.
type Sender interface {
	Send(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error)
}

// RegisterResult is what the cashier-facing layer gets back. A queued
// sale carries a temporary id until the server assigns a canonical one.
type RegisterResult struct {
	Data        json.RawMessage `json:"data,omitempty"`
	TempID      string          `json:"temp_id,omitempty"`
	PendingSync bool            `json:"pendingSync"`
}

// Adapter handles sales with offline support: optimistic local
// projection plus durable queueing, and a manual replay path that
// addresses sales by their temporary identifier.
type Adapter struct {
	router    *router.Router
	snapshots cache.SnapshotRepository
	monitor   *connectivity.Monitor
	gateway   Sender
	logger    *zerolog.Logger

	mu          sync.Mutex
	syncedIDs   map[string]int64
	unsubscribe func()
}

func New(rt *router.Router, snapshots cache.SnapshotRepository, monitor *connectivity.Monitor, gw Sender, bus *events.EventBus, logger *zerolog.Logger) *Adapter {
	a := &Adapter{
		router:    rt,
		snapshots: snapshots,
		monitor:   monitor,
		gateway:   gw,
		logger:    logger,
		syncedIDs: make(map[string]int64),
	}
	if bus != nil {
		a.unsubscribe = bus.Subscribe(events.EventDataSynced, a.handleSynced)
	}
	return a
}

// Close detaches the adapter from the event bus.
func (a *Adapter) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// RegisterSale posts the sale straight to the backend when possible.
// When the write is demoted to the queue, the sale also joins the local
// pending-sales projection under a temporary id so the register screen
// reflects it immediately.
func (a *Adapter) RegisterSale(ctx context.Context, sale models.Sale) (*RegisterResult, error) {
	payload, err := json.Marshal(sale)
	if err != nil {
		return nil, fmt.Errorf("encode sale: %w", err)
	}

	res, err := a.router.Post(ctx, salesEndpoint, payload)
	if err != nil {
		return nil, err
	}
	if !res.PendingSync {
		return &RegisterResult{Data: res.Data}, nil
	}

	pending := models.PendingSale{
		TempID:   fmt.Sprintf("%s%d", models.TempIDPrefix, time.Now().UnixMilli()),
		Sale:     sale,
		QueuedAt: time.Now(),
	}
	if err := a.appendPending(ctx, pending); err != nil {
		return nil, err
	}

	a.logger.Info().Str("temp_id", pending.TempID).Float64("total", sale.Total).Msg("sale queued for sync")
	return &RegisterResult{TempID: pending.TempID, PendingSync: true}, nil
}

func (a *Adapter) appendPending(ctx context.Context, pending models.PendingSale) error {
	return cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotPendingSales, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodePending(current)
		if err != nil {
			return nil, err
		}
		list = append(list, pending)
		return json.Marshal(list)
	})
}

// Pending returns the locally queued sales in creation order.
func (a *Adapter) Pending(ctx context.Context) ([]models.PendingSale, error) {
	raw, err := a.snapshots.GetSnapshot(ctx, models.SnapshotPendingSales)
	if err != nil {
		return nil, err
	}
	return decodePending(raw)
}

// PendingSummary folds the pending list into the badge numbers shown in
// the status indicator. Pure read-side projection, never persisted.
func (a *Adapter) PendingSummary(ctx context.Context) (models.SalesSummary, error) {
	pending, err := a.Pending(ctx)
	if err != nil {
		return models.SalesSummary{}, err
	}

	summary := models.SalesSummary{Count: len(pending)}
	for _, p := range pending {
		summary.Total += p.Sale.Total
		if summary.LastQueuedAt == nil || p.QueuedAt.After(*summary.LastQueuedAt) {
			queuedAt := p.QueuedAt
			summary.LastQueuedAt = &queuedAt
		}
	}
	return summary, nil
}

// RemovePending discards one queued sale by its temporary id.
func (a *Adapter) RemovePending(ctx context.Context, tempID string) error {
	return cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotPendingSales, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodePending(current)
		if err != nil {
			return nil, err
		}
		kept := list[:0]
		for _, p := range list {
			if p.TempID != tempID {
				kept = append(kept, p)
			}
		}
		return json.Marshal(kept)
	})
}

// SyncPending replays the queued sales directly, in order. Each success
// removes the sale by temporary id and records the server-assigned id.
// Only the clean sale payload goes over the wire; local bookkeeping
// stays local.
func (a *Adapter) SyncPending(ctx context.Context) (synced, failed int, err error) {
	if !a.monitor.Online() {
		return 0, 0, ErrOffline
	}

	pending, err := a.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, p := range pending {
		payload, marshalErr := json.Marshal(p.Sale)
		if marshalErr != nil {
			failed++
			continue
		}

		resp, sendErr := a.gateway.Send(ctx, salesEndpoint, http.MethodPost, payload)
		if sendErr != nil {
			a.logger.Warn().Err(sendErr).Str("temp_id", p.TempID).Msg("sale sync failed")
			failed++
			continue
		}

		if rmErr := a.RemovePending(ctx, p.TempID); rmErr != nil {
			return synced, failed, rmErr
		}
		a.recordServerID(p.TempID, resp)
		synced++
	}

	return synced, failed, nil
}

// SyncedID reports the canonical id the server assigned to a sale that
// was queued under tempID, once it has been replayed.
func (a *Adapter) SyncedID(tempID string) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.syncedIDs[tempID]
	return id, ok
}

// handleSynced prunes the projection when the scheduler replays a queued
// sale operation. The generic queue and the pending-sales list are both
// FIFO, so the oldest projection entry corresponds to the replayed op.
func (a *Adapter) handleSynced(ev *events.Event) error {
	var payload events.SyncedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return err
	}
	if payload.Endpoint != salesEndpoint || payload.Method != http.MethodPost {
		return nil
	}

	ctx := context.Background()
	pending, err := a.Pending(ctx)
	if err != nil || len(pending) == 0 {
		return err
	}

	oldest := pending[0]
	if err := a.RemovePending(ctx, oldest.TempID); err != nil {
		return err
	}
	a.recordServerID(oldest.TempID, payload.Data)
	a.logger.Info().Str("temp_id", oldest.TempID).Msg("pending sale reconciled after replay")
	return nil
}

func (a *Adapter) recordServerID(tempID string, resp json.RawMessage) {
	if len(resp) == 0 {
		return
	}
	var body struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(resp, &body); err != nil || body.ID == 0 {
		return
	}

	a.mu.Lock()
	a.syncedIDs[tempID] = body.ID
	a.mu.Unlock()
}

func decodePending(raw json.RawMessage) ([]models.PendingSale, error) {
	if len(raw) == 0 {
		return []models.PendingSale{}, nil
	}
	var list []models.PendingSale
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode pending sales: %w", err)
	}
	return list, nil
}
