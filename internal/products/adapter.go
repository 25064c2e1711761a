package products

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"posync/internal/cache"
	"posync/internal/events"
	"posync/internal/models"
	"posync/internal/router"

	"github.com/rs/zerolog"
)

const productsEndpoint = "/products"

// MutationResult carries either the canonical product returned by the
// server or the optimistic local version awaiting sync.
type MutationResult struct {
	Product     *models.Product `json:"product,omitempty"`
	PendingSync bool            `json:"pendingSync"`
}

// Adapter handles catalog edits with offline support. Next to the
// generic operation queue it maintains a human-readable change log used
// for the pending-changes badge, so the summary never has to re-derive
// intent from opaque queue payloads.
type Adapter struct {
	router      *router.Router
	snapshots   cache.SnapshotRepository
	logger      *zerolog.Logger
	unsubscribe func()
}

func New(rt *router.Router, snapshots cache.SnapshotRepository, bus *events.EventBus, logger *zerolog.Logger) *Adapter {
	a := &Adapter{
		router:    rt,
		snapshots: snapshots,
		logger:    logger,
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

// WarmCache seeds the product snapshot so offline reads have something
// to serve. Failures are logged, not fatal; the terminal may simply be
// starting offline.
func (a *Adapter) WarmCache(ctx context.Context) {
	if _, err := a.List(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("product cache warm-up failed")
	}
}

// List returns the catalog, from the backend when reachable and from the
// snapshot cache otherwise.
func (a *Adapter) List(ctx context.Context) ([]models.Product, error) {
	raw, err := a.router.Get(ctx, productsEndpoint, models.SnapshotProducts)
	if err != nil {
		return nil, err
	}

	var list []models.Product
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return list, nil
}

// Create adds a product. Offline creates get a temporary id and show up
// in the cached catalog immediately.
func (a *Adapter) Create(ctx context.Context, product models.Product) (*MutationResult, error) {
	payload, err := json.Marshal(product)
	if err != nil {
		return nil, fmt.Errorf("encode product: %w", err)
	}

	res, err := a.router.Post(ctx, productsEndpoint, payload)
	if err != nil {
		return nil, err
	}

	if !res.PendingSync {
		created, err := decodeProduct(res.Data)
		if err != nil {
			return nil, err
		}
		if err := a.upsertCached(ctx, created); err != nil {
			return nil, err
		}
		return &MutationResult{Product: &created}, nil
	}

	product.TempID = fmt.Sprintf("%s%d", models.TempIDPrefix, time.Now().UnixMilli())
	product.Pending = true
	if err := a.applyLocal(ctx, models.ActionCreate, product); err != nil {
		return nil, err
	}
	return &MutationResult{Product: &product, PendingSync: true}, nil
}

// Update edits a product, optimistically when queued.
func (a *Adapter) Update(ctx context.Context, id int64, product models.Product) (*MutationResult, error) {
	product.ID = id
	payload, err := json.Marshal(product)
	if err != nil {
		return nil, fmt.Errorf("encode product: %w", err)
	}

	res, err := a.router.Put(ctx, fmt.Sprintf("%s/%d", productsEndpoint, id), payload)
	if err != nil {
		return nil, err
	}

	if !res.PendingSync {
		updated, err := decodeProduct(res.Data)
		if err != nil {
			return nil, err
		}
		if err := a.upsertCached(ctx, updated); err != nil {
			return nil, err
		}
		return &MutationResult{Product: &updated}, nil
	}

	product.Pending = true
	if err := a.applyLocal(ctx, models.ActionUpdate, product); err != nil {
		return nil, err
	}
	return &MutationResult{Product: &product, PendingSync: true}, nil
}

// Delete removes a product, dropping it from the cached catalog right
// away even when the server has not confirmed yet.
func (a *Adapter) Delete(ctx context.Context, id int64) (*MutationResult, error) {
	res, err := a.router.Delete(ctx, fmt.Sprintf("%s/%d", productsEndpoint, id))
	if err != nil {
		return nil, err
	}

	if !res.PendingSync {
		if err := a.removeCached(ctx, id); err != nil {
			return nil, err
		}
		return &MutationResult{}, nil
	}

	if err := a.applyLocal(ctx, models.ActionDelete, models.Product{ID: id}); err != nil {
		return nil, err
	}
	return &MutationResult{PendingSync: true}, nil
}

// applyLocal records the change-log entry and mirrors the edit into the
// cached catalog so the UI reflects it before the server confirms.
func (a *Adapter) applyLocal(ctx context.Context, action string, product models.Product) error {
	key := fmt.Sprintf("%d", product.ID)
	if product.TempID != "" {
		key = product.TempID
	}
	change := models.ProductChange{
		ID:        fmt.Sprintf("%s-%s-%d", action, key, time.Now().UnixMilli()),
		Action:    action,
		Product:   product,
		ChangedAt: time.Now(),
	}

	err := cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotProductChanges, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodeChanges(current)
		if err != nil {
			return nil, err
		}
		list = append(list, change)
		return json.Marshal(list)
	})
	if err != nil {
		return err
	}

	switch action {
	case models.ActionCreate, models.ActionUpdate:
		return a.upsertCached(ctx, product)
	case models.ActionDelete:
		return a.removeCached(ctx, product.ID)
	}
	return nil
}

func (a *Adapter) upsertCached(ctx context.Context, product models.Product) error {
	return cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotProducts, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodeProducts(current)
		if err != nil {
			return nil, err
		}

		for i := range list {
			if sameProduct(list[i], product) {
				list[i] = product
				return json.Marshal(list)
			}
		}
		return json.Marshal(append(list, product))
	})
}

func (a *Adapter) removeCached(ctx context.Context, id int64) error {
	return cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotProducts, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodeProducts(current)
		if err != nil {
			return nil, err
		}

		kept := list[:0]
		for _, p := range list {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		return json.Marshal(kept)
	})
}

// PendingChanges returns the change log in creation order.
func (a *Adapter) PendingChanges(ctx context.Context) ([]models.ProductChange, error) {
	raw, err := a.snapshots.GetSnapshot(ctx, models.SnapshotProductChanges)
	if err != nil {
		return nil, err
	}
	return decodeChanges(raw)
}

// ChangeSummary counts pending edits by intent for the status badge.
func (a *Adapter) ChangeSummary(ctx context.Context) (models.ChangeSummary, error) {
	changes, err := a.PendingChanges(ctx)
	if err != nil {
		return models.ChangeSummary{}, err
	}

	summary := models.ChangeSummary{Total: len(changes)}
	for _, c := range changes {
		switch c.Action {
		case models.ActionCreate:
			summary.Creates++
		case models.ActionUpdate:
			summary.Updates++
		case models.ActionDelete:
			summary.Deletes++
		}
		if summary.LastChangedAt == nil || c.ChangedAt.After(*summary.LastChangedAt) {
			changedAt := c.ChangedAt
			summary.LastChangedAt = &changedAt
		}
	}
	return summary, nil
}

// handleSynced clears the oldest matching change-log entry once the
// scheduler replays a product operation, and swaps a temp-id create for
// the canonical product the server returned.
func (a *Adapter) handleSynced(ev *events.Event) error {
	var payload events.SyncedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return err
	}
	if !isProductsEndpoint(payload.Endpoint) {
		return nil
	}

	action := actionForMethod(payload.Method)
	if action == "" {
		return nil
	}

	ctx := context.Background()
	var cleared *models.ProductChange
	err := cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotProductChanges, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodeChanges(current)
		if err != nil {
			return nil, err
		}
		for i, c := range list {
			if c.Action == action {
				cleared = &list[i]
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		return json.Marshal(list)
	})
	if err != nil || cleared == nil {
		return err
	}

	if action == models.ActionCreate && len(payload.Data) > 0 {
		if canonical, decodeErr := decodeProduct(payload.Data); decodeErr == nil {
			if rmErr := a.replaceTemp(ctx, cleared.Product.TempID, canonical); rmErr != nil {
				return rmErr
			}
		}
	}

	a.logger.Info().Str("change_id", cleared.ID).Str("action", action).Msg("product change reconciled after replay")
	return nil
}

// replaceTemp swaps the locally created product for the server version.
func (a *Adapter) replaceTemp(ctx context.Context, tempID string, canonical models.Product) error {
	if tempID == "" {
		return a.upsertCached(ctx, canonical)
	}
	return cache.ApplyOptimistic(ctx, a.snapshots, models.SnapshotProducts, func(current json.RawMessage) (json.RawMessage, error) {
		list, err := decodeProducts(current)
		if err != nil {
			return nil, err
		}
		for i := range list {
			if list[i].TempID == tempID {
				list[i] = canonical
				return json.Marshal(list)
			}
		}
		return json.Marshal(append(list, canonical))
	})
}

func sameProduct(a, b models.Product) bool {
	if b.TempID != "" {
		return a.TempID == b.TempID
	}
	return a.ID == b.ID && a.ID != 0
}

func isProductsEndpoint(endpoint string) bool {
	return endpoint == productsEndpoint || len(endpoint) > len(productsEndpoint) && endpoint[:len(productsEndpoint)+1] == productsEndpoint+"/"
}

func actionForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return models.ActionCreate
	case http.MethodPut:
		return models.ActionUpdate
	case http.MethodDelete:
		return models.ActionDelete
	}
	return ""
}

func decodeProduct(raw json.RawMessage) (models.Product, error) {
	var p models.Product
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}

func decodeProducts(raw json.RawMessage) ([]models.Product, error) {
	if len(raw) == 0 {
		return []models.Product{}, nil
	}
	var list []models.Product
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return list, nil
}

func decodeChanges(raw json.RawMessage) ([]models.ProductChange, error) {
	if len(raw) == 0 {
		return []models.ProductChange{}, nil
	}
	var list []models.ProductChange
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode product changes: %w", err)
	}
	return list, nil
}
