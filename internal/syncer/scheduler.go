package syncer

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"posync/internal/connectivity"
	"posync/internal/events"
	"posync/internal/metrics"
	"posync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OperationStore is the slice of the durable store the scheduler drains.
type OperationStore interface {
	ListPending(ctx context.Context) ([]models.PendingOperation, error)
	Remove(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) (int, error)
	QueueDepth(ctx context.Context) (int, error)
}

// Sender performs the replay call. Satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error)
}

// Scheduler owns the reconciliation loop. It replays the pending queue
// strictly in creation order whenever connectivity is present, on a
// recurring timer and immediately on reconnect. A single flag guarantees
// at most one pass runs at a time; overlapping triggers are skipped.
type Scheduler struct {
	store      OperationStore
	gateway    Sender
	monitor    *connectivity.Monitor
	bus        *events.EventBus
	interval   time.Duration
	retryLimit int
	syncing    atomic.Bool
	trigger    chan struct{}
	logger     *zerolog.Logger
}

func New(store OperationStore, gw Sender, monitor *connectivity.Monitor, bus *events.EventBus, interval time.Duration, retryLimit int, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Duration(models.DefaultSyncIntervalSeconds) * time.Second
	}
	if retryLimit <= 0 {
		retryLimit = models.DefaultRetryLimit
	}

	return &Scheduler{
		store:      store,
		gateway:    gw,
		monitor:    monitor,
		bus:        bus,
		interval:   interval,
		retryLimit: retryLimit,
		trigger:    make(chan struct{}, 1),
		logger:     logger,
	}
}

// Syncing reports whether a pass is currently running.
func (s *Scheduler) Syncing() bool {
	return s.syncing.Load()
}

// TriggerSync requests an immediate pass without blocking. A trigger
// arriving while a pass runs is dropped, not queued.
func (s *Scheduler) TriggerSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is done: one pass right away if online,
// a pass on every reconnect, and a pass per timer tick while reachable.
func (s *Scheduler) Run(ctx context.Context) {
	unsubscribe := s.monitor.Subscribe(func(online bool) {
		if online {
			s.TriggerSync()
		}
	})
	defer unsubscribe()

	if s.monitor.Online() {
		s.SyncPending(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.monitor.Online() {
				s.SyncPending(ctx)
			}
		case <-s.trigger:
			s.SyncPending(ctx)
		}
	}
}

// SyncPending executes one reconciliation pass. It returns false when
// another pass already holds the flag and this call was a no-op.
func (s *Scheduler) SyncPending(ctx context.Context) bool {
	if !s.syncing.CompareAndSwap(false, true) {
		return false
	}
	defer s.syncing.Store(false)

	if !s.monitor.Online() {
		return true
	}

	ops, err := s.store.ListPending(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sync: list pending")
		return true
	}
	if len(ops) == 0 {
		return true
	}

	passID := uuid.NewString()
	started := time.Now()
	s.logger.Info().Str("pass_id", passID).Int("pending", len(ops)).Msg("sync pass started")

	for i := range ops {
		s.replay(ctx, passID, &ops[i])
	}

	metrics.ObservePassDuration(time.Since(started).Seconds())
	if depth, err := s.store.QueueDepth(ctx); err == nil {
		metrics.SetQueueDepth(depth)
	}
	s.logger.Info().Str("pass_id", passID).Dur("took", time.Since(started)).Msg("sync pass finished")
	return true
}

func (s *Scheduler) replay(ctx context.Context, passID string, op *models.PendingOperation) {
	// An undecodable payload can never replay successfully; drop it now
	// instead of burning retries against the backend.
	if err := op.Validate(); err != nil {
		s.drop(ctx, op, err)
		return
	}

	resp, err := s.gateway.Send(ctx, op.Endpoint, op.Method, op.Payload)
	if err == nil {
		if rmErr := s.store.Remove(ctx, op.ID); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("operation_id", op.ID).Msg("sync: remove replayed operation")
			return
		}
		metrics.IncReplayed(op.Endpoint)
		s.publish(events.EventDataSynced, events.SyncedPayload{
			OperationID: op.ID,
			Endpoint:    op.Endpoint,
			Method:      op.Method,
			Data:        resp,
			Timestamp:   time.Now(),
		})
		return
	}

	s.logger.Warn().Err(err).Str("pass_id", passID).Str("operation_id", op.ID).Msg("sync: replay failed")

	count, retryErr := s.store.IncrementRetry(ctx, op.ID)
	if retryErr != nil {
		s.logger.Error().Err(retryErr).Str("operation_id", op.ID).Msg("sync: increment retry count")
		return
	}

	if count <= s.retryLimit {
		return
	}

	op.RetryCount = count
	s.drop(ctx, op, err)
}

// drop removes an operation for good. The drop is surfaced through the
// event bus, never silent.
func (s *Scheduler) drop(ctx context.Context, op *models.PendingOperation, lastErr error) {
	if rmErr := s.store.Remove(ctx, op.ID); rmErr != nil {
		s.logger.Error().Err(rmErr).Str("operation_id", op.ID).Msg("sync: remove dropped operation")
		return
	}
	metrics.IncDropped()
	s.logger.Error().Str("operation_id", op.ID).Int("retries", op.RetryCount).Msg("sync: operation dropped")
	s.publish(events.EventSyncDropped, events.DroppedPayload{
		OperationID: op.ID,
		Endpoint:    op.Endpoint,
		Method:      op.Method,
		Retries:     op.RetryCount,
		LastError:   lastErr.Error(),
		Timestamp:   time.Now(),
	})
}

func (s *Scheduler) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("sync: publish event")
	}
}
