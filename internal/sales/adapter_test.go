package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"posync/internal/connectivity"
	"posync/internal/events"
	"posync/internal/models"
	"posync/internal/router"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	response  json.RawMessage
	err       error
	failCalls map[int]bool
	calls     int
	payloads  []string
}

func (f *fakeGateway) Send(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	f.calls++
	f.payloads = append(f.payloads, string(payload))
	if f.err != nil {
		return nil, f.err
	}
	if f.failCalls[f.calls] {
		return nil, errors.New("backend unavailable")
	}
	return f.response, nil
}

type fakeQueue struct {
	ops []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, endpoint, method string, payload json.RawMessage) (string, error) {
	id := fmt.Sprintf("%s-%s-%d", method, endpoint, len(f.ops))
	f.ops = append(f.ops, id)
	return id, nil
}

type memorySnapshots struct {
	data map[string]json.RawMessage
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[string]json.RawMessage)}
}

func (m *memorySnapshots) PutSnapshot(ctx context.Context, resourceType string, data json.RawMessage) error {
	m.data[resourceType] = data
	return nil
}

func (m *memorySnapshots) GetSnapshot(ctx context.Context, resourceType string) (json.RawMessage, error) {
	return m.data[resourceType], nil
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return &logger
}

type fixture struct {
	adapter *Adapter
	monitor *connectivity.Monitor
	gateway *fakeGateway
	queue   *fakeQueue
	bus     *events.EventBus
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	monitor := connectivity.NewMonitor(online, testLogger())
	gw := &fakeGateway{response: json.RawMessage(`{"id":42}`), failCalls: map[int]bool{}}
	queue := &fakeQueue{}
	snaps := newMemorySnapshots()
	rt := router.New(monitor, gw, queue, snaps, testLogger())
	bus := events.NewEventBus()

	adapter := New(rt, snaps, monitor, gw, bus, testLogger())
	t.Cleanup(adapter.Close)

	return &fixture{adapter: adapter, monitor: monitor, gateway: gw, queue: queue, bus: bus}
}

func sampleSale(total float64) models.Sale {
	return models.Sale{
		Items: []models.SaleItem{
			{ProductID: 1, Quantity: 2, UnitPrice: total / 2},
		},
		WithTax: true,
		Total:   total,
	}
}

func TestRegisterSaleOnline(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.adapter.RegisterSale(context.Background(), sampleSale(150))
	require.NoError(t, err)

	assert.False(t, res.PendingSync)
	assert.Empty(t, res.TempID)
	assert.JSONEq(t, `{"id":42}`, string(res.Data))
	assert.Empty(t, f.queue.ops)

	pending, err := f.adapter.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRegisterSaleOfflineQueuesAndProjects(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.adapter.RegisterSale(ctx, sampleSale(150))
	require.NoError(t, err)

	assert.True(t, res.PendingSync)
	assert.True(t, strings.HasPrefix(res.TempID, models.TempIDPrefix))
	assert.Equal(t, 0, f.gateway.calls, "offline registration must not hit the remote")
	assert.Len(t, f.queue.ops, 1)

	summary, err := f.adapter.PendingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 150.0, summary.Total)
	require.NotNil(t, summary.LastQueuedAt)
}

func TestSyncPendingReplaysQueuedSales(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.adapter.RegisterSale(ctx, sampleSale(150))
	require.NoError(t, err)
	tempID := res.TempID

	f.monitor.SetOnline(true)

	synced, failed, err := f.adapter.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed)

	// Only the clean sale payload goes over the wire.
	require.Len(t, f.gateway.payloads, 1)
	var sent models.Sale
	require.NoError(t, json.Unmarshal([]byte(f.gateway.payloads[0]), &sent))
	assert.Equal(t, 150.0, sent.Total)
	assert.NotContains(t, f.gateway.payloads[0], "temp_id")

	summary, err := f.adapter.PendingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, 0.0, summary.Total)

	serverID, ok := f.adapter.SyncedID(tempID)
	require.True(t, ok)
	assert.Equal(t, int64(42), serverID)
}

func TestSyncPendingWhileOffline(t *testing.T) {
	f := newFixture(t, false)

	_, _, err := f.adapter.SyncPending(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestSyncPendingPartialFailure(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.adapter.RegisterSale(ctx, sampleSale(100))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond) // distinct temp ids
	second, err := f.adapter.RegisterSale(ctx, sampleSale(50))
	require.NoError(t, err)
	require.NotEqual(t, first.TempID, second.TempID)

	f.monitor.SetOnline(true)
	f.gateway.failCalls[2] = true

	synced, failed, err := f.adapter.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, failed)

	pending, err := f.adapter.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.TempID, pending[0].TempID)
	assert.Equal(t, 50.0, pending[0].Sale.Total)
}

func TestReplayEventPrunesOldestPendingSale(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.adapter.RegisterSale(ctx, sampleSale(100))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.adapter.RegisterSale(ctx, sampleSale(50))
	require.NoError(t, err)

	require.NoError(t, f.bus.PublishJSON(events.EventDataSynced, events.SyncedPayload{
		OperationID: "POST-/sales-0",
		Endpoint:    "/sales",
		Method:      http.MethodPost,
		Data:        json.RawMessage(`{"id":77}`),
		Timestamp:   time.Now(),
	}))

	pending, err := f.adapter.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.TempID, pending[0].TempID)

	serverID, ok := f.adapter.SyncedID(first.TempID)
	require.True(t, ok)
	assert.Equal(t, int64(77), serverID)
}

func TestReplayEventIgnoresOtherEndpoints(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.adapter.RegisterSale(ctx, sampleSale(100))
	require.NoError(t, err)

	require.NoError(t, f.bus.PublishJSON(events.EventDataSynced, events.SyncedPayload{
		Endpoint: "/products",
		Method:   http.MethodPost,
	}))

	pending, err := f.adapter.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "product replays must not touch the sales projection")
}
