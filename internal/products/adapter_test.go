package products

import (
	"context"
	"encoding/json"
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
	response json.RawMessage
	calls    []string
}

func (f *fakeGateway) Send(ctx context.Context, endpoint, method string, payload json.RawMessage) (json.RawMessage, error) {
	f.calls = append(f.calls, method+" "+endpoint)
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
	snaps   *memorySnapshots
	bus     *events.EventBus
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	monitor := connectivity.NewMonitor(online, testLogger())
	gw := &fakeGateway{}
	queue := &fakeQueue{}
	snaps := newMemorySnapshots()
	rt := router.New(monitor, gw, queue, snaps, testLogger())
	bus := events.NewEventBus()

	adapter := New(rt, snaps, bus, testLogger())
	t.Cleanup(adapter.Close)

	return &fixture{adapter: adapter, monitor: monitor, gateway: gw, queue: queue, snaps: snaps, bus: bus}
}

func sampleProduct(name string) models.Product {
	return models.Product{
		Name:       name,
		SalePrice:  10,
		Stock:      5,
		CategoryID: 1,
		Active:     true,
	}
}

func TestListOnlineCachesCatalog(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.response = json.RawMessage(`[{"id":1,"name":"milk","active":true}]`)

	list, err := f.adapter.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "milk", list[0].Name)

	cached := f.snaps.data[models.SnapshotProducts]
	assert.JSONEq(t, `[{"id":1,"name":"milk","active":true}]`, string(cached))
}

func TestListOfflineServedFromCache(t *testing.T) {
	f := newFixture(t, false)
	f.snaps.data[models.SnapshotProducts] = json.RawMessage(`[{"id":2,"name":"bread"}]`)

	list, err := f.adapter.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bread", list[0].Name)
	assert.Empty(t, f.gateway.calls)
}

func TestCreateOnline(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.response = json.RawMessage(`{"id":10,"name":"milk","active":true}`)

	res, err := f.adapter.Create(context.Background(), sampleProduct("milk"))
	require.NoError(t, err)

	assert.False(t, res.PendingSync)
	require.NotNil(t, res.Product)
	assert.Equal(t, int64(10), res.Product.ID)

	// The canonical product lands in the cached catalog.
	list, err := f.adapter.PendingChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	var cached []models.Product
	require.NoError(t, json.Unmarshal(f.snaps.data[models.SnapshotProducts], &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, int64(10), cached[0].ID)
}

func TestCreateOfflineIsOptimistic(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.adapter.Create(ctx, sampleProduct("milk"))
	require.NoError(t, err)

	assert.True(t, res.PendingSync)
	require.NotNil(t, res.Product)
	assert.True(t, strings.HasPrefix(res.Product.TempID, models.TempIDPrefix))
	assert.True(t, res.Product.Pending)
	assert.Len(t, f.queue.ops, 1)

	// The optimistic product is visible in the cached catalog.
	var cached []models.Product
	require.NoError(t, json.Unmarshal(f.snaps.data[models.SnapshotProducts], &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, res.Product.TempID, cached[0].TempID)
}

func TestOfflineChangeSummary(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.adapter.Create(ctx, sampleProduct("milk"))
	require.NoError(t, err)
	_, err = f.adapter.Update(ctx, 1, sampleProduct("bread"))
	require.NoError(t, err)
	_, err = f.adapter.Update(ctx, 2, sampleProduct("eggs"))
	require.NoError(t, err)

	summary, err := f.adapter.ChangeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Creates)
	assert.Equal(t, 2, summary.Updates)
	assert.Equal(t, 0, summary.Deletes)
	require.NotNil(t, summary.LastChangedAt)

	assert.Len(t, f.queue.ops, 3)
}

func TestSummaryClearsAfterReplay(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.adapter.Create(ctx, sampleProduct("milk"))
	require.NoError(t, err)
	_, err = f.adapter.Update(ctx, 1, sampleProduct("bread"))
	require.NoError(t, err)
	_, err = f.adapter.Update(ctx, 2, sampleProduct("eggs"))
	require.NoError(t, err)

	replays := []events.SyncedPayload{
		{Endpoint: "/products", Method: http.MethodPost, Data: json.RawMessage(`{"id":100,"name":"milk","active":true}`)},
		{Endpoint: "/products/1", Method: http.MethodPut},
		{Endpoint: "/products/2", Method: http.MethodPut},
	}
	for _, payload := range replays {
		payload.Timestamp = time.Now()
		require.NoError(t, f.bus.PublishJSON(events.EventDataSynced, payload))
	}

	summary, err := f.adapter.ChangeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0, summary.Creates)
	assert.Equal(t, 0, summary.Updates)

	// The temp product was swapped for the canonical one.
	var cached []models.Product
	require.NoError(t, json.Unmarshal(f.snaps.data[models.SnapshotProducts], &cached))
	for _, p := range cached {
		assert.NotEqual(t, created.Product.TempID, p.TempID)
	}
	found := false
	for _, p := range cached {
		if p.ID == 100 {
			found = true
		}
	}
	assert.True(t, found, "canonical product missing from catalog")
}

func TestDeleteOfflineRemovesFromCatalog(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.snaps.data[models.SnapshotProducts] = json.RawMessage(`[{"id":5,"name":"milk"},{"id":6,"name":"bread"}]`)

	res, err := f.adapter.Delete(ctx, 5)
	require.NoError(t, err)
	assert.True(t, res.PendingSync)

	var cached []models.Product
	require.NoError(t, json.Unmarshal(f.snaps.data[models.SnapshotProducts], &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, int64(6), cached[0].ID)

	summary, err := f.adapter.ChangeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deletes)
}

func TestUpdateOfflineMirrorsIntoCatalog(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.snaps.data[models.SnapshotProducts] = json.RawMessage(`[{"id":5,"name":"milk"}]`)

	res, err := f.adapter.Update(ctx, 5, sampleProduct("whole milk"))
	require.NoError(t, err)
	assert.True(t, res.PendingSync)

	var cached []models.Product
	require.NoError(t, json.Unmarshal(f.snaps.data[models.SnapshotProducts], &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, "whole milk", cached[0].Name)
	assert.True(t, cached[0].Pending)
}
