package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/connectivity"
	"github.com/charlesng35/quotesync/internal/coordinator"
	"github.com/charlesng35/quotesync/internal/database/testutil"
	"github.com/charlesng35/quotesync/internal/durable"
	"github.com/charlesng35/quotesync/internal/kvstore"
	"github.com/charlesng35/quotesync/internal/migration"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/internal/queue"
	"github.com/charlesng35/quotesync/internal/realtime"
	"github.com/charlesng35/quotesync/internal/remote"
	"github.com/charlesng35/quotesync/internal/services"
	"github.com/charlesng35/quotesync/pkg/response"
)

type env struct {
	t       *testing.T
	router  *gin.Engine
	queue   *queue.Queue
	legacy  *kvstore.MemoryStore
	remote  *remote.MemoryStore
	monitor *connectivity.Monitor
	module  *monitoring.Module
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := durable.New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	coord := coordinator.New(coordinator.Options{})
	c, err := cache.New(cache.NewMemoryStore(0), cache.WithCoalescer(coord))
	require.NoError(t, err)
	legacy := kvstore.NewMemoryStore()
	q, err := queue.New(ctx, queue.NewKVPersister(legacy, "sync_queue"))
	require.NoError(t, err)

	mem := remote.NewMemoryStore()
	monitor := connectivity.NewMonitor(true, connectivity.WithPinger(mem))
	hub := realtime.NewHub()

	svcs, err := services.New(services.Deps{
		Durable:      store,
		Cache:        c,
		Queue:        q,
		Coordinator:  coord,
		Remote:       mem,
		Connectivity: monitor,
		Notifier:     hub,
	})
	require.NoError(t, err)

	manager, err := migration.NewManager(legacy, store)
	require.NoError(t, err)

	mon, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	router, err := NewRouter(Deps{
		Services:          svcs,
		Cache:             c,
		Queue:             q,
		Migration:         manager,
		Hub:               hub,
		Monitor:           monitor,
		Monitoring:        mon,
		MigrationDefaults: migration.Options{SkipIfCompleted: true, Timeout: 10 * time.Second},
	})
	require.NoError(t, err)

	return &env{t: t, router: router, queue: q, legacy: legacy, remote: mem, monitor: monitor, module: mon}
}

func (e *env) do(method, path string, body any) (*httptest.ResponseRecorder, response.Response) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var payload response.Response
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return rec, payload
}

func dataMap(t *testing.T, payload response.Response) map[string]any {
	t.Helper()
	data, ok := payload.Data.(map[string]any)
	require.True(t, ok, "expected object data, got %T", payload.Data)
	return data
}

func TestNewRouterRequiresCoreDeps(t *testing.T) {
	_, err := NewRouter(Deps{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	monitoring.SetModule(e.module)

	rec, _ := e.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "quotesync_api_latency_seconds")
}

func TestCustomerLifecycle(t *testing.T) {
	e := newEnv(t)

	rec, payload := e.do(http.MethodPost, "/api/owners/owner-1/customers", map[string]any{"name": "Acme", "email": "ops@acme.test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := dataMap(t, payload)
	id := created["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "owner-1", created["ownerId"])
	require.Equal(t, 1, e.remote.Calls("insert"))

	rec, payload = e.do(http.MethodGet, "/api/owners/owner-1/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, payload.Data, 1)
	require.Equal(t, 1, payload.Meta.Total)

	rec, payload = e.do(http.MethodGet, "/api/owners/owner-1/customers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Acme", dataMap(t, payload)["name"])

	rec, payload = e.do(http.MethodPatch, "/api/owners/owner-1/customers/"+id, map[string]any{"phone": "555-0100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "555-0100", dataMap(t, payload)["phone"])

	rec, payload = e.do(http.MethodPut, "/api/owners/owner-1/customers/"+id, map[string]any{"name": "Acme Ltd"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Acme Ltd", dataMap(t, payload)["name"])
	require.Equal(t, id, dataMap(t, payload)["id"])

	rec, _ = e.do(http.MethodDelete, "/api/owners/owner-1/customers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(http.MethodGet, "/api/owners/owner-1/customers/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateValidationAndConflicts(t *testing.T) {
	e := newEnv(t)

	rec, payload := e.do(http.MethodPost, "/api/owners/owner-1/customers", map[string]any{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, payload.Error.Message, "name is required")
	require.Equal(t, "VALIDATION_FAILED", payload.Error.Code)
	require.NotEmpty(t, payload.Error.Details)

	rec, _ = e.do(http.MethodPost, "/api/owners/owner-1/customers", []string{"not", "an", "object"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	quote := map[string]any{"quoteNumber": "Q-1001", "title": "Fence"}
	rec, _ = e.do(http.MethodPost, "/api/owners/owner-1/quotes", quote)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, payload = e.do(http.MethodPost, "/api/owners/owner-1/quotes", quote)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "CONFLICT", payload.Error.Code)
}

func TestFilteredQueries(t *testing.T) {
	e := newEnv(t)

	for _, body := range []map[string]any{
		{"quoteNumber": "Q-1", "status": "sent"},
		{"quoteNumber": "Q-2"},
	} {
		rec, _ := e.do(http.MethodPost, "/api/owners/owner-1/quotes", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, payload := e.do(http.MethodGet, "/api/owners/owner-1/quotes?status=draft", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, payload.Data, 1)

	rec, payload = e.do(http.MethodGet, "/api/owners/owner-1/quotes?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, payload.Data, 2)
	require.True(t, payload.Meta.Forced)
}

func TestSettingsRoutes(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(http.MethodGet, "/api/owners/owner-1/settings", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(http.MethodPut, "/api/owners/owner-1/settings", map[string]any{"companyName": "Acme", "taxRate": 0.2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, payload := e.do(http.MethodGet, "/api/owners/owner-1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := dataMap(t, payload)
	require.Equal(t, "Acme", settings["companyName"])
	require.Equal(t, "owner-1", settings["ownerId"])
}

func TestOfflineWritesReachTheQueue(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(http.MethodPut, "/api/connectivity", map[string]any{"online": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(http.MethodPost, "/api/owners/owner-1/items", map[string]any{"name": "Post", "basePrice": 12.5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Zero(t, e.remote.Calls("insert"))

	rec, payload := e.do(http.MethodGet, "/api/queue?table=items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, payload.Meta.Total)
	id := e.queue.Entries()[0].ID

	rec, _ = e.do(http.MethodPatch, "/api/queue/"+id, map[string]any{"status": "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(http.MethodPatch, "/api/queue/"+id, map[string]any{"status": "synced"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(http.MethodPatch, "/api/queue/missing", map[string]any{"status": "failed", "error": "boom"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, payload = e.do(http.MethodPost, "/api/queue/prune", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, dataMap(t, payload)["removed"])
	require.Zero(t, e.queue.Len())
}

func TestCacheRoutes(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(http.MethodPost, "/api/owners/owner-1/customers", map[string]any{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	e.do(http.MethodGet, "/api/owners/owner-1/customers", nil)
	e.do(http.MethodGet, "/api/owners/owner-1/customers", nil)

	rec, payload := e.do(http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Positive(t, dataMap(t, payload)["hits"])

	rec, payload = e.do(http.MethodPost, "/api/cache/stats/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 0, dataMap(t, payload)["totalRequests"])

	rec, _ = e.do(http.MethodDelete, "/api/cache?entity=invoices", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(http.MethodDelete, "/api/cache?entity=customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(http.MethodDelete, "/api/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMigrationRoutes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, kvstore.SetJSON(ctx, e.legacy, migration.LegacyKey("customers", "owner-1"), []map[string]any{
		{"id": "c1", "name": "Legacy Co"},
	}))

	rec, _ := e.do(http.MethodGet, "/api/owners/owner-1/migration", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, payload := e.do(http.MethodPost, "/api/owners/owner-1/migration", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, payload.Success)

	rec, _ = e.do(http.MethodGet, "/api/owners/owner-1/migration", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(http.MethodPost, "/api/owners/owner-1/migration", map[string]any{"timeout": "soon"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = e.do(http.MethodGet, "/api/owners/owner-1/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, payload.Data, 1)
}

func TestConnectivityRoutes(t *testing.T) {
	e := newEnv(t)

	rec, payload := e.do(http.MethodGet, "/api/connectivity?probe=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, dataMap(t, payload)["online"])

	rec, _ = e.do(http.MethodPut, "/api/connectivity", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRealtimeRejectsUnknownStream(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(http.MethodGet, "/ws/owners/owner-1?streams=secrets", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)

	rec, payload := e.do(http.MethodGet, "/api/nowhere", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)
}
