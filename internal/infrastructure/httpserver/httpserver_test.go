package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/application/eventsourcing"
	"github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
	"github.com/lllypuk/eventcore/internal/infrastructure/eventstore"
	"github.com/lllypuk/eventcore/internal/infrastructure/httpserver"
	"github.com/lllypuk/eventcore/internal/infrastructure/sagastore"
	"github.com/lllypuk/eventcore/tests/fixtures"
)

type staticChecker struct {
	name    string
	healthy bool
}

func (c staticChecker) Name() string { return c.name }

func (c staticChecker) Check(context.Context) appcore.HealthStatus {
	return appcore.HealthStatus{Healthy: c.healthy, CheckedAt: time.Now()}
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   *httpserver.Error `json:"error"`
}

func get(t *testing.T, e *echo.Echo, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

type fixture struct {
	echo   *echo.Echo
	events *eventstore.InMemoryEventStore
	sagas  *sagastore.InMemorySagaStore
	store  *eventsourcing.Store[*fixtures.Account]
}

func newFixture(t *testing.T, checkers ...appcore.HealthChecker) fixture {
	t.Helper()

	events := eventstore.NewInMemoryEventStore()
	sagas := sagastore.NewInMemorySagaStore()
	store, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount)
	require.NoError(t, err)

	server := httpserver.NewServer(httpserver.DefaultServerConfig(), nil)
	router := httpserver.NewRouter(server.Echo(), httpserver.DefaultRouterConfig())
	router.RegisterHealthEndpoints(httpserver.NewHealthEndpoints(checkers...))

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "scrape_total", Help: "scrape"}))
	router.RegisterMetricsEndpoint("/metrics", registry)

	httpserver.NewInspectionHandler(events, sagas).Register(router.API())

	return fixture{echo: server.Echo(), events: events, sagas: sagas, store: store}
}

func (f fixture) openAccount(t *testing.T) string {
	t.Helper()
	acc, err := fixtures.OpenAccount("ada")
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(40))
	require.NoError(t, f.store.Store(context.Background(), acc))
	return f.store.StreamName(acc.GlobalID())
}

func TestServer_Address(t *testing.T) {
	cfg := httpserver.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9999

	assert.Equal(t, "127.0.0.1:9999", httpserver.NewServer(cfg, nil).Address())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	server := httpserver.NewServer(httpserver.ServerConfig{Host: "127.0.0.1", Port: 0}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	server := httpserver.NewServer(httpserver.DefaultServerConfig(), nil)

	require.NoError(t, server.Shutdown(context.Background()))
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("liveness ignores checkers", func(t *testing.T) {
		f := newFixture(t, staticChecker{name: "mongodb", healthy: false})

		rec, _ := get(t, f.echo, "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), httpserver.StatusHealthy)
	})

	t.Run("ready when all checkers pass", func(t *testing.T) {
		f := newFixture(t, staticChecker{name: "mongodb", healthy: true}, staticChecker{name: "redis", healthy: true})

		rec, _ := get(t, f.echo, "/ready")

		require.Equal(t, http.StatusOK, rec.Code)
		var body httpserver.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, httpserver.StatusReady, body.Status)
		assert.Len(t, body.Components, 2)
	})

	t.Run("not ready when one checker fails", func(t *testing.T) {
		f := newFixture(t, staticChecker{name: "mongodb", healthy: true}, staticChecker{name: "redis", healthy: false})

		rec, _ := get(t, f.echo, "/ready")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), httpserver.StatusNotReady)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec, _ := get(t, f.echo, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scrape_total")
}

func TestGetStreamEvents(t *testing.T) {
	f := newFixture(t)
	stream := f.openAccount(t)

	t.Run("whole stream", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/streams/"+stream+"/events")

		require.Equal(t, http.StatusOK, rec.Code)
		var view httpserver.StreamView
		require.NoError(t, json.Unmarshal(body.Data, &view))
		assert.Equal(t, stream, view.Stream)
		assert.Equal(t, 1, view.LastVersion)
		require.Len(t, view.Events, 2)
		assert.Equal(t, fixtures.EventTypeOpened, view.Events[0].EventType)
		assert.Equal(t, fixtures.EventTypeDeposited, view.Events[1].EventType)
	})

	t.Run("single version", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/streams/"+stream+"/events?version=1")

		require.Equal(t, http.StatusOK, rec.Code)
		var view httpserver.StreamView
		require.NoError(t, json.Unmarshal(body.Data, &view))
		require.Len(t, view.Events, 1)
		assert.Equal(t, 1, view.Events[0].Version)
	})

	t.Run("last event", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/streams/"+stream+"/events?last=true")

		require.Equal(t, http.StatusOK, rec.Code)
		var view httpserver.StreamView
		require.NoError(t, json.Unmarshal(body.Data, &view))
		require.Len(t, view.Events, 1)
		assert.Equal(t, fixtures.EventTypeDeposited, view.Events[0].EventType)
	})

	t.Run("unknown stream is empty", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/streams/Account-none/events")

		require.Equal(t, http.StatusOK, rec.Code)
		var view httpserver.StreamView
		require.NoError(t, json.Unmarshal(body.Data, &view))
		assert.Equal(t, -1, view.LastVersion)
		assert.Empty(t, view.Events)
	})

	t.Run("last of unknown stream", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/streams/Account-none/events?last=true")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "STREAM_NOT_FOUND", body.Error.Code)
	})

	t.Run("bad version", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/streams/"+stream+"/events?version=-2")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "INVALID_ARGUMENT", body.Error.Code)
	})

	t.Run("deleted stream", func(t *testing.T) {
		deleted := f.openAccount(t)
		require.NoError(t, f.events.Delete(context.Background(), deleted))

		rec, body := get(t, f.echo, "/api/v1/streams/"+deleted+"/events")

		assert.Equal(t, http.StatusGone, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "STREAM_DELETED", body.Error.Code)
	})
}

func TestGetSaga(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	corrID := uuid.NewUUID()
	meta := saga.NewTransactionMeta(corrID, "transfer", "debit")
	require.NoError(t, meta.Activate())
	require.NoError(t, meta.Finish(false, []saga.StepError{{Kind: "domain", Code: "insufficient_funds", Message: "no", Step: "debit"}}))
	require.NoError(t, f.sagas.Upsert(ctx, meta))

	t.Run("found", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/sagas/"+corrID.String())

		require.Equal(t, http.StatusOK, rec.Code)
		var view httpserver.SagaView
		require.NoError(t, json.Unmarshal(body.Data, &view))
		assert.Equal(t, saga.StateAborted, view.Meta.State)
		require.Len(t, view.Trail, 1)
		assert.Equal(t, "insufficient_funds", view.Trail[0].Code)
	})

	t.Run("absent", func(t *testing.T) {
		rec, body := get(t, f.echo, "/api/v1/sagas/"+uuid.NewUUID().String())

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "SAGA_NOT_FOUND", body.Error.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec, _ := get(t, f.echo, "/api/v1/sagas/not-a-uuid")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInspectionHandler_NilStoresSkipRoutes(t *testing.T) {
	e := echo.New()
	httpserver.NewInspectionHandler(nil, nil).Register(e.Group("/api/v1"))

	assert.Empty(t, e.Routes())
}
