package http

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/messaging/domain"
	messagingHTTP "github.com/allisson/courier/internal/messaging/http"
	"github.com/allisson/courier/internal/messaging/usecase/mocks"
)

type routerFixture struct {
	server *Server
	health *mocks.MockHealthUseCase
}

func newRouterFixture(t *testing.T, db *sql.DB, cfg *config.Config) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	health := mocks.NewMockHealthUseCase(t)
	handlers := Handlers{
		Message: messagingHTTP.NewMessageHandler(mocks.NewMockMessageUseCase(t), logger),
		Channel: messagingHTTP.NewChannelHandler(mocks.NewMockChannelUseCase(t), logger),
		Job:     messagingHTTP.NewJobHandler(mocks.NewMockJobUseCase(t), logger),
		Webhook: messagingHTTP.NewWebhookHandler(
			messagingHTTP.WebhookConfig{VerifyToken: "verify-me"},
			mocks.NewMockIngestUseCase(t),
			logger,
		),
		Queue: messagingHTTP.NewQueueHandler(health, mocks.NewMockReconcileUseCase(t), 100, logger),
	}

	server := NewServer(db, "localhost", 8080, logger)
	server.SetupRouter(cfg, handlers, nil)
	return &routerFixture{server: server, health: health}
}

func TestSetupRouter_Routes(t *testing.T) {
	cfg := &config.Config{MetricsNamespace: "courier"}
	f := newRouterFixture(t, nil, cfg)

	f.health.On("Summary", mock.Anything).
		Return(&domain.QueueSummary{Status: domain.QueueHealthy, OK: true}, nil).
		Once()

	w := httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/queue/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(
		http.MethodGet,
		"/v1/webhooks/provider?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42",
		nil,
	))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/messages/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetupRouter_RateLimit(t *testing.T) {
	cfg := &config.Config{
		MetricsNamespace:        "courier",
		RateLimitEnabled:        true,
		RateLimitRequestsPerSec: 0.001,
		RateLimitBurst:          1,
	}
	f := newRouterFixture(t, nil, cfg)

	f.health.On("Summary", mock.Anything).
		Return(&domain.QueueSummary{Status: domain.QueueHealthy, OK: true}, nil).
		Once()

	w := httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/queue/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/queue/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Webhooks stay reachable while the API is throttled.
	w = httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(
		http.MethodGet,
		"/v1/webhooks/provider?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42",
		nil,
	))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessHandler_Ready(t *testing.T) {
	db, mockDB, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mockDB.ExpectPing()

	f := newRouterFixture(t, db, &config.Config{MetricsNamespace: "courier"})

	w := httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","components":{"database":"ok"}}`, w.Body.String())
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestReadinessHandler_PingFails(t *testing.T) {
	db, mockDB, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	mockDB.ExpectPing().WillReturnError(sql.ErrConnDone)

	f := newRouterFixture(t, db, &config.Config{MetricsNamespace: "courier"})

	w := httptest.NewRecorder()
	f.server.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
