package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/database"
	"github.com/allisson/courier/internal/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	return &config.Config{
		LogLevel:                   "error",
		DBDriver:                   "postgres",
		ServerHost:                 "localhost",
		ServerPort:                 8080,
		MetricsNamespace:           "courier",
		MetricsPort:                8081,
		KMSKeyURI:                  "base64key://" + base64.URLEncoding.EncodeToString(key),
		ProviderBaseURL:            "http://127.0.0.1:1",
		ProviderRateLimitPerSec:    10,
		ProviderRateLimitBurst:     10,
		ProviderBreakerMaxFailures: 5,
		ProviderBreakerTimeout:     time.Second,
		WorkerID:                   "worker-test",
		WorkerBatchSize:            10,
		WorkerPollInterval:         time.Second,
		WorkerVisibilityTimeout:    time.Minute,
		WorkerMaxAttempts:          5,
		WorkerConcurrency:          2,
		WorkerSendTimeout:          time.Second,
		WorkerRetryBaseDelay:       time.Second,
		WorkerRetryMaxDelay:        time.Minute,
		ReconcileBatchSize:         100,
		ReconcileTimeout:           time.Second,
		HealthDegradedAge:          5 * time.Minute,
		HealthUnhealthyAge:         15 * time.Minute,
		AutomationPublisher:        "log",
		AutomationInterval:         time.Second,
		AutomationBatchSize:        10,
		AutomationMaxRetries:       3,
	}
}

// withMockDB injects a sqlmock connection so the container never dials a real database.
func withMockDB(t *testing.T, c *Container) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c.dbInit.Do(func() { c.db = db })
	return mock
}

func TestNewContainer(t *testing.T) {
	cfg := testConfig(t)
	container := NewContainer(cfg)

	require.NotNil(t, container)
	assert.Same(t, cfg, container.Config())
}

func TestContainerLogger(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "debug"})

	logger := container.Logger()
	require.NotNil(t, logger)
	assert.Same(t, logger, container.Logger())
}

func TestContainerLoggerDefaultLevel(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "invalid"})
	assert.NotNil(t, container.Logger())
}

func TestContainerInitializationErrors(t *testing.T) {
	container := NewContainer(&config.Config{
		DBDriver:           "invalid_driver",
		DBConnectionString: "",
	})

	_, err := container.DB()
	assert.Error(t, err)

	// The stored error is returned on later calls
	_, err = container.DB()
	assert.Error(t, err)

	_, err = container.MessageUseCase()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get message repository for message use case")
}

func TestContainerUnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "sqlite"
	container := NewContainer(cfg)
	withMockDB(t, container)

	_, err := container.MessageRepository()
	assert.EqualError(t, err, "unsupported database driver: sqlite")

	_, err = container.AutomationEventRepository()
	assert.EqualError(t, err, "unsupported database driver: sqlite")
}

func TestContainerLazyInitialization(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "info"})

	assert.Nil(t, container.logger)
	require.NotNil(t, container.Logger())
	assert.NotNil(t, container.logger)
}

func TestContainerSealer(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		container := NewContainer(testConfig(t))

		sealer, err := container.Sealer()
		require.NoError(t, err)

		sealed, err := sealer.Seal(context.Background(), []byte("token"))
		require.NoError(t, err)
		opened, err := sealer.Open(context.Background(), sealed)
		require.NoError(t, err)
		assert.Equal(t, "token", string(opened))

		again, err := container.Sealer()
		require.NoError(t, err)
		assert.Same(t, sealer, again)

		assert.NoError(t, container.Shutdown(context.Background()))
	})

	t.Run("EmptyKeyURI", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.KMSKeyURI = ""
		container := NewContainer(cfg)
		withMockDB(t, container)

		_, err := container.Sealer()
		assert.Error(t, err)

		_, err = container.ChannelUseCase()
		assert.Error(t, err)
	})
}

func TestContainerNotifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "mysql"
	cfg.WorkerNotifyEnabled = true
	container := NewContainer(cfg)

	notifier := container.Notifier()
	assert.IsType(t, database.NopNotifier{}, notifier)
	assert.Nil(t, notifier.Wake())
}

func TestContainerBusinessMetrics(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		container := NewContainer(testConfig(t))

		provider, err := container.MetricsProvider()
		require.NoError(t, err)
		assert.Nil(t, provider)

		businessMetrics, err := container.BusinessMetrics()
		require.NoError(t, err)
		assert.IsType(t, metrics.NewNoOpBusinessMetrics(), businessMetrics)

		server, err := container.MetricsServer()
		require.NoError(t, err)
		assert.Nil(t, server)
	})

	t.Run("Enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MetricsEnabled = true
		container := NewContainer(cfg)
		mock := withMockDB(t, container)

		provider, err := container.MetricsProvider()
		require.NoError(t, err)
		require.NotNil(t, provider)

		server, err := container.MetricsServer()
		require.NoError(t, err)
		assert.NotNil(t, server)

		mock.ExpectClose()
		assert.NoError(t, container.Shutdown(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestContainerHTTPServer(t *testing.T) {
	container := NewContainer(testConfig(t))
	mock := withMockDB(t, container)

	server, err := container.HTTPServer()
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.NotNil(t, server.GetHandler())

	again, err := container.HTTPServer()
	require.NoError(t, err)
	assert.Same(t, server, again)

	mock.ExpectClose()
	assert.NoError(t, container.Shutdown(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainerWorkerComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = true
	container := NewContainer(cfg)
	mock := withMockDB(t, container)

	worker, err := container.DeliveryWorker()
	require.NoError(t, err)
	assert.NotNil(t, worker)

	relay, err := container.RelayUseCase()
	require.NoError(t, err)
	assert.NotNil(t, relay)

	reconcile, err := container.ReconcileUseCase()
	require.NoError(t, err)
	assert.NotNil(t, reconcile)

	assert.Same(t, container.ProviderClient(), container.ProviderClient())

	mock.ExpectClose()
	assert.NoError(t, container.Shutdown(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainerAutomationPublisher(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutomationPublisher = "kafka"
	container := NewContainer(cfg)

	_, err := container.AutomationPublisher()
	assert.EqualError(t, err, "unsupported automation publisher: kafka")

	_, err = container.AutomationPublisher()
	assert.Error(t, err)
}

func TestContainerShutdown(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "info"})
	assert.NoError(t, container.Shutdown(context.TODO()))
}
