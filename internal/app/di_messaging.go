package app

import (
	"context"
	"fmt"
	"sync"

	cryptoService "github.com/allisson/courier/internal/crypto/service"
	"github.com/allisson/courier/internal/database"
	"github.com/allisson/courier/internal/http"
	"github.com/allisson/courier/internal/messaging/domain"
	messagingHTTP "github.com/allisson/courier/internal/messaging/http"
	messagingRepository "github.com/allisson/courier/internal/messaging/repository"
	"github.com/allisson/courier/internal/messaging/schema"
	messagingUseCase "github.com/allisson/courier/internal/messaging/usecase"
	"github.com/allisson/courier/internal/provider"
)

// messagingComponents holds the delivery pipeline dependencies.
type messagingComponents struct {
	messageRepo      messagingUseCase.MessageRepository
	jobRepo          messagingUseCase.JobRepository
	channelRepo      messagingUseCase.ChannelRepository
	inboundEventRepo messagingUseCase.InboundEventRepository
	threadRepo       messagingUseCase.ThreadRepository
	queueRepo        messagingUseCase.QueueRepository

	schemaValidator *schema.Validator
	sealer          *cryptoService.KMSSealer
	providerClient  *provider.Client

	messageUseCase   messagingUseCase.MessageUseCase
	jobUseCase       messagingUseCase.JobUseCase
	channelUseCase   messagingUseCase.ChannelUseCase
	claimScheduler   messagingUseCase.ClaimScheduler
	ingestUseCase    messagingUseCase.IngestUseCase
	reconcileUseCase messagingUseCase.ReconcileUseCase
	healthUseCase    messagingUseCase.HealthUseCase
	deliveryWorker   *messagingUseCase.DeliveryWorker

	messageRepoInit      sync.Once
	jobRepoInit          sync.Once
	channelRepoInit      sync.Once
	inboundEventRepoInit sync.Once
	threadRepoInit       sync.Once
	queueRepoInit        sync.Once
	schemaValidatorInit  sync.Once
	sealerInit           sync.Once
	providerClientInit   sync.Once
	messageUseCaseInit   sync.Once
	jobUseCaseInit       sync.Once
	channelUseCaseInit   sync.Once
	claimSchedulerInit   sync.Once
	ingestUseCaseInit    sync.Once
	reconcileUseCaseInit sync.Once
	healthUseCaseInit    sync.Once
	deliveryWorkerInit   sync.Once
}

// MessageRepository returns the outbox message repository based on database driver.
func (c *Container) MessageRepository() (messagingUseCase.MessageRepository, error) {
	var err error
	c.messageRepoInit.Do(func() {
		c.messageRepo, err = c.initMessageRepository()
		if err != nil {
			c.initErrors["messageRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageRepo"]; exists {
		return nil, storedErr
	}
	return c.messageRepo, nil
}

// JobRepository returns the send job repository based on database driver.
func (c *Container) JobRepository() (messagingUseCase.JobRepository, error) {
	var err error
	c.jobRepoInit.Do(func() {
		c.jobRepo, err = c.initJobRepository()
		if err != nil {
			c.initErrors["jobRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["jobRepo"]; exists {
		return nil, storedErr
	}
	return c.jobRepo, nil
}

// ChannelRepository returns the channel connection repository based on database driver.
func (c *Container) ChannelRepository() (messagingUseCase.ChannelRepository, error) {
	var err error
	c.channelRepoInit.Do(func() {
		c.channelRepo, err = c.initChannelRepository()
		if err != nil {
			c.initErrors["channelRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["channelRepo"]; exists {
		return nil, storedErr
	}
	return c.channelRepo, nil
}

// InboundEventRepository returns the webhook event repository based on database driver.
func (c *Container) InboundEventRepository() (messagingUseCase.InboundEventRepository, error) {
	var err error
	c.inboundEventRepoInit.Do(func() {
		c.inboundEventRepo, err = c.initInboundEventRepository()
		if err != nil {
			c.initErrors["inboundEventRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["inboundEventRepo"]; exists {
		return nil, storedErr
	}
	return c.inboundEventRepo, nil
}

// ThreadRepository returns the conversation thread repository based on database driver.
func (c *Container) ThreadRepository() (messagingUseCase.ThreadRepository, error) {
	var err error
	c.threadRepoInit.Do(func() {
		c.threadRepo, err = c.initThreadRepository()
		if err != nil {
			c.initErrors["threadRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["threadRepo"]; exists {
		return nil, storedErr
	}
	return c.threadRepo, nil
}

// QueueRepository returns the queue aggregate repository based on database driver.
func (c *Container) QueueRepository() (messagingUseCase.QueueRepository, error) {
	var err error
	c.queueRepoInit.Do(func() {
		c.queueRepo, err = c.initQueueRepository()
		if err != nil {
			c.initErrors["queueRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["queueRepo"]; exists {
		return nil, storedErr
	}
	return c.queueRepo, nil
}

// SchemaValidator returns the compiled JSON schema validator.
func (c *Container) SchemaValidator() (*schema.Validator, error) {
	var err error
	c.schemaValidatorInit.Do(func() {
		c.schemaValidator, err = schema.New()
		if err != nil {
			c.initErrors["schemaValidator"] = fmt.Errorf("failed to compile schemas: %w", err)
		}
	})
	if storedErr, exists := c.initErrors["schemaValidator"]; exists {
		return nil, storedErr
	}
	return c.schemaValidator, nil
}

// Sealer returns the KMS sealer protecting channel access tokens.
func (c *Container) Sealer() (*cryptoService.KMSSealer, error) {
	var err error
	c.sealerInit.Do(func() {
		c.sealer, err = cryptoService.NewKMSSealer(context.Background(), c.config.KMSKeyURI)
		if err != nil {
			c.initErrors["sealer"] = fmt.Errorf("failed to open kms sealer: %w", err)
		}
	})
	if storedErr, exists := c.initErrors["sealer"]; exists {
		return nil, storedErr
	}
	return c.sealer, nil
}

// ProviderClient returns the channel provider client.
func (c *Container) ProviderClient() *provider.Client {
	c.providerClientInit.Do(func() {
		c.providerClient = provider.NewClient(provider.ClientConfig{
			BaseURL:            c.config.ProviderBaseURL,
			Timeout:            c.config.WorkerSendTimeout,
			RateLimitPerSec:    c.config.ProviderRateLimitPerSec,
			RateLimitBurst:     c.config.ProviderRateLimitBurst,
			BreakerMaxFailures: c.config.ProviderBreakerMaxFailures,
			BreakerTimeout:     c.config.ProviderBreakerTimeout,
		}, c.Logger())
	})
	return c.providerClient
}

// MessageUseCase returns the single message use case.
func (c *Container) MessageUseCase() (messagingUseCase.MessageUseCase, error) {
	var err error
	c.messageUseCaseInit.Do(func() {
		c.messageUseCase, err = c.initMessageUseCase()
		if err != nil {
			c.initErrors["messageUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageUseCase"]; exists {
		return nil, storedErr
	}
	return c.messageUseCase, nil
}

// JobUseCase returns the bulk job use case.
func (c *Container) JobUseCase() (messagingUseCase.JobUseCase, error) {
	var err error
	c.jobUseCaseInit.Do(func() {
		c.jobUseCase, err = c.initJobUseCase()
		if err != nil {
			c.initErrors["jobUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["jobUseCase"]; exists {
		return nil, storedErr
	}
	return c.jobUseCase, nil
}

// ChannelUseCase returns the channel connection use case.
func (c *Container) ChannelUseCase() (messagingUseCase.ChannelUseCase, error) {
	var err error
	c.channelUseCaseInit.Do(func() {
		c.channelUseCase, err = c.initChannelUseCase()
		if err != nil {
			c.initErrors["channelUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["channelUseCase"]; exists {
		return nil, storedErr
	}
	return c.channelUseCase, nil
}

// ClaimScheduler returns the fair claim scheduler.
func (c *Container) ClaimScheduler() (messagingUseCase.ClaimScheduler, error) {
	var err error
	c.claimSchedulerInit.Do(func() {
		c.claimScheduler, err = c.initClaimScheduler()
		if err != nil {
			c.initErrors["claimScheduler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["claimScheduler"]; exists {
		return nil, storedErr
	}
	return c.claimScheduler, nil
}

// IngestUseCase returns the webhook ingestion use case.
func (c *Container) IngestUseCase() (messagingUseCase.IngestUseCase, error) {
	var err error
	c.ingestUseCaseInit.Do(func() {
		c.ingestUseCase, err = c.initIngestUseCase()
		if err != nil {
			c.initErrors["ingestUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["ingestUseCase"]; exists {
		return nil, storedErr
	}
	return c.ingestUseCase, nil
}

// ReconcileUseCase returns the reconciliation use case.
func (c *Container) ReconcileUseCase() (messagingUseCase.ReconcileUseCase, error) {
	var err error
	c.reconcileUseCaseInit.Do(func() {
		c.reconcileUseCase, err = c.initReconcileUseCase()
		if err != nil {
			c.initErrors["reconcileUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["reconcileUseCase"]; exists {
		return nil, storedErr
	}
	return c.reconcileUseCase, nil
}

// HealthUseCase returns the queue health use case.
func (c *Container) HealthUseCase() (messagingUseCase.HealthUseCase, error) {
	var err error
	c.healthUseCaseInit.Do(func() {
		c.healthUseCase, err = c.initHealthUseCase()
		if err != nil {
			c.initErrors["healthUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["healthUseCase"]; exists {
		return nil, storedErr
	}
	return c.healthUseCase, nil
}

// DeliveryWorker returns the delivery worker.
func (c *Container) DeliveryWorker() (*messagingUseCase.DeliveryWorker, error) {
	var err error
	c.deliveryWorkerInit.Do(func() {
		c.deliveryWorker, err = c.initDeliveryWorker()
		if err != nil {
			c.initErrors["deliveryWorker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["deliveryWorker"]; exists {
		return nil, storedErr
	}
	return c.deliveryWorker, nil
}

// initMessageRepository creates the outbox message repository based on the database driver.
func (c *Container) initMessageRepository() (messagingUseCase.MessageRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for message repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messagingRepository.NewMySQLMessageRepository(db), nil
	case "postgres":
		return messagingRepository.NewPostgreSQLMessageRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initJobRepository creates the send job repository based on the database driver.
func (c *Container) initJobRepository() (messagingUseCase.JobRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for job repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messagingRepository.NewMySQLJobRepository(db), nil
	case "postgres":
		return messagingRepository.NewPostgreSQLJobRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initChannelRepository creates the channel connection repository based on the database driver.
func (c *Container) initChannelRepository() (messagingUseCase.ChannelRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for channel repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messagingRepository.NewMySQLChannelRepository(db), nil
	case "postgres":
		return messagingRepository.NewPostgreSQLChannelRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initInboundEventRepository creates the webhook event repository based on the database driver.
func (c *Container) initInboundEventRepository() (messagingUseCase.InboundEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for inbound event repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messagingRepository.NewMySQLInboundEventRepository(db), nil
	case "postgres":
		return messagingRepository.NewPostgreSQLInboundEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initThreadRepository creates the conversation thread repository based on the database driver.
func (c *Container) initThreadRepository() (messagingUseCase.ThreadRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for thread repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messagingRepository.NewMySQLThreadRepository(db), nil
	case "postgres":
		return messagingRepository.NewPostgreSQLThreadRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initQueueRepository creates the queue aggregate repository based on the database driver.
func (c *Container) initQueueRepository() (messagingUseCase.QueueRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for queue repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return messagingRepository.NewMySQLQueueRepository(db), nil
	case "postgres":
		return messagingRepository.NewPostgreSQLQueueRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initMessageUseCase creates the message use case with all its dependencies.
func (c *Container) initMessageUseCase() (messagingUseCase.MessageUseCase, error) {
	messageRepo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for message use case: %w", err)
	}

	channelRepo, err := c.ChannelRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel repository for message use case: %w", err)
	}

	validator, err := c.SchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema validator for message use case: %w", err)
	}

	baseUseCase := messagingUseCase.NewMessageUseCase(messageRepo, channelRepo, validator, c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for message use case: %w", err)
		}
		return messagingUseCase.NewMessageUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initJobUseCase creates the job use case with all its dependencies.
func (c *Container) initJobUseCase() (messagingUseCase.JobUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for job use case: %w", err)
	}

	jobRepo, err := c.JobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get job repository for job use case: %w", err)
	}

	channelRepo, err := c.ChannelRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel repository for job use case: %w", err)
	}

	validator, err := c.SchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema validator for job use case: %w", err)
	}

	baseUseCase := messagingUseCase.NewJobUseCase(txManager, jobRepo, channelRepo, validator, c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for job use case: %w", err)
		}
		return messagingUseCase.NewJobUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initChannelUseCase creates the channel use case with all its dependencies.
func (c *Container) initChannelUseCase() (messagingUseCase.ChannelUseCase, error) {
	channelRepo, err := c.ChannelRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel repository for channel use case: %w", err)
	}

	sealer, err := c.Sealer()
	if err != nil {
		return nil, fmt.Errorf("failed to get sealer for channel use case: %w", err)
	}

	baseUseCase := messagingUseCase.NewChannelUseCase(channelRepo, sealer, c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for channel use case: %w", err)
		}
		return messagingUseCase.NewChannelUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initClaimScheduler creates the claim scheduler with all its dependencies.
func (c *Container) initClaimScheduler() (messagingUseCase.ClaimScheduler, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for claim scheduler: %w", err)
	}

	messageRepo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for claim scheduler: %w", err)
	}

	jobRepo, err := c.JobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get job repository for claim scheduler: %w", err)
	}

	scheduler := messagingUseCase.NewClaimScheduler(
		txManager,
		messageRepo,
		jobRepo,
		c.config.WorkerMaxAttempts,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for claim scheduler: %w", err)
		}
		return messagingUseCase.NewClaimSchedulerWithMetrics(scheduler, businessMetrics), nil
	}

	return scheduler, nil
}

// initIngestUseCase creates the ingest use case with all its dependencies.
func (c *Container) initIngestUseCase() (messagingUseCase.IngestUseCase, error) {
	deps, err := c.eventApplierDeps("ingest use case")
	if err != nil {
		return nil, err
	}

	baseUseCase := messagingUseCase.NewIngestUseCase(
		deps.txManager,
		deps.eventRepo,
		deps.messageRepo,
		deps.jobRepo,
		deps.channelRepo,
		deps.threadRepo,
		deps.publisher,
		deps.decoder,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for ingest use case: %w", err)
		}
		return messagingUseCase.NewIngestUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initReconcileUseCase creates the reconcile use case with all its dependencies.
func (c *Container) initReconcileUseCase() (messagingUseCase.ReconcileUseCase, error) {
	deps, err := c.eventApplierDeps("reconcile use case")
	if err != nil {
		return nil, err
	}

	baseUseCase := messagingUseCase.NewReconcileUseCase(
		messagingUseCase.ReconcileConfig{
			Timeout:     c.config.ReconcileTimeout,
			MinAge:      c.config.ReconcileMinAge,
			MaxAttempts: c.config.ReconcileMaxAttempts,
		},
		deps.txManager,
		deps.eventRepo,
		deps.messageRepo,
		deps.jobRepo,
		deps.channelRepo,
		deps.threadRepo,
		deps.publisher,
		deps.decoder,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for reconcile use case: %w", err)
		}
		return messagingUseCase.NewReconcileUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initHealthUseCase creates the queue health use case.
func (c *Container) initHealthUseCase() (messagingUseCase.HealthUseCase, error) {
	queueRepo, err := c.QueueRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue repository for health use case: %w", err)
	}
	return messagingUseCase.NewHealthUseCase(
		queueRepo,
		c.config.HealthDegradedAge,
		c.config.HealthUnhealthyAge,
	), nil
}

// initDeliveryWorker creates the delivery worker with all its dependencies.
func (c *Container) initDeliveryWorker() (*messagingUseCase.DeliveryWorker, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for delivery worker: %w", err)
	}

	scheduler, err := c.ClaimScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to get claim scheduler for delivery worker: %w", err)
	}

	messageRepo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for delivery worker: %w", err)
	}

	jobRepo, err := c.JobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get job repository for delivery worker: %w", err)
	}

	channelRepo, err := c.ChannelRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel repository for delivery worker: %w", err)
	}

	sealer, err := c.Sealer()
	if err != nil {
		return nil, fmt.Errorf("failed to get sealer for delivery worker: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for delivery worker: %w", err)
	}

	var sender messagingUseCase.Sender = c.ProviderClient()
	if c.config.MetricsEnabled {
		sender = messagingUseCase.NewSenderWithMetrics(sender, businessMetrics)
	}

	worker := messagingUseCase.NewDeliveryWorker(
		messagingUseCase.DeliveryConfig{
			WorkerID:          c.config.WorkerID,
			BatchSize:         c.config.WorkerBatchSize,
			PollInterval:      c.config.WorkerPollInterval,
			VisibilityTimeout: c.config.WorkerVisibilityTimeout,
			MaxAttempts:       c.config.WorkerMaxAttempts,
			Concurrency:       c.config.WorkerConcurrency,
			SendTimeout:       c.config.WorkerSendTimeout,
			Retry: domain.RetryPolicy{
				BaseDelay: c.config.WorkerRetryBaseDelay,
				MaxDelay:  c.config.WorkerRetryMaxDelay,
			},
			CacheTTL: c.config.WorkerCacheTTL,
		},
		txManager,
		scheduler,
		messageRepo,
		jobRepo,
		channelRepo,
		sealer,
		sender,
		c.Notifier().Wake(),
		businessMetrics,
		c.Logger(),
	)

	return worker, nil
}

// applierDeps is the dependency set shared by ingestion and reconciliation.
type applierDeps struct {
	txManager   database.TxManager
	eventRepo   messagingUseCase.InboundEventRepository
	messageRepo messagingUseCase.MessageRepository
	jobRepo     messagingUseCase.JobRepository
	channelRepo messagingUseCase.ChannelRepository
	threadRepo  messagingUseCase.ThreadRepository
	publisher   messagingUseCase.AutomationPublisher
	decoder     messagingUseCase.EventDecoder
}

// eventApplierDeps resolves the dependencies that apply provider callbacks.
func (c *Container) eventApplierDeps(component string) (*applierDeps, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for %s: %w", component, err)
	}

	eventRepo, err := c.InboundEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get inbound event repository for %s: %w", component, err)
	}

	messageRepo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for %s: %w", component, err)
	}

	jobRepo, err := c.JobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get job repository for %s: %w", component, err)
	}

	channelRepo, err := c.ChannelRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel repository for %s: %w", component, err)
	}

	threadRepo, err := c.ThreadRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread repository for %s: %w", component, err)
	}

	publisher, err := c.AutomationAppender()
	if err != nil {
		return nil, fmt.Errorf("failed to get automation appender for %s: %w", component, err)
	}

	decoder, err := c.SchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema validator for %s: %w", component, err)
	}

	return &applierDeps{
		txManager:   txManager,
		eventRepo:   eventRepo,
		messageRepo: messageRepo,
		jobRepo:     jobRepo,
		channelRepo: channelRepo,
		threadRepo:  threadRepo,
		publisher:   publisher,
		decoder:     decoder,
	}, nil
}

// handlers builds every HTTP handler mounted by the API server.
func (c *Container) handlers() (http.Handlers, error) {
	logger := c.Logger()

	messageUseCase, err := c.MessageUseCase()
	if err != nil {
		return http.Handlers{}, fmt.Errorf("failed to get message use case for http server: %w", err)
	}

	channelUseCase, err := c.ChannelUseCase()
	if err != nil {
		return http.Handlers{}, fmt.Errorf("failed to get channel use case for http server: %w", err)
	}

	jobUseCase, err := c.JobUseCase()
	if err != nil {
		return http.Handlers{}, fmt.Errorf("failed to get job use case for http server: %w", err)
	}

	ingestUseCase, err := c.IngestUseCase()
	if err != nil {
		return http.Handlers{}, fmt.Errorf("failed to get ingest use case for http server: %w", err)
	}

	healthUseCase, err := c.HealthUseCase()
	if err != nil {
		return http.Handlers{}, fmt.Errorf("failed to get health use case for http server: %w", err)
	}

	reconcileUseCase, err := c.ReconcileUseCase()
	if err != nil {
		return http.Handlers{}, fmt.Errorf("failed to get reconcile use case for http server: %w", err)
	}

	return http.Handlers{
		Message: messagingHTTP.NewMessageHandler(messageUseCase, logger),
		Channel: messagingHTTP.NewChannelHandler(channelUseCase, logger),
		Job:     messagingHTTP.NewJobHandler(jobUseCase, logger),
		Webhook: messagingHTTP.NewWebhookHandler(messagingHTTP.WebhookConfig{
			VerifyToken:    c.config.WebhookVerifyToken,
			AppSecret:      c.config.WebhookAppSecret,
			ProcessTimeout: c.config.WebhookProcessTimeout,
			MaxBodyBytes:   c.config.WebhookMaxBodyBytes,
		}, ingestUseCase, logger),
		Queue: messagingHTTP.NewQueueHandler(healthUseCase, reconcileUseCase, c.config.ReconcileBatchSize, logger),
	}, nil
}
