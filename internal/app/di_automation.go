package app

import (
	"context"
	"fmt"
	"sync"

	automationPublisher "github.com/allisson/courier/internal/automation/publisher"
	automationRepository "github.com/allisson/courier/internal/automation/repository"
	automationUseCase "github.com/allisson/courier/internal/automation/usecase"
)

// closablePublisher is a relay target holding a broker connection.
type closablePublisher interface {
	automationUseCase.Publisher
	Close() error
}

// automationComponents holds the automation event relay dependencies.
type automationComponents struct {
	automationEventRepo automationUseCase.EventRepository
	automationAppender  *automationUseCase.Appender
	automationPublisher closablePublisher
	relayUseCase        *automationUseCase.RelayUseCase

	automationEventRepoInit sync.Once
	automationAppenderInit  sync.Once
	automationPublisherInit sync.Once
	relayUseCaseInit        sync.Once
}

// AutomationEventRepository returns the automation event repository based on database driver.
func (c *Container) AutomationEventRepository() (automationUseCase.EventRepository, error) {
	var err error
	c.automationEventRepoInit.Do(func() {
		c.automationEventRepo, err = c.initAutomationEventRepository()
		if err != nil {
			c.initErrors["automationEventRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["automationEventRepo"]; exists {
		return nil, storedErr
	}
	return c.automationEventRepo, nil
}

// AutomationAppender returns the appender that records automation events inside
// the transaction of the change that raised them.
func (c *Container) AutomationAppender() (*automationUseCase.Appender, error) {
	var err error
	c.automationAppenderInit.Do(func() {
		var eventRepo automationUseCase.EventRepository
		eventRepo, err = c.AutomationEventRepository()
		if err != nil {
			c.initErrors["automationAppender"] = fmt.Errorf(
				"failed to get automation event repository for appender: %w", err,
			)
			return
		}
		c.automationAppender = automationUseCase.NewAppender(eventRepo)
	})
	if storedErr, exists := c.initErrors["automationAppender"]; exists {
		return nil, storedErr
	}
	return c.automationAppender, nil
}

// AutomationPublisher returns the broker publisher selected by configuration.
func (c *Container) AutomationPublisher() (automationUseCase.Publisher, error) {
	var err error
	c.automationPublisherInit.Do(func() {
		c.automationPublisher, err = c.initAutomationPublisher()
		if err != nil {
			c.initErrors["automationPublisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["automationPublisher"]; exists {
		return nil, storedErr
	}
	return c.automationPublisher, nil
}

// RelayUseCase returns the automation event relay.
func (c *Container) RelayUseCase() (*automationUseCase.RelayUseCase, error) {
	var err error
	c.relayUseCaseInit.Do(func() {
		c.relayUseCase, err = c.initRelayUseCase()
		if err != nil {
			c.initErrors["relayUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["relayUseCase"]; exists {
		return nil, storedErr
	}
	return c.relayUseCase, nil
}

// initAutomationEventRepository creates the automation event repository based on the database driver.
func (c *Container) initAutomationEventRepository() (automationUseCase.EventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for automation event repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return automationRepository.NewMySQLEventRepository(db), nil
	case "postgres":
		return automationRepository.NewPostgreSQLEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initAutomationPublisher connects the configured relay target.
func (c *Container) initAutomationPublisher() (closablePublisher, error) {
	switch c.config.AutomationPublisher {
	case "", "log":
		return automationPublisher.NewLogPublisher(c.Logger()), nil
	case "amqp":
		publisher, err := automationPublisher.NewAMQPPublisher(
			c.config.AutomationAMQPURL,
			c.config.AutomationAMQPExchange,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
		}
		return publisher, nil
	case "redis":
		publisher, err := automationPublisher.NewRedisPublisher(
			context.Background(),
			c.config.AutomationRedisURL,
			c.config.AutomationRedisChannel,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported automation publisher: %s", c.config.AutomationPublisher)
	}
}

// initRelayUseCase creates the automation relay with all its dependencies.
func (c *Container) initRelayUseCase() (*automationUseCase.RelayUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for relay use case: %w", err)
	}

	eventRepo, err := c.AutomationEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get automation event repository for relay use case: %w", err)
	}

	publisher, err := c.AutomationPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get automation publisher for relay use case: %w", err)
	}

	return automationUseCase.NewRelayUseCase(
		automationUseCase.Config{
			Interval:   c.config.AutomationInterval,
			BatchSize:  c.config.AutomationBatchSize,
			MaxRetries: c.config.AutomationMaxRetries,
		},
		txManager,
		eventRepo,
		publisher,
		c.Logger(),
	), nil
}
