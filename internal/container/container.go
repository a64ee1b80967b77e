package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/application/dispatcher"
	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/application/service"
	"github.com/garyjia/erp-workflow/internal/application/workflow"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/erp-workflow/internal/infrastructure/telemetry"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqldb.DB
	repositories *RepositoryBundle

	// Infrastructure - Telemetry
	shutdownTracer telemetry.ShutdownFunc
	metrics        port.WorkflowMetrics

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   workflow.Engine
	services   *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Definition   port.DefinitionRepository
	Instance     port.InstanceRepository
	Task         port.TaskRepository
	Log          port.WorkflowLogRepository
	Notification port.NotificationRepository
	User         port.UserDirectory
	Documents    port.DocumentStore
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Definitions   service.DefinitionService
	Queries       service.QueryService
	Notifications service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Database, migrations and repositories
// 2. Tracing and metrics
// 3. Application services
// 4. Event dispatcher and workflow engine
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.config.Database.Driver))

	if err := c.initTelemetry(ctx); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initDispatcherAndWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher and workflow: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close tears components down in reverse start order: observers drain before
// the tracer flushes, and the tracer flushes before the database goes away.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)
	c.logger.Info("Closing container")

	var errs []error
	for _, step := range c.closers() {
		if err := step.close(ctx); err != nil {
			c.logger.Error("Component failed to close", zap.String("component", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", step.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("Container closed")
	return nil
}

type closer struct {
	name  string
	close func(ctx context.Context) error
}

func (c *Container) closers() []closer {
	var steps []closer
	if c.dispatcher != nil {
		steps = append(steps, closer{"dispatcher", func(context.Context) error { return c.dispatcher.Close() }})
	}
	if c.shutdownTracer != nil {
		steps = append(steps, closer{"tracer", c.shutdownTracer})
	}
	if c.sqlDB != nil {
		steps = append(steps, closer{"database", func(context.Context) error { return c.sqlDB.Close() }})
	}
	return steps
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// healthPingTimeout bounds the database probe of a health check
const healthPingTimeout = 2 * time.Second

// Health probes each component. Overall is true only when every component is healthy.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall: true,
		Components: map[string]ComponentHealth{
			"database": c.databaseHealth(ctx),
			"workflow": initialized(c.dispatcher != nil && c.workflow != nil),
		},
	}
	for _, h := range status.Components {
		status.Overall = status.Overall && h.Healthy
	}
	return status
}

func (c *Container) databaseHealth(ctx context.Context) ComponentHealth {
	if c.sqlDB == nil || c.closed.Load() {
		return initialized(false)
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := c.sqlDB.PingContext(ctx); err != nil {
		return ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentHealth{Healthy: true}
}

func initialized(ok bool) ComponentHealth {
	if !ok {
		return ComponentHealth{Message: "not initialized"}
	}
	return ComponentHealth{Healthy: true}
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initTelemetry(ctx context.Context) error {
	bundle, err := ProvideTelemetry(ctx, &c.config.Telemetry, c.logger)
	if err != nil {
		return err
	}
	c.shutdownTracer = bundle.Shutdown
	c.metrics = bundle.Metrics
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:     c.repositories,
		TxManager: c.db,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initDispatcherAndWorkflow() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Config:     &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() *sqldb.DB {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.Engine {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service and workflow Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
