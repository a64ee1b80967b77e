package container

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/application/dispatcher"
	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/application/service"
	"github.com/garyjia/erp-workflow/internal/application/workflow"
	"github.com/garyjia/erp-workflow/internal/domain/event"
	"github.com/garyjia/erp-workflow/internal/infrastructure/documents"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/erp-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/erp-workflow/internal/infrastructure/report"
	"github.com/garyjia/erp-workflow/internal/infrastructure/telemetry"
	"github.com/garyjia/erp-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqldb.DB
}

// ProvideDatabase opens the configured database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sqlDB, err := database.Open(database.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(sqlDB, cfg.Driver, logger).Run(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          sqlDB,
		TransactionMgr: sqldb.NewDB(sqlDB, sqldb.Dialect(cfg.Driver), logger),
	}, nil
}

// ProvideRepositories creates all repositories over the shared database wrapper.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	router, err := documents.NewRouter(documents.NewDefaultSinks(db, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build document router: %w", err)
	}

	return &RepositoryBundle{
		Definition:   repository.NewDefinitionRepository(db, logger),
		Instance:     repository.NewInstanceRepository(db, logger),
		Task:         repository.NewTaskRepository(db, logger),
		Log:          repository.NewAuditLogRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
		User:         repository.NewUserRepository(db, logger),
		Documents:    router,
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger})), nil
}

// TelemetryBundle holds the tracer shutdown hook and workflow metrics.
type TelemetryBundle struct {
	Shutdown telemetry.ShutdownFunc
	Metrics  port.WorkflowMetrics
}

// ProvideTelemetry installs tracing and creates the workflow metric instruments.
func ProvideTelemetry(ctx context.Context, cfg *TelemetryConfig, logger *zap.Logger) (*TelemetryBundle, error) {
	shutdown, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:     cfg.Enabled,
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.Endpoint,
		Insecure:    cfg.Insecure,
		SampleRatio: cfg.SampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewWorkflowMetrics()
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	return &TelemetryBundle{Shutdown: shutdown, Metrics: metrics}, nil
}

// WorkflowDeps holds dependencies for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    port.WorkflowMetrics
	Config     *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the engine and registers its observers.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil || deps.Config == nil {
		return nil, fmt.Errorf("workflow dependencies are incomplete")
	}
	logger := &zapLoggerAdapter{logger: deps.Logger}

	if deps.Config.NotifySubmitterOnTerminal {
		service.NewSubmitterNotifier(deps.Repos.Notification, deps.Config.LinkPrefix, logger).Register(deps.Dispatcher)
		deps.Logger.Info("Submitter notifications enabled")
	}
	if deps.Dispatcher != nil {
		for _, t := range event.AllTypes() {
			if names := deps.Dispatcher.Handlers(t); len(names) > 0 {
				deps.Logger.Info("Workflow observers", zap.String("event_type", t.String()), zap.Strings("handlers", names))
			}
		}
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithAsyncEvents(deps.Config.AsyncEvents),
		workflow.WithLinkPrefix(deps.Config.LinkPrefix),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewEngine(workflow.Repositories{
		Definitions:   deps.Repos.Definition,
		Instances:     deps.Repos.Instance,
		Tasks:         deps.Repos.Task,
		Logs:          deps.Repos.Log,
		Notifications: deps.Repos.Notification,
		Documents:     deps.Repos.Documents,
	}, deps.TxManager, logger, opts...), nil
}

// ServiceDeps holds dependencies for creating application services.
type ServiceDeps struct {
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Logger    *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil || deps.Logger == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}
	logger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	return &ServiceBundle{
		Definitions: service.NewDefinitionService(repos.Definition, repos.Instance, repos.User, deps.TxManager, logger),
		Queries: service.NewQueryService(
			repos.Instance,
			repos.Definition,
			repos.Log,
			repos.Documents,
			report.NewHistoryWorkbook(deps.Logger),
			logger,
		),
		Notifications: service.NewNotificationService(repos.Notification, logger),
	}, nil
}
