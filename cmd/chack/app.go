package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/infrastructure/database"
	"github.com/MaanVader/Chack/infrastructure/queue"
	"github.com/MaanVader/Chack/infrastructure/repository/memory"
	"github.com/MaanVader/Chack/infrastructure/repository/postgres"
	"github.com/MaanVader/Chack/infrastructure/storage"
	"github.com/MaanVader/Chack/internal/scan"
	"github.com/MaanVader/Chack/internal/worker"
	"github.com/MaanVader/Chack/observability"
	"github.com/MaanVader/Chack/observability/logger"
	"github.com/MaanVader/Chack/observability/metrics"
)

// Dependencies holds all initialized infrastructure components
type Dependencies struct {
	cfg     *config.Config
	obs     observability.Provider
	store   repository.Store
	queue   ports.Queue   // nil: scans run in-process
	storage ports.Storage // nil: raw reports are not archived
	logger  observability.Logger
}

// Application holds the complete application stack
type Application struct {
	*Dependencies

	executor   *scan.Executor
	dispatcher scan.Dispatcher
	factory    *handler.Factory
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() (*config.Config, error) {
	cfgProvider := config.GetProvider()
	if err := cfgProvider.Load(); err != nil {
		return nil, err
	}
	return cfgProvider.Get()
}

// initializeObservability builds the provider. Metrics go to CloudWatch or the
// default Prometheus registry, logs to CloudWatch Logs or stdout.
func initializeObservability(ctx context.Context, cfg *config.Config) (observability.Provider, error) {
	obsCfg := &observability.Config{
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
		LogLevel:         cfg.LogLevel,
		AdditionalFields: observability.Fields{"version": cfg.Version},
	}

	var closers []io.Closer
	if cfg.Adapters.Metrics == config.MetricsCloudWatch {
		sink, err := metrics.NewCloudWatchSink(ctx,
			cfg.Observability.CloudWatchRegion,
			cfg.Observability.CloudWatchNamespace,
			cfg.Observability.FlushInterval,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CloudWatch metrics: %w", err)
		}
		obsCfg.MetricsFactory = func(component string) observability.Metrics {
			return sink.Metrics(component)
		}
		closers = append(closers, sink)
	}

	if cfg.Adapters.Logger == config.LoggerCloudWatch {
		stream := cfg.Observability.CloudWatchLogStream
		if stream == "" {
			stream = fmt.Sprintf("%s-%s-%d", cfg.ServiceName, cfg.Environment, time.Now().Unix())
		}
		sink, err := logger.NewCloudWatchLogsSink(ctx,
			cfg.Observability.CloudWatchRegion,
			cfg.Observability.CloudWatchLogGroup,
			stream,
			cfg.Observability.FlushInterval,
		)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, fmt.Errorf("failed to initialize CloudWatch logs: %w", err)
		}
		obsCfg.LoggerFactory = func(serviceName string, fields observability.Fields) observability.Logger {
			return sink.Logger(serviceName, cfg.Environment, cfg.LogLevel, fields)
		}
		closers = append(closers, sink)
	}

	return observability.NewProvider(obsCfg, closers...), nil
}

// initializeDependencies sets up all infrastructure dependencies
func initializeDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	obs, err := initializeObservability(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := obs.Logger("main")
	logger.Info(ctx, "Starting application", observability.Fields{
		"service":     cfg.ServiceName,
		"environment": cfg.Environment,
		"store":       cfg.Adapters.Store,
		"queue":       cfg.Adapters.Queue,
		"storage":     cfg.Adapters.Storage,
	})

	deps := &Dependencies{cfg: cfg, obs: obs, logger: logger}

	if deps.store, err = initializeStore(ctx, cfg, obs); err != nil {
		deps.Close()
		return nil, err
	}

	if cfg.Adapters.Queue != "" {
		if deps.queue, err = queue.CreateQueue(ctx, cfg, obs); err != nil {
			deps.Close()
			return nil, err
		}
	}

	if deps.storage, err = storage.CreateStorage(ctx, cfg, obs); err != nil {
		deps.Close()
		return nil, err
	}

	return deps, nil
}

func initializeStore(ctx context.Context, cfg *config.Config, obs observability.Provider) (repository.Store, error) {
	switch cfg.Adapters.Store {
	case config.StorePostgres:
		db, err := openDatabase(ctx, cfg, obs)
		if err != nil {
			return nil, err
		}
		return postgres.New(db, cfg.Database, cfg.Scan.PollInterval, obs.Logger("store"), obs.Metrics("store")), nil

	case config.StoreMemory:
		return memory.New(obs.Logger("store"), obs.Metrics("store")), nil

	default:
		return nil, fmt.Errorf("unsupported store adapter: %q", cfg.Adapters.Store)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config, obs observability.Provider) (*database.DB, error) {
	db, err := database.NewPostgres(ctx, cfg.Database, obs.Logger("database"), obs.Metrics("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// Close releases every dependency in reverse order of creation.
func (d *Dependencies) Close() {
	ctx := context.Background()

	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			d.logger.Error(ctx, "Failed to close queue", err, nil)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error(ctx, "Failed to close store", err, nil)
		}
	}
	if d.obs != nil {
		d.obs.Close()
	}
}

// buildApplication assembles the application layers
func buildApplication(deps *Dependencies) (*Application, error) {
	cfg := deps.cfg

	scanner, err := scan.NewScanner(cfg.Scan.Scanner)
	if err != nil {
		return nil, err
	}

	executor := scan.NewExecutor(deps.store, scanner, deps.obs.Logger("executor"), deps.obs.Metrics("executor"), scan.ExecutorOptions{
		Timeout:   cfg.Scan.Timeout,
		Artifacts: deps.storage,
		Bucket:    storage.ArtifactBucket(cfg),
	})

	var dispatcher scan.Dispatcher = executor
	if deps.queue != nil {
		dispatcher = scan.NewQueueDispatcher(deps.queue, cfg.Queue.ScanQueue, "scheduler")
	}

	w := worker.NewAssessmentsWorker(deps.store, executor, deps.obs.Logger("worker"), deps.obs.Metrics("worker"))

	factory := handler.NewFactory(w, deps.obs).
		WithHandlerConfig(cfg.Handler).
		WithRetryConfig(cfg.Retry)

	return &Application{
		Dependencies: deps,
		executor:     executor,
		dispatcher:   dispatcher,
		factory:      factory,
	}, nil
}

// schedulerOptions returns the scheduler settings shared by every observer.
func (a *Application) schedulerOptions() scan.SchedulerOptions {
	return scan.SchedulerOptions{
		Delay:           a.cfg.Scan.Delay,
		DispatchTimeout: a.cfg.Scan.DispatchTimeout,
		Logger:          a.obs.Logger("scheduler"),
		Metrics:         a.obs.Metrics("scheduler"),
	}
}

// startApplication loads configuration and wires the full stack for a command.
func startApplication(ctx context.Context) (*Application, error) {
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, err
	}

	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app, err := buildApplication(deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	return app, nil
}
