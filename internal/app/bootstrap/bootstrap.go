package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	taskpipeline "taskpipe/contexts/async-delivery/task-pipeline"
	emailadapter "taskpipe/contexts/async-delivery/task-pipeline/adapters/email"
	postgresadapter "taskpipe/contexts/async-delivery/task-pipeline/adapters/postgres"
	realtimeadapter "taskpipe/contexts/async-delivery/task-pipeline/adapters/realtime"
	"taskpipe/internal/platform/config"
	"taskpipe/internal/platform/db"
	"taskpipe/internal/platform/httpserver"
	"taskpipe/internal/platform/messaging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	tracerName      = "taskpipe/worker"
	shutdownTimeout = 10 * time.Second
)

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	redis    *redis.Client
	hub      *messaging.Hub
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres          *db.Postgres
	redis             *redis.Client
	pipeline          taskpipeline.Module
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	logger            *slog.Logger
}

// OpsApp backs the operator CLI: the pipeline use cases over Postgres
// without any background loop.
type OpsApp struct {
	Postgres *db.Postgres
	Pipeline taskpipeline.Module
	Logger   *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.LogLevel).With("service", cfg.ServiceName, "process", "api")
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if _, err := pg.Migrate(logger); err != nil {
			_ = pg.Close()
			return nil, err
		}
	}

	pipeline, err := buildPipeline(cfg, pg, nil, nil, "", logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	app := &APIApp{
		postgres: pg,
		logger:   logger,
	}
	opts := httpserver.Options{
		Health: pg.Ping,
		Logger: logger,
		Addr:   normalizeAddr(cfg.HTTPPort),
	}
	if cfg.RedisURL != "" {
		client, err := connectRedis(cfg.RedisURL)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		app.redis = client
		app.hub = messaging.NewHub(logger)
		opts.Realtime = messaging.NewGateway(app.hub, logger)
	}
	app.server = httpserver.New(pipeline, opts)
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.LogLevel).With("service", cfg.ServiceName, "process", "worker")
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if _, err := pg.Migrate(logger); err != nil {
			_ = pg.Close()
			return nil, err
		}
	}

	client, err := connectRedis(cfg.RedisURL)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	publisher, err := realtimeadapter.NewRedisPublisher(client, logger)
	if err != nil {
		_ = client.Close()
		_ = pg.Close()
		return nil, err
	}
	email, err := emailadapter.NewClient(emailadapter.Config{
		BaseURL: cfg.EmailAPIBaseURL,
		APIKey:  cfg.EmailAPIKey,
		Logger:  logger,
	})
	if err != nil {
		_ = client.Close()
		_ = pg.Close()
		return nil, err
	}

	instanceID := uuid.NewString()
	pipeline, err := buildPipeline(cfg, pg, email, publisher, instanceID, logger)
	if err != nil {
		_ = client.Close()
		_ = pg.Close()
		return nil, err
	}

	return &WorkerApp{
		postgres:          pg,
		redis:             client,
		pipeline:          pipeline,
		pollInterval:      cfg.PollInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
		sweepInterval:     cfg.SweepInterval,
		logger:            logger.With("worker_id", pipeline.Runner.WorkerID),
	}, nil
}

func BuildOps() (*OpsApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.LogLevel).With("service", cfg.ServiceName, "process", "queuectl")
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	pipeline, err := buildPipeline(cfg, pg, nil, nil, "", logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	return &OpsApp{Postgres: pg, Pipeline: pipeline, Logger: logger}, nil
}

func buildPipeline(
	cfg config.Config,
	pg *db.Postgres,
	email *emailadapter.Client,
	publisher *realtimeadapter.RedisPublisher,
	instanceID string,
	logger *slog.Logger,
) (taskpipeline.Module, error) {
	repo := postgresadapter.NewRepository(pg.DB, logger)
	deps := taskpipeline.Dependencies{
		Outbox:     repo,
		Jobs:       repo,
		Heartbeats: repo,
		Clock:      postgresadapter.SystemClock{},
		Settings: taskpipeline.Settings{
			WorkerName:         cfg.WorkerName,
			WorkerID:           workerID(cfg.WorkerName, instanceID),
			WorkerMetadata:     workerMetadata(instanceID),
			EmailFrom:          cfg.EmailFrom,
			AppBaseURL:         cfg.AppBaseURL,
			BridgeBatchSize:    cfg.BridgeBatchSize,
			JobBatchSize:       cfg.JobBatchSize,
			Concurrency:        cfg.Concurrency,
			MaxAttempts:        cfg.MaxAttempts,
			HandlerTimeout:     cfg.HandlerTimeout,
			LeaseTimeout:       cfg.LeaseTimeout,
			HeartbeatFreshness: cfg.HeartbeatFresh,
			RetryBaseDelay:     cfg.RetryBaseDelay,
			RetryMaxDelay:      cfg.RetryMaxDelay,
		},
		Tracer: otel.Tracer(tracerName),
		Logger: logger,
	}
	// Typed nils must not leak into the interfaces.
	if email != nil {
		deps.Email = email
	}
	if publisher != nil {
		deps.Realtime = publisher
	}
	return taskpipeline.NewModule(deps)
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"realtime_gateway", a.hub != nil,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	if a.hub != nil {
		group.Go(func() error {
			return a.hub.RelayRedis(groupCtx, a.redis)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

// Run drives the bridge and the job runner on one cooperative loop, with the
// heartbeat and the lease sweeper on independent timers. Tick failures are
// logged and retried; only cancellation stops the worker.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"heartbeat_interval", w.heartbeatInterval.String(),
		"sweep_interval", w.sweepInterval.String(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		w.runQueueLoop(groupCtx)
		return nil
	})
	group.Go(func() error {
		w.runHeartbeat(groupCtx)
		return nil
	})
	group.Go(func() error {
		w.runSweeper(groupCtx)
		return nil
	})
	return group.Wait()
}

func (w *WorkerApp) runQueueLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.pipeline.Bridge.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logTickFailed("bridge", err)
		}
		if _, err := w.pipeline.Runner.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logTickFailed("runner", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		if err := w.pipeline.Heartbeat.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logTickFailed("heartbeat", err)
		}
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := w.pipeline.Heartbeat.Stop(stopCtx); err != nil {
				w.logTickFailed("heartbeat_stop", err)
			}
			return
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := w.pipeline.Sweeper.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logTickFailed("sweeper", err)
		}
	}
}

func (w *WorkerApp) logTickFailed(task string, err error) {
	w.logger.Warn("worker tick failed, retrying next tick",
		"event", "bootstrap_worker_tick_failed",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"task", task,
		"error", err.Error(),
	)
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.postgres != nil {
		errs = append(errs, w.postgres.Close())
	}
	return errors.Join(errs...)
}

func (o *OpsApp) Close() error {
	if o.Postgres != nil {
		return o.Postgres.Close()
	}
	return nil
}

func connectRedis(rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// workerID is the lease owner written to locked_by: the role plus a
// per-process suffix so two replicas never share a lease.
func workerID(workerName string, instanceID string) string {
	if instanceID == "" {
		return workerName
	}
	return workerName + ":" + instanceID
}

func workerMetadata(instanceID string) map[string]string {
	metadata := map[string]string{
		"pid": strconv.Itoa(os.Getpid()),
	}
	if instanceID != "" {
		metadata["instance_id"] = instanceID
	}
	if host, err := os.Hostname(); err == nil {
		metadata["host"] = host
	}
	return metadata
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
