package taskpipeline

import (
	"log/slog"
	"time"

	httpadapter "taskpipe/contexts/async-delivery/task-pipeline/adapters/http"
	"taskpipe/contexts/async-delivery/task-pipeline/adapters/memory"
	"taskpipe/contexts/async-delivery/task-pipeline/application/commands"
	"taskpipe/contexts/async-delivery/task-pipeline/application/handlers"
	"taskpipe/contexts/async-delivery/task-pipeline/application/queries"
	"taskpipe/contexts/async-delivery/task-pipeline/application/translators"
	"taskpipe/contexts/async-delivery/task-pipeline/application/workers"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/services"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"

	"go.opentelemetry.io/otel/trace"
)

// Module is the composition surface of the task pipeline.
// Workers are driven by bootstrap loops; Handler serves the ops API.
type Module struct {
	Handler     httpadapter.Handler
	Bridge      workers.OutboxBridge
	Runner      workers.JobRunner
	Sweeper     workers.LeaseSweeper
	Heartbeat   workers.HeartbeatReporter
	EmitEvent   commands.EmitEventUseCase
	EnqueueJob  commands.EnqueueJobUseCase
	RequeueJob  commands.RequeueDeadJobUseCase
	Queries     queries.QueryUseCase
	Translators *translators.Registry
	Handlers    *handlers.Registry
	Store       *memory.Store
}

type Settings struct {
	WorkerName         string
	WorkerID           string
	WorkerMetadata     map[string]string
	EmailFrom          string
	AppBaseURL         string
	BridgeBatchSize    int
	JobBatchSize       int
	Concurrency        int
	MaxAttempts        int
	HandlerTimeout     time.Duration
	LeaseTimeout       time.Duration
	HeartbeatFreshness time.Duration
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		WorkerName:         "queue_worker",
		WorkerID:           "queue_worker",
		EmailFrom:          "no-reply@localhost",
		AppBaseURL:         "http://localhost:3000",
		BridgeBatchSize:    50,
		JobBatchSize:       10,
		Concurrency:        1,
		MaxAttempts:        entities.DefaultMaxAttempts,
		HandlerTimeout:     60 * time.Second,
		LeaseTimeout:       5 * time.Minute,
		HeartbeatFreshness: 60 * time.Second,
		RetryBaseDelay:     services.DefaultBaseDelay,
	}
}

type Dependencies struct {
	Outbox     ports.OutboxStore
	Jobs       ports.JobRepository
	Heartbeats ports.HeartbeatRepository
	Email      ports.EmailSender
	Realtime   ports.RealtimePublisher
	Clock      ports.Clock
	Settings   Settings
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

// NewModule wires the bridge, the runner and the ops use cases against
// explicit ports.
func NewModule(deps Dependencies) (Module, error) {
	settings := deps.Settings
	if settings.RetryBaseDelay <= 0 {
		settings.RetryBaseDelay = services.DefaultBaseDelay
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = entities.DefaultMaxAttempts
	}

	translatorRegistry, err := translators.NewDefaultRegistry(translators.Options{
		AppBaseURL:  settings.AppBaseURL,
		MaxAttempts: settings.MaxAttempts,
	})
	if err != nil {
		return Module{}, err
	}

	handlerRegistry := handlers.NewRegistry()
	if err := handlerRegistry.Register(handlers.JobTypeSendEmail, handlers.EmailHandler{
		Sender: deps.Email,
		From:   settings.EmailFrom,
		Logger: deps.Logger,
	}); err != nil {
		return Module{}, err
	}
	if err := handlerRegistry.Register(handlers.JobTypeRealtimePush, handlers.RealtimeHandler{
		Publisher: deps.Realtime,
		Logger:    deps.Logger,
	}); err != nil {
		return Module{}, err
	}

	bridge := workers.OutboxBridge{
		Outbox:     deps.Outbox,
		Translator: translatorRegistry,
		Clock:      deps.Clock,
		BatchSize:  settings.BridgeBatchSize,
		Logger:     deps.Logger,
	}
	runner := workers.JobRunner{
		Jobs:           deps.Jobs,
		Handlers:       handlerRegistry,
		Clock:          deps.Clock,
		WorkerID:       settings.WorkerID,
		BatchSize:      settings.JobBatchSize,
		Concurrency:    settings.Concurrency,
		HandlerTimeout: settings.HandlerTimeout,
		Retry: services.RetryPolicy{
			BaseDelay: settings.RetryBaseDelay,
			MaxDelay:  settings.RetryMaxDelay,
		},
		Tracer: deps.Tracer,
		Logger: deps.Logger,
	}
	sweeper := workers.LeaseSweeper{
		Jobs:         deps.Jobs,
		Clock:        deps.Clock,
		LeaseTimeout: settings.LeaseTimeout,
		Logger:       deps.Logger,
	}
	heartbeat := workers.HeartbeatReporter{
		Heartbeats: deps.Heartbeats,
		Clock:      deps.Clock,
		WorkerName: settings.WorkerName,
		Metadata:   settings.WorkerMetadata,
		Logger:     deps.Logger,
	}

	emitEvent := commands.EmitEventUseCase{
		Outbox: deps.Outbox,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	enqueueJob := commands.EnqueueJobUseCase{
		Jobs:               deps.Jobs,
		Clock:              deps.Clock,
		DefaultMaxAttempts: settings.MaxAttempts,
		Logger:             deps.Logger,
	}
	requeueJob := commands.RequeueDeadJobUseCase{
		Jobs:   deps.Jobs,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	queryUseCase := queries.QueryUseCase{
		Outbox:             deps.Outbox,
		Jobs:               deps.Jobs,
		Heartbeats:         deps.Heartbeats,
		Clock:              deps.Clock,
		HeartbeatFreshness: settings.HeartbeatFreshness,
		Logger:             deps.Logger,
	}

	return Module{
		Handler: httpadapter.Handler{
			Queries:    queryUseCase,
			EnqueueJob: enqueueJob,
			RequeueJob: requeueJob,
			Logger:     deps.Logger,
		},
		Bridge:      bridge,
		Runner:      runner,
		Sweeper:     sweeper,
		Heartbeat:   heartbeat,
		EmitEvent:   emitEvent,
		EnqueueJob:  enqueueJob,
		RequeueJob:  requeueJob,
		Queries:     queryUseCase,
		Translators: translatorRegistry,
		Handlers:    handlerRegistry,
	}, nil
}

// NewInMemoryModule wires the pipeline against the in-memory store and
// recording providers. Used by local runs without infrastructure and by tests.
func NewInMemoryModule(
	email ports.EmailSender,
	realtime ports.RealtimePublisher,
	settings Settings,
	logger *slog.Logger,
) (Module, error) {
	store := memory.NewStore(logger)
	if email == nil {
		email = &memory.EmailRecorder{}
	}
	if realtime == nil {
		realtime = &memory.RealtimeRecorder{}
	}
	module, err := NewModule(Dependencies{
		Outbox:     store,
		Jobs:       store,
		Heartbeats: store,
		Email:      email,
		Realtime:   realtime,
		Clock:      store,
		Settings:   settings,
		Logger:     logger,
	})
	if err != nil {
		return Module{}, err
	}
	module.Store = store
	return module, nil
}
