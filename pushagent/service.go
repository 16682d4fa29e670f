package pushagent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-coordinator/internal/api"
	"github.com/tinywideclouds/go-push-coordinator/internal/lifecycle"
	"github.com/tinywideclouds/go-push-coordinator/internal/pipeline"
	"github.com/tinywideclouds/go-push-coordinator/pushagent/config"
)

// Wrapper runs the lifecycle API and, when configured, the inbound push
// pipeline around one coordinator.
type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.InboundPush]
	logger          *slog.Logger
}

// New assembles the agent. consumer may be nil, in which case pushes are
// only accepted over HTTP. authMiddleware may be nil for local use.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	coordinator api.Coordinator,
	tracker *lifecycle.Tracker,
	backend api.Backend,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (single worker: push order matters to the pending slot)
	var streamingService *messagepipeline.StreamingService[pipeline.InboundPush]
	if consumer != nil {
		processor := pipeline.NewProcessor(coordinator, tracker, logger)

		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: 1},
			consumer,
			pipeline.InboundPushTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. API (Lifecycle callbacks)
	lifecycleAPI := api.NewLifecycleAPI(coordinator, tracker, backend, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	if authMiddleware == nil {
		authMiddleware = func(next http.Handler) http.Handler { return next }
	}

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/permission", lifecycleAPI.RequestPermission)
	handle("GET /api/v1/status", lifecycleAPI.Status)

	handle("POST /api/v1/token", lifecycleAPI.TokenReceived)
	handle("POST /api/v1/token/error", lifecycleAPI.RegistrationFailed)
	handle("POST /api/v1/token/forget", lifecycleAPI.ForgetToken)
	handle("POST /api/v1/resync", lifecycleAPI.Resync)

	handle("POST /api/v1/push", lifecycleAPI.PushReceived)
	handle("POST /api/v1/push/foreground", lifecycleAPI.ForegroundPush)

	handle("POST /api/v1/lifecycle/active", lifecycleAPI.BecameActive)
	handle("POST /api/v1/lifecycle/state", lifecycleAPI.StateChanged)

	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Inbound push pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Agent is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down agent components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Agent shutdown complete.")
	return finalErr
}
