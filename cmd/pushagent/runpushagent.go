package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-coordinator/internal/actions"
	"github.com/tinywideclouds/go-push-coordinator/internal/authority"
	"github.com/tinywideclouds/go-push-coordinator/internal/backend"
	"github.com/tinywideclouds/go-push-coordinator/internal/lifecycle"
	"github.com/tinywideclouds/go-push-coordinator/internal/storage/cache"
	"github.com/tinywideclouds/go-push-coordinator/internal/storage/file"
	fsStore "github.com/tinywideclouds/go-push-coordinator/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-coordinator/pkg/dispatch"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"

	"github.com/tinywideclouds/go-push-coordinator/pushagent"
	"github.com/tinywideclouds/go-push-coordinator/pushagent/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-coordinator")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	installation, err := urn.Parse(cfg.InstallationID)
	if err != nil {
		logger.Error("Invalid installation id", "installation_id", cfg.InstallationID, "err", err)
		os.Exit(1)
	}

	// --- Storage ---
	var tokenStore dispatch.TokenStore
	var flagStore pushclient.FlagStore

	switch cfg.Storage {
	case config.StorageFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("Firestore client failed", "err", err)
			os.Exit(1)
		}
		defer fsClient.Close()
		store := fsStore.NewFirestoreStore(fsClient)
		tokenStore = store
		flagStore = fsStore.NewFlagStore(store, installation)
	default:
		store := file.NewStore(cfg.StatePath)
		tokenStore = store
		flagStore = store.Flags(installation)
	}
	logger.Info("TokenStore initialized", "type", cfg.Storage)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		tokenStore = cache.NewCachedTokenStore(tokenStore, redisClient, 24*time.Hour)
		flagStore = cache.NewFlagStore(flagStore, redisClient, installation)
		logger.Info("Stores upgraded", "type", "redis_cached_"+cfg.Storage)
	}

	// --- Coordinator ---
	syncer := backend.NewSync(tokenStore, installation, cfg.Coordinator.RepostSameToken, logger)
	tracker := lifecycle.NewTracker(pushclient.AppStateActive)
	router := newRouter(logger)
	local := authority.NewLocalAuthority(installation.String(), cfg.Coordinator.AutoGrant, logger)

	coordinator, err := pushclient.New(ctx, local, syncer, router, syncer, flagStore,
		pushclient.Options{ShowSystemAlert: cfg.Coordinator.ShowSystemAlert}, logger)
	if err != nil {
		logger.Error("Coordinator creation failed", "err", err)
		os.Exit(1)
	}
	local.Deliver(
		func(ctx context.Context, raw []byte) {
			if _, err := coordinator.HandleTokenReceived(ctx, raw); err != nil {
				logger.Error("Token reconciliation failed", "err", err)
			}
		},
		coordinator.HandleRegistrationFailure,
	)

	// --- Auth ---
	var authMiddleware func(http.Handler) http.Handler
	if identityURL := os.Getenv("IDENTITY_SERVICE_URL"); identityURL != "" {
		jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
		if err != nil {
			logger.Error("JWT discovery failed", "err", err)
			os.Exit(1)
		}
		authMiddleware, err = middleware.NewJWKSAuthMiddleware(jwksURL, logger)
		if err != nil {
			logger.Error("JWKS middleware failed", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("IDENTITY_SERVICE_URL not set, lifecycle API is unauthenticated")
	}

	// --- Consumer (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PipelineEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Consumer creation failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := pushagent.New(cfg, consumer, coordinator, tracker, syncer, authMiddleware, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	coordinator.Start(ctx, pushclient.Launch{State: tracker.State()}, cfg.Coordinator.RegisterOnStart)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting agent...", "installation", installation.String())
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Agent shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newRouter logs routed pushes. Hosts embedding the coordinator register
// their own handlers.
func newRouter(logger *slog.Logger) *actions.Router {
	router := actions.NewRouter(logger)
	for _, key := range []string{"chat_id", "url", "action"} {
		router.Handle(key, func(_ context.Context, dispatchID string, push pushclient.PendingPush) error {
			logger.Info("Push action", "dispatch_id", dispatchID, "key", key, "value", push.Payload[key])
			return nil
		})
	}
	return router
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: true,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
