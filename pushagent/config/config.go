package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	StorageFile      = "file"
	StorageFirestore = "firestore"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type CoordinatorConfig struct {
	RegisterOnStart bool
	ShowSystemAlert bool
	RepostSameToken bool
	AutoGrant       bool
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID      string
	ListenAddr     string
	InstallationID string

	// Storage selects where tokens and flags live: "file" or "firestore".
	Storage   string
	StatePath string

	CorsConfig  middleware.CorsConfig
	Redis       RedisConfig
	Coordinator CoordinatorConfig

	// The inbound push subscription is optional. Without it the agent is
	// driven over HTTP only.
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether inbound pushes arrive over Pub/Sub.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("INSTALLATION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "INSTALLATION_ID", "source", "env")
		cfg.InstallationID = val
	}
	if val := os.Getenv("STORAGE"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE", "source", "env")
		cfg.Storage = val
	}
	if val := os.Getenv("STATE_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "STATE_PATH", "source", "env")
		cfg.StatePath = val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}

	// Coordinator switches
	overrideBool("REGISTER_ON_START", &cfg.Coordinator.RegisterOnStart, logger)
	overrideBool("SHOW_SYSTEM_ALERT", &cfg.Coordinator.ShowSystemAlert, logger)
	overrideBool("REPOST_SAME_TOKEN", &cfg.Coordinator.RepostSameToken, logger)
	overrideBool("AUTO_GRANT", &cfg.Coordinator.AutoGrant, logger)

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	overrideBool("REDIS_ENABLED", &cfg.Redis.Enabled, logger)

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.InstallationID == "" {
		return nil, fmt.Errorf("installation_id is required (set via YAML or INSTALLATION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageFile
	}
	switch cfg.Storage {
	case StorageFile:
		if cfg.StatePath == "" {
			cfg.StatePath = "push-state.yaml"
		}
	case StorageFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("project_id is required for firestore storage (set via YAML or PROJECT_ID env var)")
		}
	default:
		return nil, fmt.Errorf("unknown storage %q: want %s or %s", cfg.Storage, StorageFile, StorageFirestore)
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required when redis is enabled (set via YAML or REDIS_ADDR env var)")
	}
	if cfg.PipelineEnabled() {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("project_id is required when subscription_id is set")
		}
		if cfg.PubsubConsumerConfig == nil {
			cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
		}
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func overrideBool(key string, target *bool, logger *slog.Logger) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		logger.Warn("Ignoring invalid boolean override", "key", key, "value", val)
		return
	}
	logger.Debug("Overriding config value", "key", key, "source", "env")
	*target = parsed
}
