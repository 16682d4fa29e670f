package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlCoordinatorConfig struct {
	RegisterOnStart bool `yaml:"register_on_start"`
	ShowSystemAlert bool `yaml:"show_system_alert"`
	RepostSameToken bool `yaml:"repost_same_token"`
	AutoGrant       bool `yaml:"auto_grant"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                `yaml:"project_id"`
	ListenAddr             string                `yaml:"listen_addr"`
	InstallationID         string                `yaml:"installation_id"`
	Storage                string                `yaml:"storage"`
	StatePath              string                `yaml:"state_path"`
	TopicID                string                `yaml:"topic_id"`
	SubscriptionID         string                `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig        `yaml:"cors"`
	RedisConfig            YamlRedisConfig       `yaml:"redis"`
	CoordinatorConfig      YamlCoordinatorConfig `yaml:"coordinator"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		InstallationID: baseCfg.InstallationID,
		Storage:        baseCfg.Storage,
		StatePath:      baseCfg.StatePath,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Coordinator: CoordinatorConfig{
			RegisterOnStart: baseCfg.CoordinatorConfig.RegisterOnStart,
			ShowSystemAlert: baseCfg.CoordinatorConfig.ShowSystemAlert,
			RepostSameToken: baseCfg.CoordinatorConfig.RepostSameToken,
			AutoGrant:       baseCfg.CoordinatorConfig.AutoGrant,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"installation_id", cfg.InstallationID,
		"listen_addr", cfg.ListenAddr,
		"storage", cfg.Storage,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
