package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-push-coordinator/pushagent/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:              "yaml-project",
			ListenAddr:             ":9000",
			InstallationID:         "urn:push:installation:yaml",
			Storage:                "firestore",
			StatePath:              "/var/lib/push.yaml",
			TopicID:                "yaml-topic",
			SubscriptionID:         "yaml-subscription",
			SubscriptionDLQTopicID: "yaml-dlq",
			CorsConfig: config.YamlCorsConfig{
				AllowedOrigins: []string{"http://yaml.com"},
				Role:           "editor",
			},
			RedisConfig: config.YamlRedisConfig{Addr: "redis:6379", DB: 2, Enabled: true},
			CoordinatorConfig: config.YamlCoordinatorConfig{
				RegisterOnStart: true,
				RepostSameToken: true,
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "urn:push:installation:yaml", cfg.InstallationID)
		assert.Equal(t, config.StorageFirestore, cfg.Storage)
		assert.Equal(t, "/var/lib/push.yaml", cfg.StatePath)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)

		// 2. CORS
		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		// 3. Redis and coordinator switches
		assert.Equal(t, config.RedisConfig{Addr: "redis:6379", DB: 2, Enabled: true}, cfg.Redis)
		assert.True(t, cfg.Coordinator.RegisterOnStart)
		assert.True(t, cfg.Coordinator.RepostSameToken)
		assert.False(t, cfg.Coordinator.ShowSystemAlert)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{InstallationID: "urn:push:installation:min"}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Empty(t, cfg.ListenAddr)
		assert.Empty(t, cfg.Storage)
		assert.Nil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Unmarshals document", func(t *testing.T) {
		doc := []byte(`
installation_id: "urn:push:installation:doc"
storage: file
state_path: ./state.yaml
coordinator:
  show_system_alert: true
  auto_grant: true
redis:
  enabled: false
`)
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal(doc, &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)
		assert.Equal(t, "./state.yaml", cfg.StatePath)
		assert.True(t, cfg.Coordinator.ShowSystemAlert)
		assert.True(t, cfg.Coordinator.AutoGrant)
		assert.False(t, cfg.Redis.Enabled)
	})
}
