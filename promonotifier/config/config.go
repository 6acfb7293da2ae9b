// --- File: promonotifier/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	DefaultListenAddr      = ":8080"
	DefaultUsersCollection = "users"
	DefaultDispatchTimeout = 60 * time.Second
	DefaultCacheTTL        = 60 * time.Second
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AppCheckConfig controls origin verification on the callable endpoint.
// AllowInvalidToken lets calls with a missing or bad token through with a warning.
type AppCheckConfig struct {
	Enabled           bool
	AllowInvalidToken bool
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID       string
	ListenAddr      string
	UsersCollection string
	CredentialsFile string
	DispatchTimeout time.Duration

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	AppCheck   AppCheckConfig

	// Pub/Sub trigger; disabled when SubscriptionID is empty.
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether the Pub/Sub trigger should be started.
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
	if val := os.Getenv("USERS_COLLECTION"); val != "" {
		logger.Debug("Overriding config value", "key", "USERS_COLLECTION", "source", "env")
		cfg.UsersCollection = val
	}
	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		logger.Debug("Overriding config value", "key", "GOOGLE_APPLICATION_CREDENTIALS", "source", "env")
		cfg.CredentialsFile = val
	}
	if val := os.Getenv("DISPATCH_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "DISPATCH_TIMEOUT", "source", "env")
		cfg.DispatchTimeout = d
	}

	// Pub/Sub Overrides
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
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

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
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}
	if val := os.Getenv("REDIS_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil && ttl > 0 {
			cfg.Redis.TTL = ttl
		}
	}

	// App Check Overrides
	if val := os.Getenv("APP_CHECK_ENABLED"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid APP_CHECK_ENABLED %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "APP_CHECK_ENABLED", "source", "env")
		cfg.AppCheck.Enabled = enabled
	}
	if val := os.Getenv("APP_CHECK_ALLOW_INVALID_TOKEN"); val != "" {
		allow, err := strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid APP_CHECK_ALLOW_INVALID_TOKEN %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "APP_CHECK_ALLOW_INVALID_TOKEN", "source", "env")
		cfg.AppCheck.AllowInvalidToken = allow
	}

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
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.UsersCollection == "" {
		cfg.UsersCollection = DefaultUsersCollection
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = DefaultCacheTTL
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.AppCheck.AllowInvalidToken {
		logger.Warn("App Check is configured to allow invalid tokens; callable origin is not enforced")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
