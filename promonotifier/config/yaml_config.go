// --- File: promonotifier/config/yaml_config.go ---
package config

import (
	"fmt"
	"log/slog"
	"time"

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
	TTL      string `yaml:"ttl"`
}

// YamlAppCheckConfig uses a pointer so an omitted "enabled" keeps verification on.
type YamlAppCheckConfig struct {
	Enabled           *bool `yaml:"enabled"`
	AllowInvalidToken bool  `yaml:"allow_invalid_token"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string             `yaml:"project_id"`
	ListenAddr             string             `yaml:"listen_addr"`
	UsersCollection        string             `yaml:"users_collection"`
	CredentialsFile        string             `yaml:"credentials_file"`
	DispatchTimeout        string             `yaml:"dispatch_timeout"`
	TopicID                string             `yaml:"topic_id"`
	SubscriptionID         string             `yaml:"subscription_id"`
	SubscriptionDLQTopicID string             `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig     `yaml:"cors"`
	RedisConfig            YamlRedisConfig    `yaml:"redis"`
	AppCheckConfig         YamlAppCheckConfig `yaml:"app_check"`
	NumPipelineWorkers     int                `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	dispatchTimeout, err := parseOptionalDuration(baseCfg.DispatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dispatch_timeout: %w", err)
	}
	cacheTTL, err := parseOptionalDuration(baseCfg.RedisConfig.TTL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis.ttl: %w", err)
	}

	appCheckEnabled := true
	if baseCfg.AppCheckConfig.Enabled != nil {
		appCheckEnabled = *baseCfg.AppCheckConfig.Enabled
	}

	cfg := &Config{
		ProjectID:       baseCfg.ProjectID,
		ListenAddr:      baseCfg.ListenAddr,
		UsersCollection: baseCfg.UsersCollection,
		CredentialsFile: baseCfg.CredentialsFile,
		DispatchTimeout: dispatchTimeout,
		TopicID:         baseCfg.TopicID,
		SubscriptionID:  baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      cacheTTL,
		},
		AppCheck: AppCheckConfig{
			Enabled:           appCheckEnabled,
			AllowInvalidToken: baseCfg.AppCheckConfig.AllowInvalidToken,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"users_collection", cfg.UsersCollection,
		"subscription_id", cfg.SubscriptionID,
		"app_check_enabled", cfg.AppCheck.Enabled,
	)

	return cfg, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
