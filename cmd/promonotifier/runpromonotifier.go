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

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	firebase "firebase.google.com/go/v4"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-promo-notifier/internal/api"
	"github.com/tinywideclouds/go-promo-notifier/internal/dispatcher"
	"github.com/tinywideclouds/go-promo-notifier/internal/platform/fcm"
	"github.com/tinywideclouds/go-promo-notifier/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-promo-notifier/internal/storage/firestore"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-promo-notifier/promonotifier"
	"github.com/tinywideclouds/go-promo-notifier/promonotifier/config"
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
	})).With("service", "go-promo-notifier")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Failed to map yaml config", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	// --- Firebase (initialized once) ---
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		logger.Error("Failed to initialize Firebase App", "err", err)
		os.Exit(1)
	}

	fsClient, err := fbApp.Firestore(ctx)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		logger.Error("Failed to create FCM messaging client", "err", err)
		os.Exit(1)
	}

	var appCheck api.AppCheckVerifier
	if cfg.AppCheck.Enabled {
		appCheckClient, err := fbApp.AppCheck(ctx)
		if err != nil {
			logger.Error("Failed to create App Check client", "err", err)
			os.Exit(1)
		}
		appCheck = appCheckClient
		logger.Info("App Check enabled", "allow_invalid_token", cfg.AppCheck.AllowInvalidToken)
	} else {
		logger.Warn("App Check disabled; callable origin is not verified")
	}

	// --- User Directory (Decorated) ---
	var directory dispatch.UserDirectory = fsStore.NewUserDirectory(fsClient, cfg.UsersCollection, logger)
	logger.Info("UserDirectory initialized", "type", "firestore", "collection", cfg.UsersCollection)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		directory = cache.NewCachedUserDirectory(directory, redisClient, cfg.Redis.TTL, logger)
		logger.Info("UserDirectory upgraded", "type", "redis_cached_firestore", "ttl", cfg.Redis.TTL)
	}

	// --- Dispatcher ---
	gateway := fcm.NewGateway(fcmMessaging, logger)
	promoDispatcher := dispatcher.New(directory, gateway, logger)

	// --- Pub/Sub trigger (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PipelineEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newTriggerConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Pub/Sub trigger setup failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := promonotifier.New(cfg, consumer, promoDispatcher, appCheck, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...", "listen_addr", cfg.ListenAddr, "pipeline_enabled", cfg.PipelineEnabled())
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newTriggerConsumer ensures the trigger subscription exists and returns a consumer for it.
// Without a topic the subscription is assumed to be provisioned elsewhere.
func newTriggerConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")

	if cfg.TopicID != "" {
		subConfig := &pubsubpb.Subscription{
			Name:               sub,
			Topic:              convertPubsub(cfg.ProjectID, cfg.TopicID, "topics"),
			AckDeadlineSeconds: ackDeadlineSeconds(cfg.DispatchTimeout),
			RetryPolicy: &pubsubpb.RetryPolicy{
				MinimumBackoff: durationpb.New(10 * time.Second),
			},
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
				return nil, fmt.Errorf("could not create sub %s: %w", sub, err)
			}
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(sub), psClient, logger,
	)
}

// Pub/Sub accepts ack deadlines between 10 and 600 seconds.
const (
	minAckDeadlineSeconds = 10
	maxAckDeadlineSeconds = 600
)

// ackDeadlineSeconds derives the subscription ack deadline from the dispatch timeout.
func ackDeadlineSeconds(timeout time.Duration) int32 {
	secs := int64(timeout / time.Second)
	if timeout%time.Second != 0 {
		secs++
	}
	switch {
	case secs < minAckDeadlineSeconds:
		return minAckDeadlineSeconds
	case secs > maxAckDeadlineSeconds:
		return maxAckDeadlineSeconds
	default:
		return int32(secs)
	}
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
