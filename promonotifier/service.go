// Package promonotifier assembles the promo notification service.
package promonotifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-promo-notifier/internal/api"
	"github.com/tinywideclouds/go-promo-notifier/internal/pipeline"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-promo-notifier/promonotifier/config"
)

// SendTestNotificationPath is the callable route.
const SendTestNotificationPath = "/sendTestNotification"

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.Request]
	logger          *slog.Logger
}

// New assembles the service.
// consumer may be nil, in which case only the callable endpoint is served.
// appCheck may be nil, which disables origin verification.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatcher api.Dispatcher,
	appCheck api.AppCheckVerifier,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[dispatch.Request]
	if consumer != nil {
		numWorkers := cfg.NumPipelineWorkers
		if numWorkers < 1 {
			numWorkers = 1
		}
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: numWorkers},
			consumer,
			pipeline.RequestTransformer,
			pipeline.NewProcessor(dispatcher, cfg.DispatchTimeout, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 3. Callable API
	opts := api.CallableOptions{
		AllowInvalidAppCheckToken: cfg.AppCheck.AllowInvalidToken,
		Timeout:                   cfg.DispatchTimeout,
	}
	if cfg.AppCheck.Enabled && appCheck != nil {
		opts.AppCheck = appCheck
	}
	callableAPI := api.NewCallableAPI(dispatcher, opts, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	mux.Handle("OPTIONS "+SendTestNotificationPath, corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	mux.Handle("POST "+SendTestNotificationPath, corsMiddleware(http.HandlerFunc(callableAPI.SendTestNotification)))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

// Start runs the pipeline, if configured, then serves HTTP until shutdown.
func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Pub/Sub trigger pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
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
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
