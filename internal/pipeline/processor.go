package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// Dispatcher is the operation the processor drives for every message.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Response, error)
}

// NewProcessor returns the stream processor that runs one dispatch per message.
// A positive timeout bounds each dispatch, as on the callable endpoint.
//
// Every message is acknowledged, whatever the outcome. A redelivered message
// would push the same notification again to tokens that already received it,
// so failures are logged and dropped.
func NewProcessor(
	dispatcher Dispatcher,
	timeout time.Duration,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[dispatch.Request] {
	logger = logger.With("component", "PipelineProcessor")

	return func(ctx context.Context, original messagepipeline.Message, request *dispatch.Request) error {
		procLogger := logger.With(
			"pubsub_msg_id", original.ID,
			"promo_code", request.PromoCode,
		)

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp, err := dispatcher.Dispatch(ctx, *request)
		if err != nil {
			procLogger.Error("Dispatch failed; message acknowledged without retry",
				"code", dispatch.CodeOf(err).String(), "err", err)
			return nil
		}

		procLogger.Info("Dispatch complete", "success", resp.Success, "message", resp.Message)
		return nil
	}
}
