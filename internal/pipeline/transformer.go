// Package pipeline adapts the dispatcher to a Pub/Sub-triggered streaming service.
package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// RequestTransformer decodes a raw message payload into a dispatch.Request.
//
// A payload that cannot be decoded, or is missing promoCode, title or body,
// is skipped with an error so the StreamingService leaves it to the
// subscription's dead-letter policy.
func RequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.Request, bool, error) {
	req, err := dispatch.DecodeRequest(msg.Payload)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode dispatch request from message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}
