// Package dispatcher sends a company message to every device registered under a promo code.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// NoTokensMessage is returned when the promo code resolves to no device at all.
const NoTokensMessage = "No tokens found."

// ErrNoBatchResult is the cause reported when a gateway returns neither a result nor an error.
var ErrNoBatchResult = errors.New("push gateway returned no batch result")

// Dispatcher is stateless apart from its collaborators and is safe for concurrent use.
type Dispatcher struct {
	directory dispatch.UserDirectory
	gateway   dispatch.PushGateway
	logger    *slog.Logger
}

func New(directory dispatch.UserDirectory, gateway dispatch.PushGateway, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		gateway:   gateway,
		logger:    logger.With("component", "NotificationDispatcher"),
	}
}

// Dispatch validates req, resolves its promo code to device tokens and pushes one
// notification to all of them.
//
// Per-token delivery failures are logged and only lower the success count; the
// returned error is reserved for invalid input and directory or gateway failures.
func (d *Dispatcher) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Response, error) {
	logger := d.logger.With("invocation_id", uuid.NewString())

	// 1. Validation (before any I/O)
	if err := req.Validate(); err != nil {
		logger.Error("Missing arguments",
			"promoCode", req.PromoCode,
			"title", req.Title,
			"body", req.Body,
		)
		return nil, err
	}
	logger = logger.With("promo", req.PromoCode)

	// 2. Lookup
	users, err := d.directory.QueryByPromoCode(ctx, req.PromoCode)
	if err != nil {
		logger.Error("User directory lookup failed", "err", err)
		return nil, dispatch.NewDependencyFailure("user directory lookup", err)
	}

	tokens := make([]string, 0, len(users))
	for _, u := range users {
		if u.FCMToken != "" {
			tokens = append(tokens, u.FCMToken)
		}
	}

	// 3. Short circuit
	if len(tokens) == 0 {
		logger.Info("No tokens found for the given promo code.", "matched_users", len(users))
		return &dispatch.Response{Success: false, Message: NoTokensMessage}, nil
	}

	// 4. Dispatch (single batch, shared payload)
	br, err := d.gateway.SendBatch(ctx, tokens, dispatch.NewPayload(req))
	if err != nil {
		logger.Error("Batch delivery failed", "tokens", len(tokens), "err", err)
		return nil, dispatch.NewDependencyFailure("push gateway batch delivery", err)
	}
	if br == nil {
		logger.Error("Batch delivery returned no result", "tokens", len(tokens))
		return nil, dispatch.NewDependencyFailure("push gateway batch delivery", ErrNoBatchResult)
	}
	logger.Info("Successfully sent message",
		"success_count", br.SuccessCount,
		"failure_count", br.FailureCount,
		"tokens", len(tokens),
	)

	// 5. Accounting
	for idx, res := range br.Results {
		if res.Err == nil {
			continue
		}
		token := res.Token
		if idx < len(tokens) {
			token = tokens[idx]
		}
		logger.Error("Failure sending notification to token",
			"token", token,
			"reason", res.Reason,
			"err", res.Err,
		)
	}

	return &dispatch.Response{
		Success: true,
		Message: fmt.Sprintf("Notifications sent successfully to %d of %d tokens.", br.SuccessCount, len(tokens)),
	}, nil
}
