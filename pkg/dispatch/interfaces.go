// --- File: pkg/dispatch/interfaces.go ---
package dispatch

import (
	"context"
)

// UserDirectory is the read-only view of the user documents owned by the wider application.
type UserDirectory interface {
	// QueryByPromoCode returns every user whose promoCode equals code exactly.
	// There is no page limit: the full matching set is returned.
	QueryByPromoCode(ctx context.Context, code string) ([]UserRecord, error)
}

// PushGateway delivers one shared payload to a batch of device tokens.
type PushGateway interface {
	// SendBatch returns one DeliveryResult per token, in the order the tokens were given.
	// A non-nil error means the batch itself failed and no result is available.
	SendBatch(ctx context.Context, tokens []string, payload NotificationPayload) (*BatchResult, error)
}
