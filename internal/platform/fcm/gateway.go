// --- File: internal/platform/fcm/gateway.go ---
package fcm

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// MaxMulticastTokens is the FCM limit for a single multicast request.
const MaxMulticastTokens = 500

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it; tests substitute a mock.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Gateway delivers a payload to FCM device tokens.
type Gateway struct {
	client    MessagingClient
	chunkSize int
	logger    *slog.Logger
}

func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:    client,
		chunkSize: MaxMulticastTokens,
		logger:    logger.With("component", "FCMGateway"),
	}
}

// SendBatch sends payload to every token. Tokens beyond the multicast limit are sent
// in consecutive chunks; the returned Results stay aligned with tokens.
// Any chunk failing at the transport level fails the whole batch.
func (g *Gateway) SendBatch(ctx context.Context, tokens []string, payload dispatch.NotificationPayload) (*dispatch.BatchResult, error) {
	result := &dispatch.BatchResult{
		Results: make([]dispatch.DeliveryResult, 0, len(tokens)),
	}
	if len(tokens) == 0 {
		return result, nil
	}

	for start := 0; start < len(tokens); start += g.chunkSize {
		end := min(start+g.chunkSize, len(tokens))
		chunk := tokens[start:end]

		br, err := g.client.SendEachForMulticast(ctx, newMulticast(chunk, payload))
		if err != nil {
			return nil, errors.Wrapf(err, "fcm multicast failed for tokens [%d:%d]", start, end)
		}
		if len(br.Responses) != len(chunk) {
			return nil, errors.Errorf("fcm returned %d responses for %d tokens", len(br.Responses), len(chunk))
		}

		result.SuccessCount += br.SuccessCount
		result.FailureCount += br.FailureCount
		for idx, resp := range br.Responses {
			dr := dispatch.DeliveryResult{Token: chunk[idx]}
			if resp != nil {
				dr.MessageID = resp.MessageID
				if !resp.Success {
					dr.Err = resp.Error
					if dr.Err == nil {
						dr.Err = errors.New("fcm reported failure without error detail")
					}
					dr.Reason = Reason(dr.Err)
				}
			} else {
				dr.Err = errors.New("fcm returned no response for token")
				dr.Reason = Reason(dr.Err)
			}
			result.Results = append(result.Results, dr)
		}
		g.logger.Debug("FCM chunk sent", "from", start, "to", end, "success", br.SuccessCount, "failure", br.FailureCount)
	}

	return result, nil
}

func newMulticast(tokens []string, payload dispatch.NotificationPayload) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   payload.Data,
		Notification: &messaging.Notification{
			Title: payload.Notification.Title,
			Body:  payload.Notification.Body,
		},
	}
}

// Reason classifies a per-token FCM error for logging.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case messaging.IsUnregistered(err):
		return "unregistered"
	case messaging.IsInvalidArgument(err):
		return "invalid_argument"
	case messaging.IsSenderIDMismatch(err):
		return "sender_id_mismatch"
	case messaging.IsQuotaExceeded(err):
		return "quota_exceeded"
	case messaging.IsUnavailable(err):
		return "unavailable"
	case messaging.IsInternal(err):
		return "internal"
	default:
		return "unknown"
	}
}
