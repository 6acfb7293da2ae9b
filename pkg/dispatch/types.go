// Package dispatch contains the public types and collaborator contracts of the
// promo notification function.
package dispatch

import (
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// MessageTypeCompany is the data "type" value carried by every promo notification.
const MessageTypeCompany = "company_message"

// UserRecord is the subset of a user document this service reads.
// An empty FCMToken means the user has no registered device.
type UserRecord struct {
	ID        string
	PromoCode string
	FCMToken  string
}

// NotificationPayload is the message shared by every token in a batch.
type NotificationPayload struct {
	Notification notification.NotificationContent
	Data         map[string]string
}

// NewPayload builds the payload for a validated request.
func NewPayload(req Request) NotificationPayload {
	return NotificationPayload{
		Notification: notification.NotificationContent{
			Title: req.Title,
			Body:  req.Body,
		},
		Data: map[string]string{
			"type":  MessageTypeCompany,
			"promo": req.PromoCode,
		},
	}
}

// DeliveryResult is the outcome for a single token.
// Reason is an optional short classification of Err supplied by the gateway.
type DeliveryResult struct {
	Token     string
	MessageID string
	Reason    string
	Err       error
}

// Success reports whether the token accepted the message.
func (r DeliveryResult) Success() bool {
	return r.Err == nil
}

// BatchResult aggregates a batch delivery. Results is index-aligned with the submitted tokens.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []DeliveryResult
}

// Response is returned to the caller once the lookup (and dispatch, if any) completed.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
