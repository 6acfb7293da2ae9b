// --- File: internal/platform/fcm/gateway_test.go ---
package fcm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-promo-notifier/internal/platform/fcm"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// MockClient satisfies the MessagingClient interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPayload() dispatch.NotificationPayload {
	return dispatch.NewPayload(dispatch.Request{PromoCode: "SPRING24", Title: "Hi", Body: "Test"})
}

// allSuccess builds a BatchResponse reporting success for every token in msg.
func allSuccess(msg *messaging.MulticastMessage) *messaging.BatchResponse {
	br := &messaging.BatchResponse{SuccessCount: len(msg.Tokens)}
	for i := range msg.Tokens {
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: fmt.Sprintf("msg-%d", i)})
	}
	return br
}

func TestGateway_SendBatch(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()

	t.Run("Happy Path - Payload mapped onto multicast", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockResponse := &messaging.BatchResponse{
			SuccessCount: 2,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "msg-1"},
				{Success: true, MessageID: "msg-2"},
			},
		}
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return assert.ObjectsAreEqual(tokens, msg.Tokens) &&
				msg.Notification.Title == "Hi" &&
				msg.Notification.Body == "Test" &&
				msg.Data["type"] == "company_message" &&
				msg.Data["promo"] == "SPRING24"
		})).Return(mockResponse, nil).Once()

		result, err := gateway.SendBatch(ctx, tokens, testPayload())

		require.NoError(t, err)
		assert.Equal(t, 2, result.SuccessCount)
		require.Len(t, result.Results, 2)
		assert.Equal(t, "token-1", result.Results[0].Token)
		assert.Equal(t, "msg-2", result.Results[1].MessageID)
		assert.True(t, result.Results[1].Success())
		mockClient.AssertExpectations(t)
	})

	t.Run("Partial Failure - Results stay aligned", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)
		tokens := []string{"t1", "t2", "t3"}
		tokenErr := errors.New("requested entity was not found")

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(&messaging.BatchResponse{
			SuccessCount: 2,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "m1"},
				{Success: false, Error: tokenErr},
				{Success: true, MessageID: "m3"},
			},
		}, nil)

		result, err := gateway.SendBatch(ctx, tokens, testPayload())

		require.NoError(t, err)
		assert.Equal(t, 2, result.SuccessCount)
		assert.Equal(t, 1, result.FailureCount)
		require.Len(t, result.Results, 3)
		assert.Equal(t, "t2", result.Results[1].Token)
		assert.ErrorIs(t, result.Results[1].Err, tokenErr)
		assert.Equal(t, "unknown", result.Results[1].Reason)
		assert.NoError(t, result.Results[2].Err)
	})

	t.Run("Transport Failure fails the batch", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		result, err := gateway.SendBatch(ctx, []string{"token-1"}, testPayload())

		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "fcm multicast failed")
		assert.Contains(t, err.Error(), "network down")
	})

	t.Run("Misaligned response is rejected", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(&messaging.BatchResponse{
			SuccessCount: 1,
			Responses:    []*messaging.SendResponse{{Success: true}},
		}, nil)

		_, err := gateway.SendBatch(ctx, []string{"t1", "t2"}, testPayload())
		require.Error(t, err)
	})

	t.Run("Large batches are chunked at the multicast limit", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)

		tokens := make([]string, fcm.MaxMulticastTokens+3)
		for i := range tokens {
			tokens[i] = fmt.Sprintf("tok-%d", i)
		}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return len(msg.Tokens) == fcm.MaxMulticastTokens && msg.Tokens[0] == "tok-0"
		})).Return(allSuccess(&messaging.MulticastMessage{Tokens: tokens[:fcm.MaxMulticastTokens]}), nil).Once()
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return len(msg.Tokens) == 3 && msg.Tokens[0] == fmt.Sprintf("tok-%d", fcm.MaxMulticastTokens)
		})).Return(allSuccess(&messaging.MulticastMessage{Tokens: tokens[fcm.MaxMulticastTokens:]}), nil).Once()

		result, err := gateway.SendBatch(ctx, tokens, testPayload())

		require.NoError(t, err)
		assert.Equal(t, len(tokens), result.SuccessCount)
		require.Len(t, result.Results, len(tokens))
		for i, r := range result.Results {
			assert.Equal(t, tokens[i], r.Token)
		}
		mockClient.AssertExpectations(t)
	})

	t.Run("Empty token list is a no-op", func(t *testing.T) {
		mockClient := new(MockClient)
		gateway := fcm.NewGateway(mockClient, logger)

		result, err := gateway.SendBatch(ctx, nil, testPayload())

		require.NoError(t, err)
		assert.Empty(t, result.Results)
		mockClient.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
	})
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", fcm.Reason(nil))
	assert.Equal(t, "unknown", fcm.Reason(errors.New("opaque")))
}
