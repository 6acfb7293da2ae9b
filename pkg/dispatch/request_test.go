package dispatch_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDecodeRequest(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "Valid", payload: `{"promoCode":"SPRING24","title":"Hi","body":"Test"}`},
		{name: "Whitespace values are not empty", payload: `{"promoCode":" ","title":" ","body":" "}`},
		{name: "Unknown fields ignored", payload: `{"promoCode":"A","title":"B","body":"C","extra":1}`},
		{name: "Missing promoCode", payload: `{"title":"Hi","body":"Test"}`, wantErr: true},
		{name: "Missing title", payload: `{"promoCode":"SPRING24","body":"Test"}`, wantErr: true},
		{name: "Missing body", payload: `{"promoCode":"SPRING24","title":"Hi"}`, wantErr: true},
		{name: "Empty promoCode", payload: `{"promoCode":"","title":"Hi","body":"Test"}`, wantErr: true},
		{name: "Null title", payload: `{"promoCode":"SPRING24","title":null,"body":"Test"}`, wantErr: true},
		{name: "Numeric promoCode", payload: `{"promoCode":42,"title":"Hi","body":"Test"}`, wantErr: true},
		{name: "All missing", payload: `{}`, wantErr: true},
		{name: "Malformed JSON", payload: `not-json`, wantErr: true},
		{name: "Empty body", payload: ``, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := dispatch.DecodeRequest([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, codes.InvalidArgument, dispatch.CodeOf(err))
				assert.Equal(t, dispatch.Request{}, req)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, req.PromoCode)
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Run("Every combination of missing fields is rejected", func(t *testing.T) {
		for mask := 0; mask < 7; mask++ {
			req := dispatch.Request{}
			if mask&1 != 0 {
				req.PromoCode = "P"
			}
			if mask&2 != 0 {
				req.Title = "T"
			}
			if mask&4 != 0 {
				req.Body = "B"
			}
			err := req.Validate()
			require.Error(t, err, "mask %d", mask)

			var de *dispatch.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, dispatch.MissingArgumentsMessage, de.Message)
		}
	})

	t.Run("Complete request passes", func(t *testing.T) {
		req := dispatch.Request{PromoCode: "P", Title: "T", Body: "B"}
		assert.NoError(t, req.Validate())
	})
}

func TestNewPayload(t *testing.T) {
	req := dispatch.Request{PromoCode: "SPRING24", Title: "Hi", Body: "Test"}
	payload := dispatch.NewPayload(req)

	assert.Equal(t, "Hi", payload.Notification.Title)
	assert.Equal(t, "Test", payload.Notification.Body)
	assert.Equal(t, map[string]string{"type": "company_message", "promo": "SPRING24"}, payload.Data)
}

func TestCodeOf(t *testing.T) {
	cause := errors.New("connection refused")
	depErr := dispatch.NewDependencyFailure("user directory lookup", cause)

	assert.Equal(t, codes.OK, dispatch.CodeOf(nil))
	assert.Equal(t, codes.Unknown, dispatch.CodeOf(errors.New("plain")))
	assert.Equal(t, codes.Internal, dispatch.CodeOf(depErr))
	assert.Equal(t, codes.Internal, dispatch.CodeOf(fmt.Errorf("wrapped: %w", depErr)))
	assert.Equal(t, codes.Unauthenticated, dispatch.CodeOf(dispatch.NewUnauthenticated("no token")))

	assert.ErrorIs(t, depErr, cause)
	assert.Equal(t, codes.Internal, status.Code(depErr))
	assert.Contains(t, depErr.Error(), "user directory lookup failed")
}
