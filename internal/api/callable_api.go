// Package api exposes the dispatcher over the Firebase callable HTTP protocol.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"firebase.google.com/go/v4/appcheck"
	"google.golang.org/grpc/codes"

	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// AppCheckHeader carries the App Check token on callable requests.
const AppCheckHeader = "X-Firebase-AppCheck"

const maxBodyBytes = 1 << 20

// Dispatcher is the operation served by the callable endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Response, error)
}

// AppCheckVerifier is the subset of *appcheck.Client we use.
type AppCheckVerifier interface {
	VerifyToken(token string) (*appcheck.DecodedAppCheckToken, error)
}

// CallableOptions configure the transport around the dispatcher.
// A nil AppCheck disables origin verification entirely.
type CallableOptions struct {
	AppCheck                  AppCheckVerifier
	AllowInvalidAppCheckToken bool
	Timeout                   time.Duration
}

type CallableAPI struct {
	Dispatcher Dispatcher
	Options    CallableOptions
	Logger     *slog.Logger
}

func NewCallableAPI(dispatcher Dispatcher, opts CallableOptions, logger *slog.Logger) *CallableAPI {
	return &CallableAPI{
		Dispatcher: dispatcher,
		Options:    opts,
		Logger:     logger.With("component", "CallableAPI"),
	}
}

type callableRequest struct {
	Data json.RawMessage `json:"data"`
}

type callableResult struct {
	Result *dispatch.Response `json:"result"`
}

type callableError struct {
	Error callableErrorBody `json:"error"`
}

type callableErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendTestNotification serves POST /sendTestNotification.
func (api *CallableAPI) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if api.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.Options.Timeout)
		defer cancel()
	}

	if err := api.verifyAppCheck(r); err != nil {
		api.writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.Logger.Warn("SendTestNotification: body read failed", "err", err)
		api.writeError(w, dispatch.NewInvalidArgument("Could not read request body."))
		return
	}

	var envelope callableRequest
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		api.Logger.Warn("SendTestNotification: invalid callable envelope", "err", err)
		api.writeError(w, dispatch.NewInvalidArgument("Bad Request: the request body must be a JSON object with a \"data\" field."))
		return
	}

	// Field presence is checked by the dispatcher; only the shape is checked here.
	var req dispatch.Request
	if err := json.Unmarshal(envelope.Data, &req); err != nil {
		api.Logger.Warn("SendTestNotification: data has the wrong shape", "err", err)
		api.writeError(w, dispatch.NewInvalidArgument(dispatch.MissingArgumentsMessage))
		return
	}

	resp, err := api.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		api.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, callableResult{Result: resp})
}

func (api *CallableAPI) verifyAppCheck(r *http.Request) error {
	if api.Options.AppCheck == nil {
		return nil
	}

	token := r.Header.Get(AppCheckHeader)
	var err error
	if token == "" {
		err = errors.New("missing App Check token")
	} else {
		var decoded *appcheck.DecodedAppCheckToken
		decoded, err = api.Options.AppCheck.VerifyToken(token)
		if err == nil {
			if decoded != nil {
				api.Logger.Debug("App Check token verified", "app_id", decoded.AppID)
			}
			return nil
		}
	}

	if api.Options.AllowInvalidAppCheckToken {
		api.Logger.Warn("Proceeding without a valid App Check token", "err", err)
		return nil
	}
	api.Logger.Warn("Rejected call: App Check verification failed", "err", err)
	return dispatch.NewUnauthenticated("Unauthenticated")
}

func (api *CallableAPI) writeError(w http.ResponseWriter, err error) {
	code := dispatch.CodeOf(err)
	if code != codes.InvalidArgument && code != codes.Unauthenticated && errors.Is(err, context.DeadlineExceeded) {
		code = codes.DeadlineExceeded
	}

	message := statusName(code)
	var de *dispatch.Error
	if errors.As(err, &de) && (code == codes.InvalidArgument || code == codes.Unauthenticated) {
		message = de.Message
	}
	if code != codes.InvalidArgument && code != codes.Unauthenticated {
		api.Logger.Error("Callable failed", "code", code.String(), "err", err)
	}

	writeJSON(w, httpStatus(code), callableError{Error: callableErrorBody{
		Status:  statusName(code),
		Message: message,
	}})
}

// statusName returns the canonical callable status for code.
// Anything outside the codes this endpoint produces is reported as INTERNAL.
func statusName(code codes.Code) string {
	switch code {
	case codes.InvalidArgument:
		return "INVALID_ARGUMENT"
	case codes.Unauthenticated:
		return "UNAUTHENTICATED"
	case codes.DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	default:
		return "INTERNAL"
	}
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
