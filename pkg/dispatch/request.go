package dispatch

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// MissingArgumentsMessage is the caller-facing message for an incomplete request.
const MissingArgumentsMessage = `The function must be called with "promoCode", "title", and "body" arguments.`

var validate = validator.New()

// Request is the typed input of a dispatch call.
type Request struct {
	PromoCode string `json:"promoCode" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Body      string `json:"body" validate:"required"`
}

// Validate checks that all three fields are present and non-empty.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return NewInvalidArgument(MissingArgumentsMessage)
	}
	return nil
}

// DecodeRequest parses a JSON object into a Request and validates it.
// Malformed JSON, wrongly typed fields and missing fields all yield an InvalidArgument error.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(data)) == 0 {
		return Request{}, NewInvalidArgument(MissingArgumentsMessage)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, NewInvalidArgument(MissingArgumentsMessage)
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
