package api

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the response envelope schema version. Clients check
// the "v" field before decoding data.
const EnvelopeVersion = 1

// retryAfterSeconds is sent with retryable errors and rate-limit rejections.
const retryAfterSeconds = "1"

// APIEnvelope wraps every successful response body.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIErrorEnvelope is the body of a coded error response.
type APIErrorEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	// Retryable is set on failures the caller may retry unchanged.
	Retryable bool `json:"retryable,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps response bodies in
// the versioned envelope. Coded errors keep their code and details;
// retryable ones also get a Retry-After header.
func EnvelopeTransformer(ctx huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case *APIError:
		if body.Code == "" {
			return APIEnvelope{Version: EnvelopeVersion, Error: body.Message}, nil
		}
		if body.Retryable && ctx != nil {
			ctx.SetHeader("Retry-After", retryAfterSeconds)
		}
		return APIErrorEnvelope{
			Version:   EnvelopeVersion,
			Code:      body.Code,
			Message:   body.Message,
			Details:   body.Details,
			Retryable: body.Retryable,
		}, nil
	case error:
		return APIEnvelope{Version: EnvelopeVersion, Error: body.Error()}, nil
	default:
		return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
	}
}

// writeError writes a coded error envelope from plain net/http middleware,
// outside of huma.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIErrorEnvelope{ //nolint:errcheck // client went away
		Version: EnvelopeVersion,
		Code:    code,
		Message: message,
	})
}
