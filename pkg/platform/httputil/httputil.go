// Package httputil provides JSON response helpers shared by all handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pdp/pkg/pdperrors"
)

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a typed error to an HTTP status and JSON body, logging it
// with the request context. Internal errors omit the description so
// implementation details never leak.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := pdperrors.CodeOf(err)
	status := statusFor(code)

	logger.WarnContext(r.Context(), "request failed",
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)

	body := errorBody{Error: string(code)}
	if status != http.StatusInternalServerError {
		var e *pdperrors.Error
		if errors.As(err, &e) {
			body.ErrorDescription = e.Message
		}
	}
	WriteJSON(w, status, body)
}

// statusFor maps error codes to HTTP statuses. Compiler-pipeline errors are
// the caller's to fix (400); engine failures that reach a client directly are
// gateway errors (502/504).
func statusFor(code pdperrors.Code) int {
	switch code {
	case pdperrors.CodeBadRequest,
		pdperrors.CodeUnsupportedAPIVersion,
		pdperrors.CodeParse,
		pdperrors.CodeTranslation,
		pdperrors.CodeNotImplemented,
		pdperrors.CodeMissingMapping,
		pdperrors.CodeMissingJoin,
		pdperrors.CodeUnsupportedOperator:
		return http.StatusBadRequest
	case pdperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case pdperrors.CodeEngineTimeout:
		return http.StatusGatewayTimeout
	case pdperrors.CodeEngineConnection,
		pdperrors.CodeEngineStatus,
		pdperrors.CodeEngineResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON request body into dst, writing a 400 response and
// returning false when the body is malformed.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var dst T
	if err := json.NewDecoder(r.Body).Decode(&dst); err != nil {
		WriteError(w, r, logger, pdperrors.Wrap(pdperrors.CodeBadRequest, "invalid JSON body", err))
		return dst, false
	}
	return dst, true
}
