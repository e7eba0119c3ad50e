// Package response writes JSON bodies and maps domain errors onto HTTP
// status codes for every handler package.
package response

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/pkg/encoding"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// JSON writes v with the given status. The body is encoded before the
// header goes out so an encoding failure can still become a 500.
func JSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(status)
		return
	}
	body, err := encoding.EncodeJSON(v)
	if err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"INTERNAL","message":"internal error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// StatusFor maps a domain error code to an HTTP status
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeConflict, domain.ErrorCodeVersionConflict:
		return http.StatusConflict
	case domain.ErrorCodeInvalidState:
		return http.StatusUnprocessableEntity
	case domain.ErrorCodeValidation:
		return http.StatusBadRequest
	case domain.ErrorCodeProviderError:
		return http.StatusPaymentRequired
	case domain.ErrorCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an ErrorBody. Internal failures are logged and their
// message is not echoed to the caller.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := domain.GetErrorCode(err)
	status := StatusFor(code)

	body := ErrorBody{Code: string(code), Message: err.Error()}
	var de *domain.DomainError
	if errors.As(err, &de) {
		body.Message = de.Message
		if len(de.Details) > 0 {
			body.Details = de.Details
		}
		var pe *domain.ProviderError
		if de.Code == domain.ErrorCodeProviderError && errors.As(de, &pe) {
			body.Message = pe.Message
			if pe.Code != "" {
				body.Details = map[string]interface{}{"provider_code": pe.Code}
			}
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("code", string(code)), zap.Error(err))
		if status == http.StatusInternalServerError {
			body = ErrorBody{Code: "INTERNAL", Message: "internal error"}
		}
	}
	JSON(w, logger, status, body)
}

// Message writes a plain error message with a fixed code
func Message(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	JSON(w, logger, status, ErrorBody{Code: code, Message: message})
}
