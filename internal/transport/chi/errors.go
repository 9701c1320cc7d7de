package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/logger"
)

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeNamespaceRequired    ErrorCode = "namespace_required"
	CodeEmbeddingUnavailable ErrorCode = "embedding_unavailable"
	CodeQuotaExceeded        ErrorCode = "embedding_quota_exceeded"
	CodeIndexConfigConflict  ErrorCode = "index_config_conflict"
	CodeIndexNotFound        ErrorCode = "index_not_found"
	CodeRateLimited          ErrorCode = "rate_limited"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrNamespaceRequired, http.StatusBadRequest, CodeNamespaceRequired),
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
	sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, CodeEmbeddingUnavailable),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	configConflictHandler,
	sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, CodeIndexNotFound),
}

// safeMessages are the sentinels whose text may reach the client verbatim.
var safeMessages = []error{
	domain.ErrNamespaceRequired,
	domain.ErrVectorDimMismatch,
	domain.ErrEmbeddingQuotaExceeded,
	domain.ErrEmbeddingUnavailable,
	domain.ErrRateLimited,
	domain.ErrIndexConfigConflict,
	domain.ErrIndexNotFound,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a client-facing message without exposing internals.
// Validation errors carry the field-level detail the caller needs to fix the request.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return err.Error()
	}
	for _, s := range safeMessages {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

// configConflictHandler reports both index configurations on a conflict.
func configConflictHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrIndexConfigConflict) {
		return false
	}
	var cce *domain.IndexConfigConflictError
	if errors.As(err, &cce) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":    CodeIndexConfigConflict,
			"message": cce.Error(),
			"existing": map[string]any{
				"dimension": cce.Existing.Dimension,
				"metric":    cce.Existing.Metric,
			},
			"requested": map[string]any{
				"dimension": cce.Requested.Dimension,
				"metric":    cce.Requested.Metric,
			},
		})
		return true
	}
	writeError(w, http.StatusConflict, CodeIndexConfigConflict, domain.ErrIndexConfigConflict.Error())
	return true
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
