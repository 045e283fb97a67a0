package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/http/middleware"
)

// Domain errors carry their own stable reason ("quota_exceeded",
// "reverse_duplicate", ...), which is sent as the code; the constants below
// cover transport-level failures. Kinds map to statuses:
//
//	NotFound -> 404, Conflict and InvalidState -> 409, Validation -> 400,
//	deadline -> 504 timeout, anything else -> 500 internal_error.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"
	ErrCodeTimeout      = "timeout"

	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusOf maps a domain kind to its HTTP status.
func statusOf(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// failErr writes the envelope for err.
func failErr(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		failKind(c, statusOf(de.Kind), de.Reason, de.Kind.String(), de.Message)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
