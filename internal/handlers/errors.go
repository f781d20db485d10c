package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindInvalidRange:
		return http.StatusBadRequest
	case apperrors.KindAuthorizationDenied:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict, apperrors.KindOverlap, apperrors.KindAlreadyTerminal, apperrors.KindInvalidTransition:
		return http.StatusConflict
	case apperrors.KindLimitExceeded:
		return http.StatusUnprocessableEntity
	case apperrors.KindPersistenceTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status of its kind. Internal details are
// logged, never returned.
func respondError(c *gin.Context, err error, failure string) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	kind := apperrors.KindOf(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		logger.Error(failure, slog.String("error", err.Error()), slog.String("kind", string(kind)))
		if status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "1")
		}
		c.JSON(status, ErrorResponse{Error: failure, Kind: string(kind)})
		return
	}

	logger.Warn(failure, slog.String("error", err.Error()), slog.String("kind", string(kind)))
	resp := ErrorResponse{Error: err.Error(), Kind: string(kind)}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Reason = string(appErr.Reason)
		resp.Details = appErr.Details
	}
	c.JSON(status, resp)
}

// badRequest answers a binding failure.
func badRequest(c *gin.Context, what string, err error) {
	middleware.GetLoggerFromCtx(c.Request.Context()).Warn("Failed to bind "+what, slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid " + what + ": " + err.Error(), Kind: string(apperrors.KindValidation)})
}

// requireActor reads the authenticated caller or aborts with 401.
func requireActor(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		middleware.GetLoggerFromCtx(c.Request.Context()).Error("Actor not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return domain.Actor{}, false
	}
	return actor, true
}
