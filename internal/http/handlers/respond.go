package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventreg/internal/actorctx"
	"github.com/geocoder89/eventreg/internal/domain/event"
	"github.com/geocoder89/eventreg/internal/domain/registration"
	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/validation"
)

// ErrorBody is the shape of every error response. Error is always the
// human-readable message.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id, ok := actorctx.RequestIDFrom(ctx.Request.Context()); ok {
		return id
	}

	v, ok := ctx.Get("request_id")
	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func errorBody(ctx *gin.Context, code, message string, details any) ErrorBody {
	return ErrorBody{
		Error:     message,
		Code:      code,
		RequestID: requestIDFrom(ctx),
		Details:   details,
	}
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.JSON(status, errorBody(ctx, code, message, details))
}

// AbortError writes the error body and stops the handler chain.
func AbortError(ctx *gin.Context, status int, code, message string) {
	ctx.AbortWithStatusJSON(status, errorBody(ctx, code, message, nil))
}

func RespondBadRequest(ctx *gin.Context, code, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, code, message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", "Internal Server Error", nil)
}

func respondValidation(ctx *gin.Context, ve *validation.Error) {
	var details any
	if len(ve.Fields) > 0 {
		details = gin.H{"fields": ve.Fields}
	}
	RespondBadRequest(ctx, "invalid_request", ve.Message, details)
}

// RespondDomainError maps a service error onto a status and client message.
// Unclassified errors are logged and reported as a bare 500.
func RespondDomainError(ctx *gin.Context, log *slog.Logger, err error) {
	var ve *validation.Error
	var mbe *http.MaxBytesError

	switch {
	case errors.As(err, &ve):
		respondValidation(ctx, ve)
	case errors.As(err, &mbe):
		RespondError(ctx, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", nil)
	case errors.Is(err, event.ErrNotFound):
		RespondNotFound(ctx, "Event not found")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, registration.ErrPastEvent):
		RespondBadRequest(ctx, "past_event", "Cannot register for past events", nil)
	case errors.Is(err, registration.ErrEventFull):
		RespondBadRequest(ctx, "event_full", "Event is full", nil)
	case errors.Is(err, registration.ErrAlreadyRegistered):
		RespondBadRequest(ctx, "already_registered", "User already registered for this event", nil)
	case errors.Is(err, registration.ErrNotRegistered):
		RespondBadRequest(ctx, "not_registered", "User is not registered for this event", nil)
	default:
		if log == nil {
			log = slog.Default()
		}
		log.ErrorContext(ctx.Request.Context(), "request failed",
			"method", ctx.Request.Method,
			"route", ctx.FullPath(),
			"err", err,
		)
		RespondInternal(ctx)
	}
}
