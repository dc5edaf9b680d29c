package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/geocoder89/eventreg/internal/actorctx"
)

const requestIDHeader = "X-Request-Id"

// RequestID accepts a caller-supplied X-Request-Id or mints one, echoes it
// back and stores it on both the gin and request contexts.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx.Writer.Header().Set(requestIDHeader, id)
		ctx.Set(CtxRequestID, id)
		ctx.Request = ctx.Request.WithContext(actorctx.WithRequestID(ctx.Request.Context(), id))

		ctx.Next()
	}
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path // fallback (e.g. 404)
		}

		status := ctx.Writer.Status()
		attrs := []any{
			"method", ctx.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", ctx.Writer.Size(),
		}

		// request_id comes from the trace handler via the request context
		switch {
		case status >= 500:
			log.ErrorContext(ctx.Request.Context(), "http_request", attrs...)
		case status >= 400:
			log.WarnContext(ctx.Request.Context(), "http_request", attrs...)
		default:
			log.InfoContext(ctx.Request.Context(), "http_request", attrs...)
		}
	}
}
