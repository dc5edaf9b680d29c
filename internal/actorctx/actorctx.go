package actorctx

import "context"

type ctxKey string

const keyRequestID ctxKey = "request_id"

// WithRequestID carries the HTTP request id into service code so outbox jobs
// and log lines can be correlated with the request that caused them.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

func RequestIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)

	return v, ok && v != ""
}
