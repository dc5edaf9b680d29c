package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. It is the default
// when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}

	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, in Notification) error {
	n.log.InfoContext(ctx, "notification",
		"kind", string(in.Kind),
		"event_id", in.EventID,
		"user_id", in.UserID,
		"occurred_at", in.OccurredAt,
		"job_id", in.JobID,
		"request_id", in.RequestID,
	)
	return nil
}
