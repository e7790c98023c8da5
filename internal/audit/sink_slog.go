package audit

import (
	"context"
	"log/slog"
)

// SlogSink writes events to the structured log. The fallback sink when no
// kafka brokers are configured.
type SlogSink struct {
	Log *slog.Logger
}

func (s SlogSink) Emit(_ context.Context, e Event) {
	l := s.Log
	if l == nil {
		l = slog.Default()
	}
	l.Info("security_event",
		"action", e.Action,
		"subject_id", e.SubjectID,
		"subject_type", e.SubjectType,
		"email", e.Email,
		"ip", e.IPAddress,
		"user_agent", e.UserAgent,
		"details", e.Details,
		"at", e.At,
	)
}
