// Package audit delivers security events to a sink without ever blocking
// or failing the authentication path: events are queued on a bounded
// channel and dropped (counted) when the queue is full.
package audit

import (
	"context"
	"time"
)

// Actions recorded by the session subsystem.
const (
	ActionRegisterSuccess = "REGISTER_SUCCESS"
	ActionLoginSuccess    = "LOGIN_SUCCESS"
	ActionLoginFailed     = "LOGIN_FAILED"
	ActionLogout          = "LOGOUT"
	ActionLogoutAll       = "LOGOUT_ALL"
	ActionTokenRotated    = "TOKEN_ROTATED"
	ActionTokenRevoked    = "TOKEN_REVOKED"
)

type Event struct {
	Action      string    `json:"action"`
	SubjectID   uint      `json:"subject_id,omitempty"`
	SubjectType string    `json:"subject_type,omitempty"`
	Email       string    `json:"email,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Details     string    `json:"details,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives events. Implementations own their error handling; a sink
// failure never propagates to the request path.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}
