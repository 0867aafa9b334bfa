package session

import (
	"context"
	"time"

	"github.com/aquamarinepk/aqm"
)

// AuditEntry records a session lifecycle action.
type AuditEntry struct {
	SessionID string
	UserID    string
	Action    string
	Reason    string
	Timestamp time.Time
}

// AuditLogger writes session lifecycle actions to the log.
type AuditLogger struct {
	logger aqm.Logger
}

func NewAuditLogger(logger aqm.Logger) *AuditLogger {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) Log(ctx context.Context, entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	a.logger.Info("audit",
		"session_id", entry.SessionID,
		"user_id", entry.UserID,
		"action", entry.Action,
		"reason", entry.Reason,
		"timestamp", entry.Timestamp.Format(time.RFC3339),
	)
}

func (a *AuditLogger) LogLogin(ctx context.Context, s *Session) {
	a.Log(ctx, AuditEntry{SessionID: s.ID, UserID: s.User.ID, Action: "login"})
}

func (a *AuditLogger) LogLogout(ctx context.Context, s *Session, reason string) {
	a.Log(ctx, AuditEntry{SessionID: s.ID, UserID: s.User.ID, Action: "logout", Reason: reason})
}
