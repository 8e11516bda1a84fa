package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Session audit actions.
const (
	AuditLogin        = "login"
	AuditLogout       = "logout"
	AuditAuthRejected = "auth_rejected"
)

// AuditLog represents a record stored in session_audit.
type AuditLog struct {
	SessionID string
	UserID    int64
	Username  string
	Role      string
	Action    string
	IP        string
	UserAgent string
	At        time.Time
}

// AuditLogger writes records into session_audit.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.SessionID == "" {
		return errors.New("audit log requires action/session_id")
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO session_audit (session_id, user_id, username, role, action, ip, user_agent, occurred_at)
		 VALUES ($1, NULLIF($2, 0), NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
		log.SessionID, log.UserID, log.Username, log.Role, log.Action, log.IP, log.UserAgent, at)
	return err
}

// NopAuditLogger discards every record. Used when no database is configured.
type NopAuditLogger struct{}

// Record implements the audit recorder contract.
func (NopAuditLogger) Record(context.Context, AuditLog) error { return nil }
