package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tvshell/dbopen"
	"github.com/hazyhaar/tvshell/idgen"
)

// Session event types.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventQuit         = "quit"
	EventExternalLink = "external_link"
	EventRecycle      = "browser_recycle"
	EventPermissions  = "permissions"
)

// SessionEvent is one notable kiosk event.
type SessionEvent struct {
	Type    string
	Detail  string
	Success bool
	At      time.Time
}

// EventLogger writes the events of one session.
type EventLogger struct {
	db      *sql.DB
	session string
	newID   idgen.Generator
	logger  *slog.Logger
}

// NewEventLogger creates a logger for session.
func NewEventLogger(db *sql.DB, session string, logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{
		db:      db,
		session: session,
		newID:   idgen.Prefixed("evt_", idgen.Default),
		logger:  logger,
	}
}

// Session returns the session id.
func (l *EventLogger) Session() string { return l.session }

// Log records ev. Errors are logged, never returned.
func (l *EventLogger) Log(ctx context.Context, ev SessionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO session_events (event_id, session_id, event_type, detail, success, created_at)
		VALUES (?,?,?,?,?,?)`,
		l.newID(), l.session, ev.Type, ev.Detail, ev.Success, ev.At.UnixMilli())
	if err != nil {
		l.logger.Warn("observability: event log", "event_type", ev.Type, "error", err)
	}
}

// Events returns the events of the session in order.
func (l *EventLogger) Events(ctx context.Context) ([]SessionEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_type, detail, success, created_at FROM session_events
		WHERE session_id = ? ORDER BY created_at, event_id`, l.session)
	if err != nil {
		return nil, fmt.Errorf("observability: query events: %w", err)
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var (
			ev     SessionEvent
			detail sql.NullString
			at     int64
		)
		if err := rows.Scan(&ev.Type, &detail, &ev.Success, &at); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		ev.Detail, ev.At = detail.String, time.UnixMilli(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}
