package analytics

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtmilk/rtm"
)

// Tracker handles analytics event recording. Each process run gets its
// own session id so interactive sessions can be analyzed as a unit.
type Tracker struct {
	db        *sql.DB
	enabled   bool
	sessionID string
	mu        sync.Mutex
	pending   sync.WaitGroup
}

// NewTracker creates a new analytics tracker.
// If enabled is false, tracking is disabled but the database is still created.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		db:        db,
		enabled:   enabled,
		sessionID: uuid.NewString(),
	}, nil
}

// SessionID returns the id events from this run are filed under.
func (t *Tracker) SessionID() string { return t.sessionID }

// Close flushes pending writes and closes the database connection.
func (t *Tracker) Close() error {
	t.pending.Wait()
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// TrackCommand wraps command execution with analytics tracking.
// The provided function is always executed, but events are only
// recorded when analytics is enabled. Recording happens off the command
// path; Close waits for it.
func (t *Tracker) TrackCommand(cmd, method string, fn func() error) error {
	if !t.enabled {
		return fn()
	}

	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	event := Event{
		SessionID:  t.sessionID,
		Timestamp:  time.Now().Unix(),
		Command:    cmd,
		Method:     method,
		Success:    err == nil,
		DurationMs: duration,
	}
	if err != nil {
		event.ErrorType = categorizeError(err)
	}

	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.logEvent(event)
	}()

	return err
}

// logEvent records an event to the database
func (t *Tracker) logEvent(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, _ = t.db.Exec(`
		INSERT INTO events (session_id, timestamp, command, method, success, duration_ms, error_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.SessionID, event.Timestamp, event.Command, nullString(event.Method),
		boolToInt(event.Success), event.DurationMs, nullString(event.ErrorType))
}

// Summary aggregates per-command usage over the given window.
func (t *Tracker) Summary(days int) ([]CommandStats, error) {
	t.pending.Wait()
	cutoff := time.Now().Unix() - int64(days*86400)

	rows, err := t.db.Query(`
		SELECT command,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM events
		WHERE timestamp >= ?
		GROUP BY command
		ORDER BY COUNT(*) DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CommandStats
	for rows.Next() {
		var s CommandStats
		if err := rows.Scan(&s.Command, &s.Count, &s.Failures, &s.AvgDurationMs); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	t.pending.Wait()
	cutoff := time.Now().Unix() - int64(retentionDays*86400)

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	// Vacuum to reclaim space
	_, _ = t.db.Exec("VACUUM")

	return deleted, nil
}

// categorizeError buckets an error by the service client's taxonomy
// first, then by message.
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, rtm.ErrNotAuthenticated) {
		return "auth"
	}
	var authErr *rtm.AuthError
	if errors.As(err, &authErr) {
		return "auth"
	}
	var transportErr *rtm.TransportError
	if errors.As(err, &transportErr) {
		return "transport"
	}
	var serviceErr *rtm.ServiceError
	if errors.As(err, &serviceErr) {
		return "service"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "invalid"):
		return "validation"
	default:
		return "unknown"
	}
}

// nullString returns nil for empty strings, otherwise the string pointer
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
