package security

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Moderation events
	AuditUserBlocked   AuditEventType = "user.blocked"
	AuditUserUnblocked AuditEventType = "user.unblocked"

	// Listing events
	AuditItemDeleted AuditEventType = "item.deleted"

	// Access events
	AuditAccessDenied AuditEventType = "access.denied"
)

// Audit results
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

const auditDateLayout = "2006-01-02"

// AuditEvent is one recorded action of the signed-in user
type AuditEvent struct {
	// ID is a unique identifier for the event
	ID string `json:"id" yaml:"id"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	Type AuditEventType `json:"type" yaml:"type"`

	// Actor is the user id that performed the action
	Actor string `json:"actor" yaml:"actor"`

	// Resource is the username or item id acted upon
	Resource string `json:"resource" yaml:"resource"`

	// Result is AuditSuccess or AuditFailure
	Result string `json:"result" yaml:"result"`

	// Reason explains a failure
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// AuditLogger appends events to one JSON-lines file per day.
type AuditLogger struct {
	mu sync.Mutex

	dir         string
	currentFile *os.File
	currentDate string
	clock       func() time.Time
}

// NewAuditLogger creates an audit logger writing under dir
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "cannot create audit directory "+dir, err)
	}
	return &AuditLogger{dir: dir, clock: time.Now}, nil
}

// Dir returns the directory the log files live in
func (l *AuditLogger) Dir() string {
	return l.dir
}

// Log records an event
func (l *AuditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Result == "" {
		event.Result = AuditSuccess
	}

	if err := l.rotateIfNeeded(event.Timestamp); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "cannot open audit log", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "cannot encode audit event", err)
	}
	if _, err := l.currentFile.Write(append(data, '\n')); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileWriteFailed, "cannot write audit event", err)
	}
	// Flush immediately for audit logs
	return l.currentFile.Sync()
}

// LogModeration records a block or unblock of username by actor
func (l *AuditLogger) LogModeration(actor, username string, blocked bool, cause error) error {
	eventType := AuditUserUnblocked
	if blocked {
		eventType = AuditUserBlocked
	}
	return l.Log(resultEvent(eventType, actor, username, cause))
}

// LogItemDeleted records the deletion of an item by actor
func (l *AuditLogger) LogItemDeleted(actor, itemID string, cause error) error {
	return l.Log(resultEvent(AuditItemDeleted, actor, itemID, cause))
}

func resultEvent(t AuditEventType, actor, resource string, cause error) *AuditEvent {
	event := &AuditEvent{Type: t, Actor: actor, Resource: resource, Result: AuditSuccess}
	if cause != nil {
		event.Result = AuditFailure
		event.Reason = cause.Error()
		if errors.IsKind(cause, errors.KindForbidden) {
			event.Type = AuditAccessDenied
		}
	}
	return event
}

// Query returns matching events, oldest first
func (l *AuditLogger) Query(filter AuditFilter) ([]*AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles(filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, err
	}

	events := []*AuditEvent{}
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "cannot read audit log "+file, err)
		}
		for _, event := range fileEvents {
			if filter.Matches(event) {
				events = append(events, event)
			}
		}
	}

	// The newest events are the interesting ones.
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	StartDate time.Time
	EndDate   time.Time
	EventType AuditEventType
	Actor     string
	Resource  string
	Limit     int
}

// Matches checks if an event matches the filter
func (f *AuditFilter) Matches(event *AuditEvent) bool {
	if !f.StartDate.IsZero() && event.Timestamp.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && event.Timestamp.After(f.EndDate) {
		return false
	}
	if f.EventType != "" && event.Type != f.EventType {
		return false
	}
	if f.Actor != "" && event.Actor != f.Actor {
		return false
	}
	if f.Resource != "" && event.Resource != f.Resource {
		return false
	}
	return true
}

// rotateIfNeeded switches files when the event's day changes
func (l *AuditLogger) rotateIfNeeded(at time.Time) error {
	date := at.UTC().Format(auditDateLayout)
	if l.currentDate == date && l.currentFile != nil {
		return nil
	}

	if l.currentFile != nil {
		_ = l.currentFile.Close()
	}

	filename := filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", date))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- path built from the audit dir
	if err != nil {
		return err
	}
	l.currentFile = file
	l.currentDate = date
	return nil
}

// logFiles returns the day files that can hold events between start and end
func (l *AuditLogger) logFiles(start, end time.Time) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil {
		return nil, errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "cannot list audit logs", err)
	}
	slices.Sort(files)

	var filtered []string
	for _, file := range files {
		// "audit-2006-01-02.log"
		base := filepath.Base(file)
		day, err := time.Parse(auditDateLayout, base[len("audit-"):len(base)-len(".log")])
		if err != nil {
			continue
		}
		if !start.IsZero() && day.Add(24*time.Hour).Before(start) {
			continue
		}
		if !end.IsZero() && day.After(end) {
			continue
		}
		filtered = append(filtered, file)
	}
	return filtered, nil
}

// readLogFile parses one JSON-lines file, skipping corrupt lines
func readLogFile(filename string) ([]*AuditEvent, error) {
	f, err := os.Open(filename) // #nosec G304 -- path from logFiles
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []*AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err == nil {
			events = append(events, &event)
		}
	}
	return events, scanner.Err()
}

// Close closes the audit logger
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}
