// Package audit records access to sensitive financial data.
//
// Events are filtered by severity and per-action toggles, handed to an
// optional Handler and always written to a structured slog logger. Logging
// never fails the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action types for audit events
type Action string

const (
	ActionDecrypt  Action = "DECRYPT"
	ActionRead     Action = "READ"
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionExport   Action = "EXPORT"
	ActionImport   Action = "IMPORT"
	ActionAuth     Action = "AUTH"
	ActionSettings Action = "SETTINGS"
)

// Severity orders events. The zero value means "not set" and is replaced by
// the action's default.
type Severity int

const (
	SeverityUnset Severity = iota
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNSET"
	}
}

// ParseSeverity accepts the names returned by String, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, nil
	case "NOTICE":
		return SeverityNotice, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityUnset, fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AuthEvent distinguishes the kinds of AUTH actions.
type AuthEvent string

const (
	AuthLogin          AuthEvent = "login"
	AuthLoginFailed    AuthEvent = "login_failed"
	AuthLogout         AuthEvent = "logout"
	AuthPasswordChange AuthEvent = "password_change"
	AuthTokenRefresh   AuthEvent = "token_refresh"
)

// Context describes something to audit. Empty user, IP and user agent are
// taken from the Actor stored in the request context, if any.
type Context struct {
	UserID    string
	Action    Action
	Model     string
	RecordID  string
	Fields    []string
	Count     int
	Metadata  map[string]any
	Severity  Severity
	AuthEvent AuthEvent
	IPAddress string
	UserAgent string
}

// Event represents a single emitted audit entry. Events are never mutated
// after emission.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	Action    Action         `json:"action"`
	Model     string         `json:"model,omitempty"`
	RecordID  string         `json:"recordId,omitempty"`
	Fields    []string       `json:"fields,omitempty"`
	Count     int            `json:"count,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  Severity       `json:"severity"`
	AuthEvent AuthEvent      `json:"authEvent,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
}

// MarshalJSON renders the timestamp in RFC 3339.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{plain: plain(e), Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano)})
}

// Handler receives every emitted event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Filter represents query criteria for stored events. Zero fields match all.
type Filter struct {
	UserID      string
	Action      Action
	Model       string
	RecordID    string
	MinSeverity Severity
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
}

// Match reports whether e satisfies f.
func (f Filter) Match(e Event) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Model != "" && e.Model != f.Model {
		return false
	}
	if f.RecordID != "" && e.RecordID != f.RecordID {
		return false
	}
	if e.Severity < f.MinSeverity {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// DefaultSeverity derives the severity of c when it has none.
func DefaultSeverity(c Context) Severity {
	if c.Severity != SeverityUnset {
		return c.Severity
	}
	switch c.Action {
	case ActionAuth:
		if c.AuthEvent == AuthLoginFailed {
			return SeverityWarning
		}
		return SeverityNotice
	case ActionDelete, ActionExport, ActionSettings:
		return SeverityNotice
	default:
		return SeverityInfo
	}
}
