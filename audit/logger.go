package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHandlerFailed wraps errors and panics raised by a Handler.
var ErrHandlerFailed = errors.New("audit handler failed")

// Config controls which events are emitted.
type Config struct {
	Enabled     bool
	MinSeverity Severity
	// LogDecryption and LogReads gate the two high-volume actions.
	LogDecryption bool
	LogReads      bool
}

// DefaultConfig enables logging at INFO with DECRYPT and READ switched off.
func DefaultConfig() Config {
	return Config{Enabled: true, MinSeverity: SeverityInfo}
}

// ConfigUpdate is a partial Config; nil fields are left unchanged.
type ConfigUpdate struct {
	Enabled       *bool
	MinSeverity   *Severity
	LogDecryption *bool
	LogReads      *bool
}

// Recorder receives audit metrics.
type Recorder interface {
	RecordAuditEvent(action, severity string)
	RecordAuditDropped(reason string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuditEvent(string, string) {}
func (noopRecorder) RecordAuditDropped(string)       {}

// Logger emits audit events. Safe for concurrent use.
type Logger struct {
	mu     sync.RWMutex
	config Config

	handler  Handler
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithHandler sets the handler called for every emitted event.
func WithHandler(h Handler) Option {
	return func(l *Logger) { l.handler = h }
}

// WithLogger sets the structured logger events are written to.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(l *Logger) { l.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New creates a Logger.
func New(config Config, opts ...Option) *Logger {
	l := &Logger{
		config:   config,
		logger:   slog.Default(),
		recorder: noopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "audit"))
	return l
}

// ShouldLog applies the filtering policy to an action and severity.
func (l *Logger) ShouldLog(action Action, severity Severity) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.config.Enabled || severity < l.config.MinSeverity {
		return false
	}
	switch action {
	case ActionDecrypt:
		return l.config.LogDecryption
	case ActionRead:
		return l.config.LogReads
	default:
		return true
	}
}

// LogEvent emits c and returns the event, or nil when the event was
// filtered out. A handler failure is returned wrapped in ErrHandlerFailed;
// the event has still been written to the structured logger by then.
func (l *Logger) LogEvent(ctx context.Context, c Context) (*Event, error) {
	severity := DefaultSeverity(c)
	if !l.ShouldLog(c.Action, severity) {
		return nil, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate event id: %w", err)
	}

	if actor, ok := ActorFromContext(ctx); ok {
		if c.UserID == "" {
			c.UserID = actor.UserID
		}
		if c.IPAddress == "" {
			c.IPAddress = actor.IPAddress
		}
		if c.UserAgent == "" {
			c.UserAgent = actor.UserAgent
		}
	}

	event := &Event{
		ID:        id.String(),
		Timestamp: l.now().UTC(),
		UserID:    c.UserID,
		Action:    c.Action,
		Model:     c.Model,
		RecordID:  c.RecordID,
		Fields:    append([]string(nil), c.Fields...),
		Count:     c.Count,
		Metadata:  c.Metadata,
		Severity:  severity,
		AuthEvent: c.AuthEvent,
		IPAddress: c.IPAddress,
		UserAgent: c.UserAgent,
	}

	var handlerErr error
	if l.handler != nil {
		handlerErr = l.callHandler(ctx, *event)
		if handlerErr != nil {
			l.recorder.RecordAuditDropped("handler_error")
			l.logger.ErrorContext(ctx, "audit handler failed",
				slog.String("event_id", event.ID),
				slog.Any("error", handlerErr))
		}
	}

	l.write(ctx, event)
	l.recorder.RecordAuditEvent(string(event.Action), event.Severity.String())
	return event, handlerErr
}

// Log is the fire-and-forget form of LogEvent. Failures are logged and
// never returned.
func (l *Logger) Log(ctx context.Context, c Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "audit logging panicked", slog.Any("panic", r))
		}
	}()
	if _, err := l.LogEvent(ctx, c); err != nil && !errors.Is(err, ErrHandlerFailed) {
		l.logger.ErrorContext(ctx, "audit logging failed", slog.Any("error", err))
	}
}

func (l *Logger) callHandler(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFailed, r)
		}
	}()
	if err := l.handler.Handle(ctx, event); err != nil {
		return fmt.Errorf("%w: %w", ErrHandlerFailed, err)
	}
	return nil
}

func (l *Logger) write(ctx context.Context, e *Event) {
	level := slog.LevelInfo
	switch e.Severity {
	case SeverityCritical:
		level = slog.LevelError
	case SeverityWarning:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("timestamp", e.Timestamp.Format(time.RFC3339Nano)),
		slog.String("action", string(e.Action)),
		slog.String("severity", e.Severity.String()),
	}
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.Model != "" {
		attrs = append(attrs, slog.String("model", e.Model))
	}
	if e.RecordID != "" {
		attrs = append(attrs, slog.String("record_id", e.RecordID))
	}
	if len(e.Fields) > 0 {
		attrs = append(attrs, slog.Any("fields", e.Fields))
	}
	if e.Count > 0 {
		attrs = append(attrs, slog.Int("count", e.Count))
	}
	if e.AuthEvent != "" {
		attrs = append(attrs, slog.String("auth_event", string(e.AuthEvent)))
	}
	if e.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", e.IPAddress))
	}
	if e.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", e.UserAgent))
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", e.Metadata))
	}
	l.logger.LogAttrs(ctx, level, "audit event", attrs...)
}

// Enable turns logging on.
func (l *Logger) Enable() {
	l.mu.Lock()
	l.config.Enabled = true
	l.mu.Unlock()
}

// Disable turns logging off.
func (l *Logger) Disable() {
	l.mu.Lock()
	l.config.Enabled = false
	l.mu.Unlock()
}

func (l *Logger) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// Configure applies the non-nil fields of u.
func (l *Logger) Configure(u ConfigUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u.Enabled != nil {
		l.config.Enabled = *u.Enabled
	}
	if u.MinSeverity != nil {
		l.config.MinSeverity = *u.MinSeverity
	}
	if u.LogDecryption != nil {
		l.config.LogDecryption = *u.LogDecryption
	}
	if u.LogReads != nil {
		l.config.LogReads = *u.LogReads
	}
}

// Config returns a copy of the current configuration.
func (l *Logger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}
