package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ServiceName is attached to every log record.
const ServiceName = "fieldcrypt"

// LogFormat represents the output format for logs
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
	FormatConsole
)

// String returns the name used in configuration.
func (f LogFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatText:
		return "text"
	case FormatConsole:
		return "console"
	default:
		return "unknown"
	}
}

// ParseFormat accepts json, text or console.
func ParseFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "console":
		return FormatConsole, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q", s)
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LoggerConfig configures the structured logger
type LoggerConfig struct {
	Level     slog.Level
	Format    LogFormat
	Output    io.Writer
	Component string
	Fields    map[string]any
}

// NewLogger creates a slog logger with the given configuration. Every record
// carries the service name and, when set, the component.
func NewLogger(config LoggerConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.Level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	case FormatConsole:
		handler = NewConsoleHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	attrs := []any{slog.String("service", ServiceName)}
	if config.Component != "" {
		attrs = append(attrs, slog.String("component", config.Component))
	}
	for k, v := range config.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.New(handler).With(attrs...)
}

// NewProductionLogger creates a JSON logger at info level. LOG_LEVEL and
// LOG_FORMAT override the defaults.
func NewProductionLogger(component string) *slog.Logger {
	return NewLogger(LoggerConfig{
		Level:     envLevel(slog.LevelInfo),
		Format:    envFormat(FormatJSON),
		Component: component,
		Fields:    map[string]any{"pid": os.Getpid()},
	})
}

// NewDevelopmentLogger creates a colorized console logger at debug level.
func NewDevelopmentLogger(component string) *slog.Logger {
	return NewLogger(LoggerConfig{
		Level:     envLevel(slog.LevelDebug),
		Format:    envFormat(FormatConsole),
		Component: component,
	})
}

// NewEnvironmentLogger picks the production logger when appEnv is
// "production" and the development logger otherwise.
func NewEnvironmentLogger(appEnv, component string) *slog.Logger {
	if strings.EqualFold(appEnv, "production") {
		return NewProductionLogger(component)
	}
	return NewDevelopmentLogger(component)
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 8}))
}

func envLevel(def slog.Level) slog.Level {
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if l, err := ParseLevel(s); err == nil {
			return l
		}
	}
	return def
}

func envFormat(def LogFormat) LogFormat {
	if s := os.Getenv("LOG_FORMAT"); s != "" {
		if f, err := ParseFormat(s); err == nil {
			return f
		}
	}
	return def
}

// ConsoleHandler provides colorized console output
type ConsoleHandler struct {
	opts   slog.HandlerOptions
	output io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
	group  string
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(output io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{output: output, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *ConsoleHandler) Handle(_ context.Context, record slog.Record) error {
	var levelStr string
	switch {
	case record.Level >= slog.LevelError:
		levelStr = "\033[31mERROR\033[0m" // Red
	case record.Level >= slog.LevelWarn:
		levelStr = "\033[33mWARN\033[0m" // Yellow
	case record.Level >= slog.LevelInfo:
		levelStr = "\033[32mINFO\033[0m" // Green
	default:
		levelStr = "\033[36mDEBUG\033[0m" // Cyan
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", record.Time.Format("15:04:05.000"), levelStr, record.Message)

	writeAttr := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.output, b.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}
