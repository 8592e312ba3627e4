package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrHandlerClosed is returned by Handle after Close.
var ErrHandlerClosed = errors.New("audit handler closed")

const defaultAsyncBuffer = 256

type queued struct {
	ctx   context.Context
	event Event
}

// AsyncHandler delivers events to another handler on a background
// goroutine so slow sinks never block the audited operation. When the
// buffer is full the event is dropped and counted.
type AsyncHandler struct {
	next     Handler
	queue    chan queued
	logger   *slog.Logger
	recorder Recorder

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// AsyncOption configures an AsyncHandler.
type AsyncOption func(*AsyncHandler)

func WithBufferSize(n int) AsyncOption {
	return func(h *AsyncHandler) {
		if n > 0 {
			h.queue = make(chan queued, n)
		}
	}
}

func WithAsyncLogger(logger *slog.Logger) AsyncOption {
	return func(h *AsyncHandler) { h.logger = logger }
}

func WithAsyncRecorder(r Recorder) AsyncOption {
	return func(h *AsyncHandler) { h.recorder = r }
}

// NewAsyncHandler starts the delivery goroutine. Call Close to stop it.
func NewAsyncHandler(next Handler, opts ...AsyncOption) *AsyncHandler {
	h := &AsyncHandler{
		next:     next,
		queue:    make(chan queued, defaultAsyncBuffer),
		logger:   slog.Default(),
		recorder: noopRecorder{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.run()
	return h
}

// Handle enqueues the event and returns immediately.
func (h *AsyncHandler) Handle(ctx context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHandlerClosed
	}

	// the request context may be cancelled before delivery
	select {
	case h.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		h.recorder.RecordAuditDropped("buffer_full")
		h.logger.WarnContext(ctx, "audit buffer full, event dropped", slog.String("event_id", event.ID))
	}
	return nil
}

func (h *AsyncHandler) run() {
	defer close(h.done)
	for q := range h.queue {
		h.deliver(q)
	}
}

func (h *AsyncHandler) deliver(q queued) {
	defer func() {
		if r := recover(); r != nil {
			h.recorder.RecordAuditDropped("handler_panic")
			h.logger.ErrorContext(q.ctx, "async audit handler panicked",
				slog.String("event_id", q.event.ID),
				slog.Any("panic", r))
		}
	}()
	if err := h.next.Handle(q.ctx, q.event); err != nil {
		h.recorder.RecordAuditDropped("handler_error")
		h.logger.ErrorContext(q.ctx, "async audit delivery failed",
			slog.String("event_id", q.event.ID),
			slog.Any("error", err))
	}
}

// Close stops accepting events and waits until queued events are delivered
// or ctx is done.
func (h *AsyncHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
