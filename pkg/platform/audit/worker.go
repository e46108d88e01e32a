package audit

import (
	"context"
	"log/slog"
)

// Buffer decouples event emission from delivery. Emit enqueues without
// blocking the dispatch path; a Worker drains the inbox into the wrapped
// publisher. When the inbox is full the event is dropped and counted via
// the logger rather than stalling a dispatch.
type Buffer struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewBuffer creates a buffered publisher with the given capacity.
func NewBuffer(capacity int, logger *slog.Logger) *Buffer {
	return &Buffer{
		inbox:  make(chan Event, capacity),
		logger: logger,
	}
}

// Emit enqueues the event, dropping it if the buffer is full.
func (b *Buffer) Emit(ctx context.Context, event Event) error {
	select {
	case b.inbox <- event:
	default:
		b.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action_key", event.ActionKey,
			"action_id", event.ActionID.String(),
		)
	}
	return nil
}

// Worker consumes buffered audit events and forwards them to a sink. It
// keeps background processing testable without wiring queue implementations.
type Worker struct {
	sink   Publisher
	buffer *Buffer
	logger *slog.Logger
}

func NewWorker(sink Publisher, buffer *Buffer, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, buffer: buffer, logger: logger}
}

// Run drains the buffer until ctx is cancelled. Delivery failures are logged
// and do not stop the worker; the journal remains the system of record.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.buffer.inbox:
			if err := w.sink.Emit(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit delivery failed",
					"action_id", event.ActionID.String(),
					"error", err.Error(),
				)
			}
		}
	}
}
