package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Worker drains queued events into a Publisher so request handlers never
// wait on the sink.
type Worker struct {
	sink    Publisher
	inbox   chan EnrichmentEvent
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewWorker creates a worker with a bounded queue.
func NewWorker(sink Publisher, size int, logger *slog.Logger) *Worker {
	if size < 1 {
		size = 1
	}
	return &Worker{sink: sink, inbox: make(chan EnrichmentEvent, size), logger: logger}
}

// Publish enqueues event. When the queue is full the event is dropped and
// logged rather than blocking the caller.
func (w *Worker) Publish(ctx context.Context, event EnrichmentEvent) error {
	select {
	case w.inbox <- event:
	default:
		w.dropped.Add(1)
		w.logger.WarnContext(ctx, "enrichment event dropped, queue full",
			"upload_id", event.UploadID,
		)
	}
	return nil
}

// Dropped reports how many events were discarded.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

// Run delivers events until ctx is done, then drains what is already queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event EnrichmentEvent) {
	if err := w.sink.Publish(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish enrichment event",
			"upload_id", event.UploadID,
			"error", err,
		)
	}
}
