// ABOUTME: Background writer that forwards history entries to a persistent sink
// ABOUTME: Appends never wait on storage; a full queue drops the entry with a warning

package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sinkWriteTimeout = 5 * time.Second

type sinkWriter struct {
	sink   Sink
	queue  chan Entry
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newSinkWriter(sink Sink, size int, logger *slog.Logger) *sinkWriter {
	w := &sinkWriter{
		sink:   sink,
		queue:  make(chan Entry, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w
}

// enqueue must be called with the owning Log's mutex held so queue order
// matches sequence order.
func (w *sinkWriter) enqueue(e Entry) {
	select {
	case w.queue <- e:
	default:
		w.logger.Warn("history sink queue full, entry not persisted", "seq", e.Seq)
	}
}

func (w *sinkWriter) run() {
	defer close(w.done)
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := w.sink.SaveEntry(ctx, e); err != nil {
			w.logger.Warn("failed to persist history entry", "seq", e.Seq, "error", err)
		}
		cancel()
	}
}

// close stops accepting entries and waits for queued ones to be written.
func (w *sinkWriter) close() {
	w.once.Do(func() { close(w.queue) })
	<-w.done
}
