// ABOUTME: History query and live stream endpoints
// ABOUTME: Serves sequence-based pages with gap detection and an SSE feed of new entries

package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/engine-bridge/internal/history"
)

// History query limits
const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryResponse is the JSON response for GET /api/history.
type HistoryResponse struct {
	Entries      []history.Entry `json:"entries"`
	Gap          bool            `json:"gap"`
	LastSequence uint64          `json:"last_sequence"`
}

// handleHistory handles GET /api/history?since=N&limit=M. Entries evicted
// from memory are served from the archive when one is configured; gap is
// set when entries after since are missing from the answer.
func (b *Bridge) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := parseSince(q.Get("since"))
	if err != nil {
		b.reject(w, r, err)
		return
	}

	limit := defaultHistoryLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			b.reject(w, r, fmt.Errorf("limit must be a positive integer, got %q", s))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, gap := b.history.Since(since, limit)
	if gap && b.archive != nil {
		archived, err := b.archive.ListEntries(r.Context(), since, limit)
		switch {
		case err != nil:
			b.logger.Warn("reading archived history failed", "error", err)
		case len(archived) > 0:
			entries = archived
			gap = archived[0].Seq != since+1
		}
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries:      entries,
		Gap:          gap,
		LastSequence: b.history.LastSequence(),
	})
}

// handleHistoryStream handles GET /api/history/stream as Server-Sent Events.
// With ?since=N (or Last-Event-ID) the retained backlog after N is sent
// first. A "gap" event reports entries the client will never see.
func (b *Bridge) handleHistoryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		b.logger.Error("streaming not supported")
		b.sendJSONError(w, http.StatusInternalServerError, kindInternal, "streaming not supported")
		return
	}

	resume := r.URL.Query().Get("since")
	if resume == "" {
		resume = r.Header.Get("Last-Event-ID")
	}
	after, err := parseSince(resume)
	if err != nil {
		b.reject(w, r, err)
		return
	}

	ctx := r.Context()
	// Subscribe before reading the backlog so nothing falls between them.
	live := b.history.Subscribe(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// seeded is false until last holds a sequence the client has seen.
	var (
		last   uint64
		seeded bool
	)
	if resume != "" {
		backlog, gap := b.history.Since(after, 0)
		if gap {
			b.writeSSEEvent(w, "", "gap", map[string]uint64{"after": after})
		}
		for _, e := range backlog {
			b.writeEntry(w, e)
		}
		last, seeded = after, true
		if n := len(backlog); n > 0 {
			last = backlog[n-1].Seq
		} else if after > b.history.LastSequence() {
			// The client saw sequences from an earlier process.
			seeded = false
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closing:
			return
		case e, ok := <-live:
			if !ok {
				return
			}
			if seeded {
				if e.Seq <= last {
					continue
				}
				if e.Seq > last+1 {
					b.writeSSEEvent(w, "", "gap", map[string]uint64{"after": last})
				}
			}
			b.writeEntry(w, e)
			last, seeded = e.Seq, true
			flusher.Flush()
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (b *Bridge) writeEntry(w http.ResponseWriter, e history.Entry) {
	b.writeSSEEvent(w, strconv.FormatUint(e.Seq, 10), "entry", e)
}

// writeSSEEvent writes one event. An empty id omits the id field.
func (b *Bridge) writeSSEEvent(w http.ResponseWriter, id, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	if id != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", id)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func parseSince(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("since must be a sequence number, got %q", s)
	}
	return n, nil
}
