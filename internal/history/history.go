// ABOUTME: Bounded, append-only log of every message the bridge moves
// ABOUTME: Fixed-capacity ring with monotonic sequence numbers, live subscribers, and an optional sink

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of entries retained when no capacity is configured.
const DefaultCapacity = 500

// subscriberBufferSize is the channel buffer for each live subscriber.
const subscriberBufferSize = 64

// Origin tags where a history entry came from.
type Origin string

const (
	OriginClientDirect    Origin = "client_direct"
	OriginClientNLRequest Origin = "client_nl_request"
	OriginLLMResponse     Origin = "llm_response"
	OriginEngineInbound   Origin = "engine_inbound"
	OriginEngineOutbound  Origin = "engine_outbound"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginClientDirect, OriginClientNLRequest, OriginLLMResponse, OriginEngineInbound, OriginEngineOutbound:
		return true
	}
	return false
}

// Entry is an immutable history record. The payload is captured as JSON at
// append time so later mutation of the caller's value cannot change it.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Origin    Origin          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Entry) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Sink persists entries outside the ring. SaveEntry is called from a single
// background goroutine, in sequence order.
type Sink interface {
	SaveEntry(ctx context.Context, entry Entry) error
}

// Config configures a Log.
type Config struct {
	// Capacity bounds the number of retained entries (DefaultCapacity if <= 0).
	Capacity int
	// StartSequence is the last sequence already used, e.g. restored from a sink.
	StartSequence uint64
	// Sink optionally persists every entry.
	Sink Sink
	// QueueSize bounds the pending sink writes (defaults to Capacity).
	QueueSize int
	Logger    *slog.Logger
}

// Log is a fixed-capacity ring of entries. When full, the oldest entry is
// evicted. All methods are safe for concurrent use and never block on I/O.
type Log struct {
	mu       sync.Mutex
	ring     []Entry
	capacity int
	// start is the ring index of the oldest retained entry.
	start int
	count int
	// lastSeq is the sequence number of the newest entry ever appended.
	lastSeq uint64

	subscribers map[string]chan Entry
	sink        *sinkWriter
	closed      bool

	now    func() time.Time
	logger *slog.Logger
}

// New creates a Log from cfg.
func New(cfg Config) *Log {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Log{
		ring:        make([]Entry, cfg.Capacity),
		capacity:    cfg.Capacity,
		lastSeq:     cfg.StartSequence,
		subscribers: make(map[string]chan Entry),
		now:         time.Now,
		logger:      cfg.Logger.With("component", "history"),
	}
	if cfg.Sink != nil {
		queue := cfg.QueueSize
		if queue <= 0 {
			queue = cfg.Capacity
		}
		l.sink = newSinkWriter(cfg.Sink, queue, l.logger)
	}
	return l
}

// Append records payload under origin and returns the stored entry.
// It never fails: payloads that cannot be encoded are stored as a string
// description instead.
func (l *Log) Append(origin Origin, payload any) Entry {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{
			"unencodable": fmt.Sprintf("%v", payload),
			"error":       err.Error(),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeq++
	entry := Entry{
		Seq:       l.lastSeq,
		Origin:    origin,
		Timestamp: l.now().UTC(),
		Payload:   raw,
	}

	if l.count < l.capacity {
		l.ring[(l.start+l.count)%l.capacity] = entry
		l.count++
	} else {
		// Full: overwrite the oldest and advance.
		l.ring[l.start] = entry
		l.start = (l.start + 1) % l.capacity
	}

	if l.closed {
		return entry
	}

	for id, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			l.logger.Debug("dropped history entry for slow subscriber", "sub_id", id, "seq", entry.Seq)
		}
	}
	if l.sink != nil {
		l.sink.enqueue(entry)
	}

	return entry
}

// Recent returns at most n of the newest entries in chronological order.
func (l *Log) Recent(n int) []Entry {
	entries, _ := l.Tail(n)
	return entries
}

// Tail returns Recent(n) together with the last assigned sequence number,
// both read under one lock.
func (l *Log) Tail(n int) ([]Entry, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || l.count == 0 {
		return []Entry{}, l.lastSeq
	}
	if n > l.count {
		n = l.count
	}
	return l.copyRange(l.count-n, n), l.lastSeq
}

// Since returns entries with sequence numbers greater than after, oldest
// first, up to limit (all if limit <= 0). gap is true when entries after
// `after` have already been evicted.
func (l *Log) Since(after uint64, limit int) (entries []Entry, gap bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 || after >= l.lastSeq {
		return []Entry{}, false
	}

	oldest := l.ring[l.start].Seq
	skip := 0
	if after+1 < oldest {
		gap = true
	} else {
		skip = int(after + 1 - oldest)
	}

	n := l.count - skip
	if limit > 0 && n > limit {
		n = limit
	}
	return l.copyRange(skip, n), gap
}

// copyRange copies n entries starting at logical offset from. Must hold mu.
func (l *Log) copyRange(from, n int) []Entry {
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = l.ring[(l.start+from+i)%l.capacity]
	}
	return out
}

// LastSequence returns the sequence number of the newest appended entry.
func (l *Log) LastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return l.capacity
}

// Subscribe returns a channel receiving every entry appended from now on.
// The subscription ends, and the channel is closed, when ctx is done or the
// Log is closed. Entries are dropped for subscribers that fall behind.
func (l *Log) Subscribe(ctx context.Context) <-chan Entry {
	ch := make(chan Entry, subscriberBufferSize)
	id := uuid.New().String()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(ch)
		return ch
	}
	l.subscribers[id] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.unsubscribe(id)
	}()
	return ch
}

func (l *Log) unsubscribe(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ch, ok := l.subscribers[id]; ok {
		delete(l.subscribers, id)
		close(ch)
	}
}

// Close ends all subscriptions and flushes the sink. Appends after Close are
// still retained in the ring but are neither published nor persisted.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for id, ch := range l.subscribers {
		delete(l.subscribers, id)
		close(ch)
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink.close()
	}
}
