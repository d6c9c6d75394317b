package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Event records one account or membership operation as seen by the client.
// Error carries a machine code, never a backend message.
type Event struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	Component   string            `json:"component,omitempty"`
	PrincipalID string            `json:"principal_id,omitempty"`
	OrgID       string            `json:"org_id,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives events on the dispatcher goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a buffered channel. A full channel drops
// the event so a reader that stopped draining cannot stall the dispatcher.
type ChannelSink struct {
	events  chan Event
	dropped atomic.Uint64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// Dropped counts events lost to a full channel.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }

// JSONWriterSink writes one JSON object per line. Each line goes out in a
// single Write so events stay whole on a terminal shared with other output.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, _ = s.w.Write(line)
	s.mu.Unlock()
}

// FilterSink forwards only the events keep accepts.
type FilterSink struct {
	next Sink
	keep func(Event) bool
}

func NewFilterSink(next Sink, keep func(Event) bool) *FilterSink {
	return &FilterSink{next: next, keep: keep}
}

func (s *FilterSink) Emit(ctx context.Context, event Event) {
	if s.next == nil || (s.keep != nil && !s.keep(event)) {
		return
	}
	s.next.Emit(ctx, event)
}

// FailuresOnly keeps unsuccessful events.
func FailuresOnly(e Event) bool { return !e.Success }
