// Package notify fans out engine events to in-process subscribers (the
// WebSocket layer, the result recorder) and to registered external sinks
// (the Redis publisher). The executor emits an event for every drained
// progress update and every terminal transition; the hub never blocks the
// emitter, neither on a slow subscriber nor on a slow sink. Sinks are fed
// from a dedicated dispatch goroutine behind a bounded queue.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/compudrive/drivebench/internal/domain/model"
)

// Kind identifies the event family, mirroring the channel names the browser
// clients subscribe to.
type Kind string

const (
	// KindTestProgress is emitted on every progress update and terminal
	// transition of a test job.
	KindTestProgress Kind = "test_progress"
	// KindDrivesUpdated is emitted after every scanner pass.
	KindDrivesUpdated Kind = "drives_updated"
	// KindSessionUpdated is emitted when the bench session or PO changes.
	KindSessionUpdated Kind = "session_updated"
	// KindSettingsUpdated is emitted when a setting changes.
	KindSettingsUpdated Kind = "settings_updated"
	// KindBackplaneUpdated is emitted when the backplane layout changes.
	KindBackplaneUpdated Kind = "backplane_config_updated"
)

// TestEvent is the payload of a KindTestProgress event.
type TestEvent struct {
	JobID           string               `json:"job_id"`
	Device          string               `json:"device"`
	Serial          string               `json:"serial,omitempty"`
	TestType        model.TestType       `json:"test_type"`
	State           model.TestState      `json:"job_state"`
	ProgressPercent float64              `json:"progress_percent"`
	CurrentStep     string               `json:"current_step,omitempty"`
	Result          *model.Result        `json:"result,omitempty"`
	Failure         *model.FailureDetail `json:"failure,omitempty"`
	StartedAt       time.Time            `json:"started_at"`
	EndedAt         *time.Time           `json:"ended_at,omitempty"`
}

// Event is one notification.
type Event struct {
	Kind      Kind           `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Test      *TestEvent     `json:"test,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives every published event, typically to forward it out of
// process. Sink errors are logged, never propagated to the emitter.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

const (
	subscriberBuffer = 64
	sinkQueueBuffer  = 256
)

// Hub is the in-process broadcast point.
type Hub struct {
	logger *slog.Logger
	sinkCh chan Event

	dispatchOnce sync.Once

	mu    sync.Mutex
	subs  map[chan Event]struct{}
	sinks []Sink
}

// NewHub constructs a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		sinkCh: make(chan Event, sinkQueueBuffer),
		subs:   make(map[chan Event]struct{}),
	}
}

// RegisterSink attaches an external sink. Registration happens during
// bootstrap, before any publisher runs. The first registration starts the
// sink dispatch goroutine, which runs for the life of the process.
func (h *Hub) RegisterSink(s Sink) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()

	h.dispatchOnce.Do(func() { go h.dispatchSinks() })
}

// dispatchSinks drains the sink queue so Publish never waits on sink I/O.
// A Redis outage slows nothing but this goroutine.
func (h *Hub) dispatchSinks() {
	for ev := range h.sinkCh {
		h.mu.Lock()
		sinks := make([]Sink, len(h.sinks))
		copy(sinks, h.sinks)
		h.mu.Unlock()

		for _, s := range sinks {
			if err := s.Publish(context.Background(), ev); err != nil {
				h.logger.Warn("notification sink publish failed", "event", ev.Kind, "error", err)
			}
		}
	}
}

// Subscribe registers an in-process consumer. The returned channel is
// buffered; a consumer that falls more than the buffer behind loses the
// oldest events rather than stalling the engine. The unsubscribe function
// is idempotent.
func (h *Hub) Subscribe() (func(), <-chan Event) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return unsub, ch
}

// Publish delivers an event to all subscribers and enqueues it for the
// sinks. It never blocks: overfull subscriber buffers and an overfull sink
// queue both shed their oldest event to make room for the newest.
func (h *Hub) Publish(_ context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	haveSinks := len(h.sinks) > 0
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	h.mu.Unlock()

	if !haveSinks {
		return
	}
	select {
	case h.sinkCh <- ev:
	default:
		select {
		case <-h.sinkCh:
		default:
		}
		select {
		case h.sinkCh <- ev:
		default:
		}
	}
}

// PublishTest is a convenience wrapper for test lifecycle events.
func (h *Hub) PublishTest(ctx context.Context, te TestEvent) {
	h.Publish(ctx, Event{Kind: KindTestProgress, Test: &te})
}

// PublishData is a convenience wrapper for non-test events.
func (h *Hub) PublishData(ctx context.Context, kind Kind, data map[string]any) {
	h.Publish(ctx, Event{Kind: kind, Data: data})
}
