package server

import (
	"sync"
	"time"

	orchestration "github.com/saylem-ai/saylem-core/core"
)

// EventType discriminates session event payloads on the wire.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventTranscript   EventType = "transcript"
	EventResponse     EventType = "response"
	EventAmplitude    EventType = "amplitude"
	EventError        EventType = "error"
	EventSessionEnded EventType = "session_ended"
)

// Event is one observation from a running test session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`

	State     string  `json:"state,omitempty"`
	Text      string  `json:"text,omitempty"`
	Amplitude float64 `json:"amplitude,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Hub fans session events out to websocket subscribers. Publishing to
// a session nobody watches is a cheap no-op; slow subscribers drop
// events rather than stall the session.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers a watcher for one session's events. The returned
// cancel func must be called exactly once to release the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	events := make(chan Event, 64)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[chan Event]struct{}{}
	}
	h.subs[sessionID][events] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if watchers, ok := h.subs[sessionID]; ok {
			delete(watchers, events)
			if len(watchers) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return events, cancel
}

// Publish delivers one event to every subscriber of its session.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for events := range h.subs[event.SessionID] {
		select {
		case events <- event:
		default:
		}
	}
}

// SessionOptions wires a session's callbacks into the hub so its state
// changes, transcripts, replies and faults reach websocket watchers.
// Append these to any callbacks the embedding program sets itself.
func (h *Hub) SessionOptions(sessionID string) []orchestration.SessionOption {
	return []orchestration.SessionOption{
		orchestration.WithStateChangedCallback(func(state orchestration.State) {
			h.Publish(Event{Type: EventStateChanged, SessionID: sessionID, State: state.String()})
		}),
		orchestration.WithTranscriptCallback(func(transcript string) {
			h.Publish(Event{Type: EventTranscript, SessionID: sessionID, Text: transcript})
		}),
		orchestration.WithResponseCallback(func(response string) {
			h.Publish(Event{Type: EventResponse, SessionID: sessionID, Text: response})
		}),
		orchestration.WithServiceErrorCallback(func(err error) {
			h.Publish(Event{Type: EventError, SessionID: sessionID, Error: err.Error()})
		}),
		orchestration.WithSessionEndedCallback(func(orchestration.Session) {
			h.Publish(Event{Type: EventSessionEnded, SessionID: sessionID})
		}),
	}
}

// PublishAmplitude forwards one amplitude sample; pair it with
// Orchestrator.ObserveAmplitude.
func (h *Hub) PublishAmplitude(sessionID string, level float64) {
	h.Publish(Event{Type: EventAmplitude, SessionID: sessionID, Amplitude: level})
}
