// Package chatbot implements the asynchronous render channel for chat-style
// surfaces: answers arrive out-of-band as inbound events that a poll loop
// matches back to the originating request through a pending-request table.
package chatbot

import (
	"context"
	"strconv"
	"sync"
)

// EventKind distinguishes the two shapes of inbound events.
type EventKind int

const (
	// EventAction carries an action token pressed on an outward message.
	EventAction EventKind = iota
	// EventText carries bare free text typed by the user.
	EventText
)

// Event is one inbound event fetched by the poll loop.
type Event struct {
	Kind  EventKind
	Token string // action token, correlationId:action[:value]
	Text  string // free text for EventText
}

// Action is one selectable action attached to an outward message. The token
// is round-tripped verbatim by the surface, so a stale token from a previous
// process run is safely ignored rather than mis-dispatched.
type Action struct {
	Label string
	Token string
}

// Transport abstracts the chat surface the engine talks to. Implementations
// exist for Telegram, NATS, and in-process testing.
type Transport interface {
	// SendMessage posts a new outward message and returns its identifier.
	SendMessage(ctx context.Context, text string, actions []Action) (string, error)

	// EditMessage replaces the text and actions of an existing message.
	EditMessage(ctx context.Context, messageID, text string, actions []Action) error

	// FetchEvents blocks until inbound events past the cursor are available
	// (or the context ends) and returns them with the advanced cursor.
	// Events are never delivered twice for a monotonically advancing cursor.
	FetchEvents(ctx context.Context, cursor int64) ([]Event, int64, error)

	// Close releases the transport's resources.
	Close() error
}

// SentMessage records one outward message, used by the memory transport.
type SentMessage struct {
	ID      string
	Text    string
	Actions []Action
}

// MemoryTransport is an in-process Transport for tests and local development.
// Outward messages are recorded, inbound events are injected by the caller.
type MemoryTransport struct {
	mu     sync.Mutex
	notify chan struct{}
	queue  []Event
	sent   []SentMessage
	edits  map[string][]SentMessage
	nextID int
	closed bool
}

// NewMemoryTransport creates an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		notify: make(chan struct{}, 1),
		edits:  make(map[string][]SentMessage),
	}
}

// SendMessage records an outward message and returns its generated id.
func (t *MemoryTransport) SendMessage(_ context.Context, text string, actions []Action) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	msg := SentMessage{ID: msgID(t.nextID), Text: text, Actions: append([]Action(nil), actions...)}
	t.sent = append(t.sent, msg)
	return msg.ID, nil
}

// EditMessage records an edit of a previously sent message.
func (t *MemoryTransport) EditMessage(_ context.Context, messageID, text string, actions []Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits[messageID] = append(t.edits[messageID], SentMessage{ID: messageID, Text: text, Actions: append([]Action(nil), actions...)})
	return nil
}

// Inject queues an inbound event for the poll loop.
func (t *MemoryTransport) Inject(ev Event) {
	t.mu.Lock()
	t.queue = append(t.queue, ev)
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// FetchEvents returns events past the cursor, blocking until at least one is
// available or the context ends.
func (t *MemoryTransport) FetchEvents(ctx context.Context, cursor int64) ([]Event, int64, error) {
	for {
		t.mu.Lock()
		if cursor < int64(len(t.queue)) {
			events := append([]Event(nil), t.queue[cursor:]...)
			next := int64(len(t.queue))
			t.mu.Unlock()
			return events, next, nil
		}
		t.mu.Unlock()

		select {
		case <-t.notify:
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		}
	}
}

// Close marks the transport closed.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Sent returns a copy of all outward messages sent so far.
func (t *MemoryTransport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.sent...)
}

// EditsFor returns the recorded edits of one message, oldest first.
func (t *MemoryTransport) EditsFor(messageID string) []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.edits[messageID]...)
}

func msgID(n int) string {
	return "m" + strconv.Itoa(n)
}
