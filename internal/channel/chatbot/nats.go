package chatbot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/channel"
	"github.com/humanlink/humanlink/internal/common/config"
	"github.com/humanlink/humanlink/internal/common/logger"
)

// OutboundMessage is the JSON envelope published for every outward prompt,
// edit, and progress message on <prefix>.outbound. Bridges (Slack bots,
// custom frontends) render it and feed user reactions back on
// <prefix>.inbound.
type OutboundMessage struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
	Edit    bool     `json:"edit,omitempty"`
}

// InboundEvent is the JSON envelope bridges publish on <prefix>.inbound.
// Kind is "action" (with Token) or "text" (with Text).
type InboundEvent struct {
	Kind  string `json:"kind"`
	Token string `json:"token,omitempty"`
	Text  string `json:"text,omitempty"`
}

// NATSTransport runs the correlation protocol over a NATS subject pair.
// Inbound events are buffered into an internal queue so the engine's
// cursor-based FetchEvents contract holds on top of push delivery.
type NATSTransport struct {
	conn *nats.Conn
	sub  *nats.Subscription
	log  *logger.Logger

	outSubject string

	mu     sync.Mutex
	notify chan struct{}
	queue  []Event
	// base is the cursor of queue[0]; delivered events are trimmed so the
	// queue holds only the undelivered suffix.
	base int64
}

// NewNATSTransport connects to NATS and subscribes to the inbound subject.
func NewNATSTransport(cfg config.NATSConfig, log *logger.Logger) (*NATSTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats.url is required", channel.ErrConfiguration)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "humanlink"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Name("humanlink-chatbot"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %v", channel.ErrConfiguration, err)
	}

	t := &NATSTransport{
		conn:       conn,
		log:        log.WithChannel("nats"),
		outSubject: prefix + ".outbound",
		notify:     make(chan struct{}, 1),
	}

	sub, err := conn.Subscribe(prefix+".inbound", t.onInbound)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to subscribe to inbound subject: %v", channel.ErrConfiguration, err)
	}
	t.sub = sub
	return t, nil
}

func (t *NATSTransport) onInbound(msg *nats.Msg) {
	var in InboundEvent
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		t.log.Debug("dropping malformed inbound event", zap.Error(err))
		return
	}

	var ev Event
	switch in.Kind {
	case "action":
		ev = Event{Kind: EventAction, Token: in.Token}
	case "text":
		ev = Event{Kind: EventText, Text: in.Text}
	default:
		t.log.Debug("dropping inbound event of unknown kind", zap.String("kind", in.Kind))
		return
	}

	t.mu.Lock()
	t.queue = append(t.queue, ev)
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// SendMessage publishes an outward prompt and returns its generated id.
func (t *NATSTransport) SendMessage(_ context.Context, text string, actions []Action) (string, error) {
	id := uuid.New().String()
	if err := t.publish(OutboundMessage{ID: id, Text: text, Actions: actions}); err != nil {
		return "", err
	}
	return id, nil
}

// EditMessage republishes a message id with the edit flag set; bridges
// replace the rendered message in place.
func (t *NATSTransport) EditMessage(_ context.Context, messageID, text string, actions []Action) error {
	return t.publish(OutboundMessage{ID: messageID, Text: text, Actions: actions, Edit: true})
}

func (t *NATSTransport) publish(msg OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode outbound message: %w", err)
	}
	if err := t.conn.Publish(t.outSubject, data); err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}
	return nil
}

// FetchEvents returns buffered inbound events past the cursor, blocking
// until at least one is available or the context ends. The poll loop is the
// single consumer and its cursor only advances, so delivered events are
// dropped from the queue on return instead of being retained forever.
func (t *NATSTransport) FetchEvents(ctx context.Context, cursor int64) ([]Event, int64, error) {
	for {
		t.mu.Lock()
		if cursor < t.base {
			cursor = t.base
		}
		if idx := cursor - t.base; idx < int64(len(t.queue)) {
			events := append([]Event(nil), t.queue[idx:]...)
			next := t.base + int64(len(t.queue))
			t.queue = nil
			t.base = next
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

// Close unsubscribes and drains the connection.
func (t *NATSTransport) Close() error {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	t.conn.Close()
	return nil
}
