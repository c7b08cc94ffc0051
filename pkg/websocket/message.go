// Package websocket provides the WebSocket message envelope and action names
// shared by the web render channel and its browser clients.
package websocket

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// Server push actions.
const (
	// ActionInteractionRequested announces a new pending interaction.
	ActionInteractionRequested = "interaction.requested"
	// ActionInteractionResolved announces that an interaction was answered.
	ActionInteractionResolved = "interaction.resolved"
	// ActionInteractionExpired announces a cancelled or timed-out interaction,
	// so the client renders it inert instead of silently dropping it.
	ActionInteractionExpired = "interaction.expired"
	// ActionProgressUpdated updates one operation's progress surface in place.
	ActionProgressUpdated = "interaction.progress"
	// ActionProgressDone finalizes one operation's progress surface.
	ActionProgressDone = "interaction.progress_done"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload represents an error notification payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewNotification creates a new notification message
func NewNotification(action string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      MessageTypeNotification,
		Action:    action,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload parses the payload into the given struct
func (m *Message) ParsePayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
