package ws

import "github.com/lofichat/internal/model"

type EventType string

const (
	EventConnected EventType = "connected"
	EventEvent     EventType = "event"
	EventPing      EventType = "ping"
	EventPong      EventType = "pong"
	EventError     EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ConnectedPayload is sent once after the upgrade.
type ConnectedPayload struct {
	ConnectionID string   `json:"connection_id"`
	Channels     []string `json:"channels"`
}

// EventFrame wraps a collection event for the wire.
func EventFrame(ev model.RealtimeEvent) OutgoingMessage {
	return OutgoingMessage{Type: EventEvent, Payload: ev}
}
