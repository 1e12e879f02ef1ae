// Package floproto defines the JSON wire protocol exchanged between the flo
// broadcaster and its live-update clients over a WebSocket connection.
package floproto

import (
	"encoding/json"
	"fmt"

	"github.com/koltyakov/flo/internal/domain"
)

// ConnectPath is the websocket endpoint served by the broadcaster.
const ConnectPath = "/connect"

// Message kinds identify the type of payload carried by a [Message].
const (
	KindHello    = "hello"
	KindResource = "resource"
	KindPing     = "ping"
	KindPong     = "pong"
	KindClose    = "close"
)

// Message is the top-level envelope exchanged on the flo WebSocket.
type Message struct {
	Kind     string           `json:"kind"`
	Hello    *Hello           `json:"hello,omitempty"`
	Resource *domain.Resource `json:"resource,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Hello is sent by the server right after a client connects.
type Hello struct {
	SessionID     string `json:"session_id"`
	ServerVersion string `json:"server_version,omitempty"`
}

// ResourceMessage wraps r in a resource envelope.
func ResourceMessage(r domain.Resource) Message {
	return Message{Kind: KindResource, Resource: &r}
}

// Decode parses a single text frame. Resource frames must carry a valid record.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch msg.Kind {
	case KindHello, KindPing, KindPong, KindClose:
	case KindResource:
		if err := msg.Resource.Validate(); err != nil {
			return Message{}, err
		}
	case "":
		return Message{}, fmt.Errorf("decode message: missing kind")
	default:
		return Message{}, fmt.Errorf("decode message: unknown kind %q", msg.Kind)
	}
	return msg, nil
}
