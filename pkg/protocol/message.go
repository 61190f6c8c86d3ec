// Package protocol defines the wire protocol between the intake client and
// the live session loop.
package protocol

import (
	"time"
)

// MessageType identifies the type of protocol message.
type MessageType uint8

const (
	// MsgJoin is sent by the client once the socket opens.
	MsgJoin MessageType = iota
	// MsgEvent carries a DOM event from the client.
	MsgEvent
	// MsgReply acknowledges a join or an event.
	MsgReply
	// MsgExec carries DOM commands to the client.
	MsgExec
	// MsgRender replaces the component markup on the client.
	MsgRender
	// MsgError reports a failed event.
	MsgError
	// MsgHeartbeat keeps the connection alive.
	MsgHeartbeat
)

// String returns a string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgJoin:
		return "join"
	case MsgEvent:
		return "event"
	case MsgReply:
		return "reply"
	case MsgExec:
		return "exec"
	case MsgRender:
		return "render"
	case MsgError:
		return "error"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Message represents a protocol message exchanged between client and server.
type Message struct {
	// Type identifies what kind of message this is
	Type MessageType `json:"t" msgpack:"t"`

	// Ref is a correlation ID for request/response matching
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is the session this message belongs to ("lv:<socket-id>")
	Topic string `json:"topic" msgpack:"topic"`

	// Event is the event name (e.g. "next", "add_page")
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	// Payload contains the message data
	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Timestamp when the message was created
	Timestamp int64 `json:"ts,omitempty" msgpack:"ts,omitempty"`
}

// NewMessage creates a new message with the given parameters.
func NewMessage(msgType MessageType, topic, event string) *Message {
	return &Message{
		Type:      msgType,
		Topic:     topic,
		Event:     event,
		Payload:   make(map[string]any),
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef adds a reference ID to the message.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// WithPayload sets the message payload.
func (m *Message) WithPayload(payload map[string]any) *Message {
	m.Payload = payload
	return m
}

// GetPayloadString retrieves a string value from the payload.
func (m *Message) GetPayloadString(key string) string {
	if m.Payload == nil {
		return ""
	}
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// GetPayloadInt retrieves an int value from the payload. Numbers decoded
// by either codec and numeric strings are accepted.
func (m *Message) GetPayloadInt(key string) int {
	if m.Payload == nil {
		return 0
	}
	return ToInt(m.Payload[key])
}

// GetPayloadBool retrieves a bool value from the payload.
func (m *Message) GetPayloadBool(key string) bool {
	if m.Payload == nil {
		return false
	}
	if v, ok := m.Payload[key].(bool); ok {
		return v
	}
	return false
}

// IsHeartbeat returns true if this is a heartbeat message.
func (m *Message) IsHeartbeat() bool {
	return m.Type == MsgHeartbeat
}

// JoinMessage creates a join message.
func JoinMessage(topic string, params map[string]any) *Message {
	return NewMessage(MsgJoin, topic, "join").WithPayload(params)
}

// EventMessage creates an event message.
func EventMessage(topic, event string, payload map[string]any) *Message {
	return NewMessage(MsgEvent, topic, event).WithPayload(payload)
}

// ReplyMessage creates a reply message.
func ReplyMessage(ref, topic string, status string, response map[string]any) *Message {
	return NewMessage(MsgReply, topic, "reply").
		WithRef(ref).
		WithPayload(map[string]any{
			"status":   status,
			"response": response,
		})
}

// OkReply creates a successful reply message.
func OkReply(ref, topic string, response map[string]any) *Message {
	return ReplyMessage(ref, topic, "ok", response)
}

// ErrorReply creates an error reply message.
func ErrorReply(ref, topic string, reason string) *Message {
	return ReplyMessage(ref, topic, "error", map[string]any{"reason": reason})
}

// ExecMessage creates a message carrying DOM commands.
func ExecMessage(topic string, ops any) *Message {
	return NewMessage(MsgExec, topic, "exec").WithPayload(map[string]any{"ops": ops})
}

// RenderMessage creates a full render message.
func RenderMessage(topic, html string) *Message {
	return NewMessage(MsgRender, topic, "render").WithPayload(map[string]any{"html": html})
}

// HeartbeatMessage creates a heartbeat message.
func HeartbeatMessage() *Message {
	return NewMessage(MsgHeartbeat, "live", "heartbeat")
}
