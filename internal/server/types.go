// Package server defines the realtime wire events, routing outcomes and
// shared helpers reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Inbound event types.
const (
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventJoinServer     = "join_server"
	EventPresenceUpdate = "presence_update"
)

// Outbound-only event types.
const (
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventNewMessage     = "new_message"
	EventReactionUpdate = "reaction_update"
)

// Event is the envelope of every frame sent to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InboundEvent is a decoded client frame. Which fields are required depends
// on Type.
type InboundEvent struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	ServerID  string          `json:"server_id,omitempty"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type TypingData struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Username  string `json:"username"`
}

type StopTypingData struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type UserJoinedData struct {
	UserID   string         `json:"user_id"`
	ServerID string         `json:"server_id"`
	Presence PresenceRecord `json:"presence"`
}

type UserLeftData struct {
	UserID   string `json:"user_id"`
	ServerID string `json:"server_id"`
}

type PresenceUpdateData struct {
	UserID   string         `json:"user_id"`
	Presence PresenceRecord `json:"presence"`
}

// DeliveryStatus is the outcome of a single-recipient send.
type DeliveryStatus int

const (
	// DeliveryDelivered means the payload was queued on the live connection.
	DeliveryDelivered DeliveryStatus = iota
	// DeliveryNoConnection means the user holds no live connection.
	DeliveryNoConnection
	// DeliveryDropped means the payload was not queued. A dead or too slow
	// connection has also been disconnected; a cancelled caller context
	// leaves the connection registered.
	DeliveryDropped
)

func (d DeliveryStatus) String() string {
	switch d {
	case DeliveryDelivered:
		return "delivered"
	case DeliveryNoConnection:
		return "no_connection"
	case DeliveryDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// RouteOutcome reports how a scoped broadcast was routed. It says nothing
// about per-recipient delivery.
type RouteOutcome int

const (
	RouteDispatched RouteOutcome = iota
	RouteNoMembers
	RouteChannelNotFound
	RouteLookupFailed
)

func (r RouteOutcome) String() string {
	switch r {
	case RouteDispatched:
		return "dispatched"
	case RouteNoMembers:
		return "no_members"
	case RouteChannelNotFound:
		return "channel_not_found"
	case RouteLookupFailed:
		return "lookup_failed"
	default:
		return "unknown"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
