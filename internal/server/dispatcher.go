package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrConnectionClosed = errors.New("connection closed")
)

const defaultTypingUsername = "Unknown"

// Dispatch applies one inbound frame from c. Malformed and unknown frames are
// returned as errors for the caller to log; the connection stays usable.
func (h *Hub) Dispatch(ctx context.Context, c *Client, raw []byte) error {
	if c.State() == ConnClosed {
		return ErrConnectionClosed
	}

	var in InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	switch in.Type {
	case EventTyping:
		h.events.Add(ctx, 1, map[string]string{"type": in.Type})
		return h.handleTyping(ctx, c, in)
	case EventStopTyping:
		h.events.Add(ctx, 1, map[string]string{"type": in.Type})
		return h.handleStopTyping(ctx, c, in)
	case EventJoinServer:
		h.events.Add(ctx, 1, map[string]string{"type": in.Type})
		return h.handleJoinServer(ctx, c, in)
	case EventPresenceUpdate:
		h.events.Add(ctx, 1, map[string]string{"type": in.Type})
		return h.handlePresenceUpdate(ctx, c, in)
	default:
		h.events.Add(ctx, 1, map[string]string{"type": "unknown"})
		return fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}
}

func (h *Hub) typingOptions(c *Client) []BroadcastOption {
	if h.echoTyping {
		return nil
	}
	return []BroadcastOption{ExcludeUser(c.userID)}
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, in InboundEvent) error {
	if in.ChannelID == "" {
		return fmt.Errorf("%w: typing without channel_id", ErrMalformedEvent)
	}

	username := in.Username
	if username == "" {
		username = defaultTypingUsername
	}

	payload, err := json.Marshal(Event{
		Type: EventTyping,
		Data: TypingData{UserID: c.userID, ChannelID: in.ChannelID, Username: username},
	})
	if err != nil {
		return err
	}

	h.BroadcastToChannel(ctx, in.ChannelID, payload, h.typingOptions(c)...)
	return nil
}

func (h *Hub) handleStopTyping(ctx context.Context, c *Client, in InboundEvent) error {
	if in.ChannelID == "" {
		return fmt.Errorf("%w: stop_typing without channel_id", ErrMalformedEvent)
	}

	payload, err := json.Marshal(Event{
		Type: EventStopTyping,
		Data: StopTypingData{UserID: c.userID, ChannelID: in.ChannelID},
	})
	if err != nil {
		return err
	}

	h.BroadcastToChannel(ctx, in.ChannelID, payload, h.typingOptions(c)...)
	return nil
}

// handleJoinServer always announces the join, including a repeated join by an
// existing member.
func (h *Hub) handleJoinServer(ctx context.Context, c *Client, in InboundEvent) error {
	if in.ServerID == "" {
		return fmt.Errorf("%w: join_server without server_id", ErrMalformedEvent)
	}

	h.members.Join(in.ServerID, c.userID)

	presence, ok := h.presence.Get(c.userID)
	if !ok {
		presence = PresenceRecord{}
	}

	payload, err := json.Marshal(Event{
		Type: EventUserJoined,
		Data: UserJoinedData{UserID: c.userID, ServerID: in.ServerID, Presence: presence},
	})
	if err != nil {
		return err
	}

	h.BroadcastToServer(ctx, in.ServerID, payload)
	return nil
}

func (h *Hub) handlePresenceUpdate(ctx context.Context, c *Client, in InboundEvent) error {
	var fields map[string]any
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &fields); err != nil {
			return fmt.Errorf("%w: presence data must be an object: %w", ErrMalformedEvent, err)
		}
	}

	presence, ok := h.presence.Update(c.userID, fields)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(Event{
		Type: EventPresenceUpdate,
		Data: PresenceUpdateData{UserID: c.userID, Presence: presence},
	})
	if err != nil {
		return err
	}

	for _, serverID := range h.members.ServersOf(c.userID) {
		h.BroadcastToServer(ctx, serverID, payload)
	}
	return nil
}

// handleClientClosed runs once per client after its transport ends. The
// user's memberships are dropped and announced unless a newer connection for
// the same user has already taken over.
func (h *Hub) handleClientClosed(ctx context.Context, c *Client) {
	h.announceLeft(ctx, c.userID, h.releaseClient(c))
}

// releaseClient closes c and removes its user from every joined server,
// returning those servers. It returns nil when c was already closed or a
// newer connection holds the user.
func (h *Hub) releaseClient(c *Client) []string {
	if !c.markClosed() {
		return nil
	}

	h.removeClient(c)

	if holder := h.connectionFor(c.userID); holder != nil {
		h.logger.Debug("connection closed after reconnect; keeping memberships",
			zap.String("user_id", c.userID),
			zap.String("conn_id", c.ID()),
			zap.String("current_conn_id", holder.ID()),
		)
		return nil
	}

	return h.members.LeaveAll(c.userID)
}

func (h *Hub) announceLeft(ctx context.Context, userID string, servers []string) {
	for _, serverID := range servers {
		payload, err := json.Marshal(Event{
			Type: EventUserLeft,
			Data: UserLeftData{UserID: userID, ServerID: serverID},
		})
		if err != nil {
			h.logger.Error("encoding user_left", zap.Error(err))
			continue
		}
		h.BroadcastToServer(ctx, serverID, payload)
	}
}
