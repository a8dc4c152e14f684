package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
	"go.uber.org/zap"

	"github.com/Sskingcobraz/Xalvion/internal/store"
)

// ChannelLookup resolves the server that owns a channel. Unknown channels
// return an error wrapping store.ErrNotFound.
type ChannelLookup interface {
	ChannelServerID(ctx context.Context, channelID string) (string, error)
}

// channelResolver caches channel -> server ids. A channel never moves between
// servers, so entries only need to expire. Misses are not cached.
type channelResolver struct {
	lookup ChannelLookup
	cache  *otter.Cache[string, string]
}

func newChannelResolver(lookup ChannelLookup, size int, ttl time.Duration) (*channelResolver, error) {
	cache, err := otter.New(&otter.Options[string, string]{
		MaximumSize:      size,
		ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("channel cache: %w", err)
	}
	return &channelResolver{lookup: lookup, cache: cache}, nil
}

// resolve returns the owning server id, or an error wrapping
// store.ErrNotFound for an unknown channel.
func (r *channelResolver) resolve(ctx context.Context, channelID string) (string, error) {
	if r.lookup == nil {
		return "", fmt.Errorf("channel %s: %w", channelID, store.ErrNotFound)
	}

	loader := otter.LoaderFunc[string, string](func(ctx context.Context, key string) (string, error) {
		serverID, err := r.lookup.ChannelServerID(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return "", otter.ErrNotFound
		}
		return serverID, err
	})

	serverID, err := r.cache.Get(ctx, channelID, loader)
	if errors.Is(err, otter.ErrNotFound) {
		return "", fmt.Errorf("channel %s: %w", channelID, store.ErrNotFound)
	}
	return serverID, err
}

type broadcastOptions struct {
	exclude string
}

type BroadcastOption func(*broadcastOptions)

// ExcludeUser skips userID when fanning out.
func ExcludeUser(userID string) BroadcastOption {
	return func(o *broadcastOptions) {
		o.exclude = userID
	}
}

// SendToUser delivers payload to one user's live connection.
func (h *Hub) SendToUser(ctx context.Context, userID string, payload []byte) DeliveryStatus {
	return h.SendPersonal(ctx, userID, payload)
}

// BroadcastToServer sends payload to every current member of serverID. The
// member set is snapshotted first; each recipient is sent to independently
// and a failing recipient is disconnected without affecting the others.
func (h *Hub) BroadcastToServer(ctx context.Context, serverID string, payload []byte, opts ...BroadcastOption) RouteOutcome {
	var o broadcastOptions
	for _, opt := range opts {
		opt(&o)
	}

	members := h.members.MembersOf(serverID)
	if len(members) == 0 {
		return RouteNoMembers
	}

	sent := 0
	for _, userID := range members {
		if o.exclude != "" && userID == o.exclude {
			continue
		}
		h.SendPersonal(ctx, userID, payload)
		sent++
	}
	h.fanout.Record(ctx, int64(sent), nil)

	return RouteDispatched
}

// BroadcastToChannel fans payload out to the members of the server owning
// channelID. An unknown channel sends nothing and is not an error.
func (h *Hub) BroadcastToChannel(ctx context.Context, channelID string, payload []byte, opts ...BroadcastOption) RouteOutcome {
	serverID, err := h.channels.resolve(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RouteChannelNotFound
		}
		h.logger.Error("channel lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return RouteLookupFailed
	}
	return h.BroadcastToServer(ctx, serverID, payload, opts...)
}

// NotifyChannel encodes evt and broadcasts it to the channel's server. It is
// the entry point for writes made outside a realtime connection.
func (h *Hub) NotifyChannel(ctx context.Context, channelID string, evt Event) RouteOutcome {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("encoding event", zap.String("type", evt.Type), zap.Error(err))
		return RouteLookupFailed
	}
	return h.BroadcastToChannel(ctx, channelID, payload)
}

// PresenceSnapshot returns a copy of every known presence record.
func (h *Hub) PresenceSnapshot() map[string]PresenceRecord {
	return h.presence.Snapshot()
}
