package store

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

const channelsTable = "channels"

// CreateChannel appends a channel to the server's channel list.
func (s *Store) CreateChannel(ctx context.Context, nc NewChannel) (*Channel, error) {
	channelType := nc.ChannelType
	if channelType == "" {
		channelType = "text"
	}

	var ch *Channel
	err := s.db.WithTx(func(tx *goqu.TxDatabase) error {
		position, err := tx.From(channelsTable).Where(goqu.C("server_id").Eq(nc.ServerID)).CountContext(ctx)
		if err != nil {
			return err
		}
		ch = &Channel{
			ChannelID:   s.newID(),
			ServerID:    nc.ServerID,
			Name:        nc.Name,
			ChannelType: channelType,
			Description: nc.Description,
			Position:    int(position),
			CreatedAt:   s.timestamp(),
		}
		return execInsert(ctx, tx.Insert(channelsTable).Rows(goqu.Record{
			"channel_id":   ch.ChannelID,
			"server_id":    ch.ServerID,
			"name":         ch.Name,
			"channel_type": ch.ChannelType,
			"description":  ch.Description,
			"position":     ch.Position,
			"created_at":   ch.CreatedAt,
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("store: create channel: %w", err)
	}
	return ch, nil
}

func (s *Store) ChannelsForServer(ctx context.Context, serverID string) ([]Channel, error) {
	channels := []Channel{}
	err := s.db.From(channelsTable).
		Where(goqu.C("server_id").Eq(serverID)).
		Order(goqu.C("position").Asc()).
		ScanStructsContext(ctx, &channels)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	return channels, nil
}

func (s *Store) ChannelByID(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	found, err := s.db.From(channelsTable).Where(goqu.C("channel_id").Eq(channelID)).ScanStructContext(ctx, &ch)
	if err != nil {
		return nil, fmt.Errorf("store: find channel: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &ch, nil
}

// ChannelServerID resolves the server owning channelID. Unknown channels
// return an error wrapping ErrNotFound.
func (s *Store) ChannelServerID(ctx context.Context, channelID string) (string, error) {
	var serverID string
	found, err := s.db.From(channelsTable).
		Select("server_id").
		Where(goqu.C("channel_id").Eq(channelID)).
		ScanValContext(ctx, &serverID)
	if err != nil {
		return "", fmt.Errorf("store: channel server: %w", err)
	}
	if !found {
		return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return serverID, nil
}
