package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/doug-martin/goqu/v9"
)

const (
	messagesTable  = "messages"
	reactionsTable = "reactions"
)

func (s *Store) CreateMessage(ctx context.Context, nm NewMessage) (*Message, error) {
	messageType := nm.MessageType
	if messageType == "" {
		messageType = "text"
	}
	attachments := nm.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("store: encode attachments: %w", err)
	}

	m := &Message{
		MessageID:         s.newID(),
		ChannelID:         nm.ChannelID,
		AuthorID:          nm.AuthorID,
		AuthorUsername:    nm.AuthorUsername,
		AuthorDisplayName: nm.AuthorDisplayName,
		Content:           nm.Content,
		MessageType:       messageType,
		AttachmentsJSON:   string(encoded),
		CreatedAt:         s.timestamp(),
		Attachments:       attachments,
		Reactions:         []Reaction{},
	}
	err = execInsert(ctx, s.db.Insert(messagesTable).Rows(goqu.Record{
		"message_id":          m.MessageID,
		"channel_id":          m.ChannelID,
		"author_id":           m.AuthorID,
		"author_username":     m.AuthorUsername,
		"author_display_name": m.AuthorDisplayName,
		"content":             m.Content,
		"message_type":        m.MessageType,
		"attachments":         m.AttachmentsJSON,
		"created_at":          m.CreatedAt,
		"pinned":              false,
	}))
	if err != nil {
		return nil, fmt.Errorf("store: create message: %w", err)
	}
	return m, nil
}

func (s *Store) MessageByID(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	found, err := s.db.From(messagesTable).Where(goqu.C("message_id").Eq(messageID)).ScanStructContext(ctx, &m)
	if err != nil {
		return nil, fmt.Errorf("store: find message: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	if err := s.hydrateMessage(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns the newest limit messages of a channel, oldest first.
func (s *Store) ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	messages := []Message{}
	err := s.db.From(messagesTable).
		Where(goqu.C("channel_id").Eq(channelID)).
		Order(goqu.C("created_at").Desc(), goqu.I("rowid").Desc()).
		Limit(uint(limit)).
		ScanStructsContext(ctx, &messages)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	slices.Reverse(messages)

	for i := range messages {
		if err := s.hydrateMessage(ctx, &messages[i]); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// AddReaction records a reaction; repeating the same emoji from the same user
// is a no-op.
func (s *Store) AddReaction(ctx context.Context, r Reaction) error {
	_, err := s.db.Insert(reactionsTable).
		Rows(goqu.Record{
			"message_id": r.MessageID,
			"user_id":    r.UserID,
			"username":   r.Username,
			"emoji":      r.Emoji,
			"created_at": s.timestamp(),
		}).
		OnConflict(goqu.DoNothing()).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: add reaction: %w", err)
	}
	return nil
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := s.db.Delete(reactionsTable).
		Where(
			goqu.C("message_id").Eq(messageID),
			goqu.C("user_id").Eq(userID),
			goqu.C("emoji").Eq(emoji),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: remove reaction: %w", err)
	}
	return nil
}

func (s *Store) Reactions(ctx context.Context, messageID string) ([]Reaction, error) {
	reactions := []Reaction{}
	err := s.db.From(reactionsTable).
		Where(goqu.C("message_id").Eq(messageID)).
		Order(goqu.C("created_at").Asc(), goqu.I("rowid").Asc()).
		ScanStructsContext(ctx, &reactions)
	if err != nil {
		return nil, fmt.Errorf("store: list reactions: %w", err)
	}
	return reactions, nil
}

func (s *Store) hydrateMessage(ctx context.Context, m *Message) error {
	if err := json.Unmarshal([]byte(m.AttachmentsJSON), &m.Attachments); err != nil {
		return fmt.Errorf("store: decode attachments for %s: %w", m.MessageID, err)
	}
	reactions, err := s.Reactions(ctx, m.MessageID)
	if err != nil {
		return err
	}
	m.Reactions = reactions
	return nil
}
