package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "xalvion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, username string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), NewUser{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return u
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	u := createUser(t, s, "alice")
	require.NotEmpty(t, u.UserID)
	require.Equal(t, "alice", u.DisplayName)
	require.Equal(t, "dark", u.Theme)
	require.Equal(t, "offline", u.Status)

	byID, err := s.UserByID(ctx, u.UserID)
	require.NoError(t, err)
	require.Equal(t, u.Username, byID.Username)
	require.Equal(t, "hash", byID.PasswordHash)

	byName, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.UserID, byName.UserID)

	_, err = s.UserByUsername(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	createUser(t, s, "alice")

	_, err := s.CreateUser(ctx, NewUser{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.CreateUser(ctx, NewUser{Username: "alice2", Email: "alice@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateServerSeedsDefaults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := createUser(t, s, "alice")

	srv, err := s.CreateServer(ctx, owner.UserID, NewServer{Name: "Guild"})
	require.NoError(t, err)
	require.Equal(t, []string{owner.UserID}, srv.Members)
	require.Len(t, srv.Channels, 3)
	require.Len(t, srv.Roles, 2)
	require.Equal(t, "Admin", srv.Roles[0].Name)
	require.Equal(t, []string{owner.UserID}, srv.Roles[0].Members)

	channels, err := s.ChannelsForServer(ctx, srv.ServerID)
	require.NoError(t, err)
	require.Len(t, channels, 3)
	require.Equal(t, "general", channels[0].Name)
	require.Equal(t, "voice", channels[2].ChannelType)
	for i, ch := range channels {
		require.Equal(t, i, ch.Position)
		require.Equal(t, srv.Channels[i], ch.ChannelID)
	}

	loaded, err := s.ServerByID(ctx, srv.ServerID)
	require.NoError(t, err)
	require.Equal(t, srv.Channels, loaded.Channels)
	require.Equal(t, srv.Roles[1].Permissions, loaded.Roles[1].Permissions)

	ok, err := s.IsMember(ctx, srv.ServerID, owner.UserID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.IsMember(ctx, srv.ServerID, "someone-else")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestServersForUser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	_, err := s.CreateServer(ctx, alice.UserID, NewServer{Name: "A"})
	require.NoError(t, err)
	_, err = s.CreateServer(ctx, bob.UserID, NewServer{Name: "B"})
	require.NoError(t, err)

	servers, err := s.ServersForUser(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "A", servers[0].Name)

	servers, err = s.ServersForUser(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, servers)
}

func TestChannelLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := createUser(t, s, "alice")
	srv, err := s.CreateServer(ctx, owner.UserID, NewServer{Name: "Guild"})
	require.NoError(t, err)

	ch, err := s.CreateChannel(ctx, NewChannel{ServerID: srv.ServerID, Name: "random"})
	require.NoError(t, err)
	require.Equal(t, 3, ch.Position)
	require.Equal(t, "text", ch.ChannelType)

	serverID, err := s.ChannelServerID(ctx, ch.ChannelID)
	require.NoError(t, err)
	require.Equal(t, srv.ServerID, serverID)

	_, err = s.ChannelServerID(ctx, "missing-channel")
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = s.ChannelByID(ctx, "missing-channel")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListMessagesOldestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s, err := Open(ctx, filepath.Join(t.TempDir(), "xalvion.db"), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 100 * time.Millisecond)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, content := range []string{"one", "two", "three"} {
		_, err := s.CreateMessage(ctx, NewMessage{ChannelID: "c1", AuthorID: "u1", AuthorUsername: "alice", Content: content})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[0].Content)
	require.Equal(t, "three", msgs[1].Content)
	require.Equal(t, []string{}, msgs[0].Attachments)
	require.Nil(t, msgs[0].EditedAt)
	require.False(t, msgs[0].Pinned)
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m, err := s.CreateMessage(ctx, NewMessage{ChannelID: "c1", AuthorID: "u1", Content: "hi", Attachments: []string{"a.png"}})
	require.NoError(t, err)

	require.NoError(t, s.AddReaction(ctx, Reaction{MessageID: m.MessageID, UserID: "u1", Username: "alice", Emoji: ":+1:"}))
	require.NoError(t, s.AddReaction(ctx, Reaction{MessageID: m.MessageID, UserID: "u1", Username: "alice", Emoji: ":+1:"}))
	require.NoError(t, s.AddReaction(ctx, Reaction{MessageID: m.MessageID, UserID: "u2", Username: "bob", Emoji: ":+1:"}))

	loaded, err := s.MessageByID(ctx, m.MessageID)
	require.NoError(t, err)
	require.Len(t, loaded.Reactions, 2)
	require.Equal(t, []string{"a.png"}, loaded.Attachments)

	require.NoError(t, s.RemoveReaction(ctx, m.MessageID, "u1", ":+1:"))
	reactions, err := s.Reactions(ctx, m.MessageID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	require.Equal(t, "bob", reactions[0].Username)

	_, err = s.MessageByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
