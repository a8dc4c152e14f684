package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sskingcobraz/Xalvion/internal/store"
)

func TestRealtimeSession(t *testing.T) {
	env := newTestEnv(t, nil)
	alice, aliceToken := env.createUser(t, "alice")
	bob, _ := env.createUser(t, "bob")
	srv, err := env.store.CreateServer(context.Background(), alice.UserID, store.NewServer{Name: "Team"})
	require.NoError(t, err)
	channelID := srv.Channels[0]

	aliceConn := env.dial(t, alice.UserID)
	require.NoError(t, aliceConn.WriteJSON(map[string]string{"type": EventJoinServer, "server_id": srv.ServerID}))
	joined := readFrame(t, aliceConn)
	assert.Equal(t, EventUserJoined, joined.Type)
	assert.Equal(t, alice.UserID, joined.Data["user_id"])

	bobConn := env.dial(t, bob.UserID)
	require.NoError(t, bobConn.WriteJSON(map[string]string{"type": EventJoinServer, "server_id": srv.ServerID}))
	assert.Equal(t, bob.UserID, readFrame(t, aliceConn).Data["user_id"])
	assert.Equal(t, bob.UserID, readFrame(t, bobConn).Data["user_id"])

	require.NoError(t, aliceConn.WriteJSON(map[string]string{
		"type":       EventTyping,
		"channel_id": channelID,
		"username":   "alice",
	}))
	typing := readFrame(t, bobConn)
	assert.Equal(t, EventTyping, typing.Type)
	assert.Equal(t, map[string]any{"user_id": alice.UserID, "channel_id": channelID, "username": "alice"}, typing.Data)

	resp := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{
		"channel_id": channelID,
		"content":    "hello bob",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// alice's typing frame was never echoed, so her next frame is the message.
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		msg := readFrame(t, conn)
		assert.Equal(t, EventNewMessage, msg.Type)
		assert.Equal(t, "hello bob", msg.Data["content"])
		assert.Equal(t, alice.UserID, msg.Data["author_id"])
	}

	require.NoError(t, bobConn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	left := readFrame(t, aliceConn)
	assert.Equal(t, EventUserLeft, left.Type)
	assert.Equal(t, map[string]any{"user_id": bob.UserID, "server_id": srv.ServerID}, left.Data)

	require.Eventually(t, func() bool {
		return env.hub.PresenceSnapshot()[bob.UserID].Status() == StatusOffline
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusOnline, env.hub.PresenceSnapshot()[alice.UserID].Status())
}

func TestRealtimeMalformedFrameKeepsConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unknown"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": EventJoinServer, "server_id": "s1"}))

	assert.Equal(t, EventUserJoined, readFrame(t, conn).Type)
	assert.True(t, env.hub.IsConnected("alice"))
}

func TestRealtimeReconnectReplacesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.dial(t, "alice")
	require.NoError(t, first.WriteJSON(map[string]string{"type": EventJoinServer, "server_id": "s1"}))
	readFrame(t, first)

	second := env.dial(t, "alice")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "expected close frame, got %v", err)

	// The replaced connection's cleanup must not strip the live one's memberships.
	require.NoError(t, second.WriteJSON(map[string]any{
		"type": EventPresenceUpdate,
		"data": map[string]string{"activity": "back"},
	}))
	update := readFrame(t, second)
	assert.Equal(t, EventPresenceUpdate, update.Type)
	assert.Equal(t, 1, env.hub.ConnectionCount())
	assert.True(t, env.hub.members.IsMember("s1", "alice"))
}

func TestWebSocketOriginValidation(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"https://xalvion.example"}
	})

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"missing origin", "", false},
		{"disallowed origin", "https://evil.example", false},
		{"allowed origin", "https://xalvion.example", true},
		{"allowed origin different case", "HTTPS://XALVION.EXAMPLE", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL("alice"), header)
			if resp != nil {
				_ = resp.Body.Close()
			}
			if tt.ok {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestWebSocketMessageSizeLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxMessageSize = 64
	})
	conn := env.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_server","server_id":"`+strings.Repeat("x", 128)+`"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return !env.hub.IsConnected("alice") }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketRateLimiting(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})
	conn := env.dial(t, "alice")

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": EventJoinServer, "server_id": "s1"}))
	}

	assert.Equal(t, EventUserJoined, readFrame(t, conn).Type)
	assert.Equal(t, EventUserJoined, readFrame(t, conn).Type)
	expectNoFrame(t, conn, 200*time.Millisecond)
}

func TestWebSocketHandlerRejectsNonGet(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/ws/alice", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
