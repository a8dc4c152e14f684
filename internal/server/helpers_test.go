package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Sskingcobraz/Xalvion/internal/auth"
	"github.com/Sskingcobraz/Xalvion/internal/store"
)

// staticLookup resolves channels from a fixed map and counts lookups.
type staticLookup struct {
	channels map[string]string
	err      error
	calls    atomic.Int32
}

func newStaticLookup(channels map[string]string) *staticLookup {
	return &staticLookup{channels: channels}
}

func (l *staticLookup) ChannelServerID(_ context.Context, channelID string) (string, error) {
	l.calls.Add(1)
	if l.err != nil {
		return "", l.err
	}
	if serverID, ok := l.channels[channelID]; ok {
		return serverID, nil
	}
	return "", fmt.Errorf("channel %s: %w", channelID, store.ErrNotFound)
}

func newTestHub(t *testing.T, lookup ChannelLookup, opts ...HubOption) *Hub {
	t.Helper()
	h, err := NewHub(lookup, opts...)
	require.NoError(t, err)
	t.Cleanup(h.cancel)
	return h
}

// connectUser registers a client without a transport; its frames are read
// straight off the send queue.
func connectUser(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(nil, h, userID, "test")
	h.Connect(c)
	return c
}

type frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// drain returns every frame queued on c without blocking.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw, ok := <-c.GetSendChan():
			if !ok {
				return frames
			}
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func frameTypes(frames []frame) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f.Type)
	}
	return types
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func sendClosed(c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// testEnv is a running hub and HTTP server backed by a temporary database.
type testEnv struct {
	store  *store.Store
	issuer *auth.Issuer
	hub    *Hub
	server *httptest.Server
}

func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(cfg)
	}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "xalvion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	hub := newTestHub(t, st)
	go hub.Run()

	ts := httptest.NewServer(SetupRoutes(hub, NewAPI(st, issuer, hub), zap.NewNop()))
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
	})

	return &testEnv{store: st, issuer: issuer, hub: hub, server: ts}
}

func (e *testEnv) createUser(t *testing.T, username string) (*store.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("password-" + username)
	require.NoError(t, err)
	u, err := e.store.CreateUser(context.Background(), store.NewUser{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	})
	require.NoError(t, err)
	token, err := e.issuer.Issue(u.UserID, u.Username)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) wsURL(userID string) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/" + userID
}

// dial opens a websocket for userID and waits until the hub has registered it.
func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", e.server.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(userID), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return e.hub.IsConnected(userID) }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// expectNoFrame asserts nothing arrives on conn within timeout.
func expectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}
