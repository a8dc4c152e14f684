// Package server coordinates client registration, presence, membership and
// connection cleanup for the Xalvion realtime system via the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sskingcobraz/Xalvion/internal/metrics"
)

// Hub owns the process-wide realtime state: the connection registry, the
// presence store and the ephemeral membership index. Registration and
// transport-close cleanup are serialized through Run.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client

	presence *PresenceStore
	members  *MembershipIndex
	channels *channelResolver

	sendTimeout time.Duration
	echoTyping  bool
	now         func() time.Time
	logger      *zap.Logger

	activeConns metrics.Int64Gauge
	events      metrics.Int64Counter
	deliveries  metrics.Int64Counter
	fanout      metrics.Int64Histogram

	register   chan *Client
	unregister chan *Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

type HubOption func(*Hub)

func WithLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMetrics(m metrics.Handler) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.initMetrics(m)
		}
	}
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub creates a Hub that resolves channels through lookup. Send timeout,
// echo policy and channel cache sizing come from the active Config.
func NewHub(lookup ChannelLookup, opts ...HubOption) (*Hub, error) {
	cfg := currentConfig()
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		conns:       make(map[string]*Client),
		presence:    NewPresenceStore(),
		members:     NewMembershipIndex(),
		sendTimeout: cfg.SendTimeout,
		echoTyping:  cfg.EchoTyping,
		now:         time.Now,
		logger:      zap.NewNop(),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	h.initMetrics(metrics.NewNoOpHandler(ctx))

	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("hub")

	resolver, err := newChannelResolver(lookup, cfg.ChannelCache.Size, cfg.ChannelCache.TTL)
	if err != nil {
		cancel()
		return nil, err
	}
	h.channels = resolver

	return h, nil
}

func (h *Hub) initMetrics(m metrics.Handler) {
	h.activeConns = m.Int64Gauge("xalvion.connections.active", "live websocket connections", metrics.Dimensionless)
	h.events = m.Int64Counter("xalvion.events.inbound", "inbound realtime events by type", metrics.Dimensionless)
	h.deliveries = m.Int64Counter("xalvion.deliveries", "single-recipient sends by outcome", metrics.Dimensionless)
	h.fanout = m.Int64Histogram("xalvion.broadcast.fanout", "recipients per scoped broadcast", metrics.Dimensionless)
}

// Connect registers c as its user's live connection. A previously registered
// connection for the same user is replaced and its send queue closed. The
// user's presence is reset to online.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	prev := h.conns[c.userID]
	h.conns[c.userID] = c
	h.presence.Connect(c.userID, h.now())
	count := len(h.conns)
	h.mu.Unlock()

	if prev != nil && prev != c {
		prev.closeSend()
		h.logger.Info("replaced existing connection",
			zap.String("user_id", c.userID),
			zap.String("previous_conn_id", prev.ID()),
			zap.String("conn_id", c.ID()),
		)
	}

	h.activeConns.Observe(h.ctx, int64(count), nil)
	h.logger.Info("client registered",
		zap.String("user_id", c.userID),
		zap.String("conn_id", c.ID()),
		zap.Int("total_clients", count),
	)
}

// Disconnect removes the user's connection, if any, and marks an existing
// presence record offline. Unknown users are a no-op.
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	c := h.conns[userID]
	delete(h.conns, userID)
	h.presence.Disconnect(userID, h.now())
	count := len(h.conns)
	h.mu.Unlock()

	if c != nil {
		c.closeSend()
		h.activeConns.Observe(h.ctx, int64(count), nil)
		h.logger.Info("client unregistered",
			zap.String("user_id", userID),
			zap.String("conn_id", c.ID()),
			zap.Int("total_clients", count),
		)
	}
}

// removeClient disconnects c only if it is still the user's registered
// connection. c's send queue is closed either way.
func (h *Hub) removeClient(c *Client) bool {
	h.mu.Lock()
	current := h.conns[c.userID] == c
	if current {
		delete(h.conns, c.userID)
		h.presence.Disconnect(c.userID, h.now())
	}
	count := len(h.conns)
	h.mu.Unlock()

	c.closeSend()
	if current {
		h.activeConns.Observe(h.ctx, int64(count), nil)
	}
	return current
}

// SendPersonal queues payload on the user's live connection. A connection
// that is closed or whose queue stays full past the send timeout is
// disconnected; membership is cleaned up once its read pump observes the close.
// A cancelled ctx drops the payload but keeps the connection.
func (h *Hub) SendPersonal(ctx context.Context, userID string, payload []byte) DeliveryStatus {
	status := h.sendPersonal(ctx, userID, payload)
	h.deliveries.Add(ctx, 1, map[string]string{"outcome": status.String()})
	return status
}

func (h *Hub) sendPersonal(ctx context.Context, userID string, payload []byte) DeliveryStatus {
	h.mu.RLock()
	c := h.conns[userID]
	h.mu.RUnlock()

	if c == nil {
		return DeliveryNoConnection
	}

	err := c.enqueue(ctx, payload, h.sendTimeout)
	if err == nil {
		return DeliveryDelivered
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return DeliveryDropped
	}

	if h.removeClient(c) {
		h.logger.Warn("dropping unresponsive client",
			zap.String("user_id", userID),
			zap.String("conn_id", c.ID()),
			zap.Error(err),
		)
	}
	return DeliveryDropped
}

func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID]
	return ok
}

// connectionFor returns the user's registered connection, or nil.
func (h *Hub) connectionFor(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[userID]
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Run starts the hub's lifecycle loop. It registers clients and starts their
// pumps, and runs close cleanup for clients whose read pump has ended. It
// returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}

			h.Connect(client)
			if client.conn == nil {
				continue
			}

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			// State changes happen here; user_left sends may wait on slow
			// recipients and run beside the loop.
			left := h.releaseClient(client)
			if len(left) == 0 {
				continue
			}
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.announceLeft(h.ctx, client.userID, left)
			}()
		}
	}
}

// shutdownClients closes every registered connection.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.conns))
	for _, client := range h.conns {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.closeSend()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.logger.Warn("error closing client connection",
					zap.String("user_id", client.userID),
					zap.Error(err),
				)
			}
		}
	}

	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown cancels the hub and waits for Run and every client pump to finish,
// or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
