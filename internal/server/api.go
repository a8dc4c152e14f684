package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/Sskingcobraz/Xalvion/internal/auth"
	"github.com/Sskingcobraz/Xalvion/internal/store"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	maxRequestBody      = 1 << 20
)

// Store is the persistence surface the REST handlers depend on.
type Store interface {
	ChannelLookup

	CreateUser(ctx context.Context, nu store.NewUser) (*store.User, error)
	UserByID(ctx context.Context, userID string) (*store.User, error)
	UserByUsername(ctx context.Context, username string) (*store.User, error)

	CreateServer(ctx context.Context, ownerID string, ns store.NewServer) (*store.Server, error)
	ServerByID(ctx context.Context, serverID string) (*store.Server, error)
	ServersForUser(ctx context.Context, userID string) ([]store.Server, error)
	IsMember(ctx context.Context, serverID, userID string) (bool, error)

	CreateChannel(ctx context.Context, nc store.NewChannel) (*store.Channel, error)
	ChannelsForServer(ctx context.Context, serverID string) ([]store.Channel, error)
	ChannelByID(ctx context.Context, channelID string) (*store.Channel, error)

	CreateMessage(ctx context.Context, nm store.NewMessage) (*store.Message, error)
	MessageByID(ctx context.Context, messageID string) (*store.Message, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]store.Message, error)
	AddReaction(ctx context.Context, r store.Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
	Reactions(ctx context.Context, messageID string) ([]store.Reaction, error)
}

// API serves the REST surface. Writes that other members should see are
// pushed through the hub after they are persisted.
type API struct {
	store  Store
	issuer *auth.Issuer
	hub    *Hub
}

func NewAPI(st Store, issuer *auth.Issuer, hub *Hub) *API {
	return &API{store: st, issuer: issuer, hub: hub}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type authResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *store.User `json:"user"`
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createServerRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type createChannelRequest struct {
	Name        string `json:"name"`
	ServerID    string `json:"server_id"`
	ChannelType string `json:"channel_type"`
	Description string `json:"description"`
}

type createMessageRequest struct {
	Content     string   `json:"content"`
	ChannelID   string   `json:"channel_id"`
	MessageType string   `json:"message_type"`
	Attachments []string `json:"attachments"`
}

type reactionRequest struct {
	Emoji  string `json:"emoji"`
	Action string `json:"action"`
}

// ReactionUpdateData is the payload of a reaction_update event.
type ReactionUpdateData struct {
	MessageID string           `json:"message_id"`
	Reactions []store.Reaction `json:"reactions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("error writing response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeInternal logs err with the request logger and hides it from the client.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	ctxzap.Extract(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func (a *API) issueToken(w http.ResponseWriter, r *http.Request, status int, u *store.User) {
	token, err := a.issuer.Issue(u.UserID, u.Username)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{AccessToken: token, TokenType: "bearer", User: u})
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username, email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	u, err := a.store.CreateUser(r.Context(), store.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	ctxzap.Extract(r.Context()).Info("user registered", zap.String("user_id", u.UserID))
	a.issueToken(w, r, http.StatusOK, u)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := a.store.UserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeInternal(w, r, err)
		return
	}
	if u == nil || auth.VerifyPassword(u.PasswordHash, req.Password) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	a.issueToken(w, r, http.StatusOK, u)
}

// currentUser loads the authenticated user, writing the error response
// itself when that fails.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}

	u, err := a.store.UserByID(r.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		writeInternal(w, r, err)
		return nil, false
	}
	return u, true
}

// requireMember writes 403 and returns false unless userID belongs to serverID.
func (a *API) requireMember(w http.ResponseWriter, r *http.Request, serverID, userID string) bool {
	ok, err := a.store.IsMember(r.Context(), serverID, userID)
	if err != nil {
		writeInternal(w, r, err)
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) Presence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presence": a.hub.PresenceSnapshot()})
}

func (a *API) CreateServer(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var req createServerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	srv, err := a.store.CreateServer(r.Context(), u.UserID, store.NewServer{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	ctxzap.Extract(r.Context()).Info("server created",
		zap.String("server_id", srv.ServerID),
		zap.String("owner_id", u.UserID),
	)
	writeJSON(w, http.StatusOK, srv)
}

func (a *API) ListServers(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	servers, err := a.store.ServersForUser(r.Context(), u.UserID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

// GetServer returns one server to its members. Unknown servers get the same
// 403 as servers the caller is not in.
func (a *API) GetServer(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	serverID := r.PathValue("server_id")
	if !a.requireMember(w, r, serverID, u.UserID) {
		return
	}

	srv, err := a.store.ServerByID(r.Context(), serverID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Server not found")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (a *API) ListChannels(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	serverID := r.PathValue("server_id")
	if !a.requireMember(w, r, serverID, u.UserID) {
		return
	}

	channels, err := a.store.ChannelsForServer(r.Context(), serverID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (a *API) CreateChannel(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var req createChannelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.ServerID == "" {
		writeError(w, http.StatusUnprocessableEntity, "name and server_id are required")
		return
	}
	if !a.requireMember(w, r, req.ServerID, u.UserID) {
		return
	}

	ch, err := a.store.CreateChannel(r.Context(), store.NewChannel{
		ServerID:    req.ServerID,
		Name:        req.Name,
		ChannelType: req.ChannelType,
		Description: req.Description,
	})
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMessageLimit)
	}

	ch, err := a.store.ChannelByID(r.Context(), r.PathValue("channel_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if !a.requireMember(w, r, ch.ServerID, u.UserID) {
		return
	}

	messages, err := a.store.ListMessages(r.Context(), ch.ChannelID, limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (a *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var req createMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChannelID == "" || req.Content == "" {
		writeError(w, http.StatusUnprocessableEntity, "channel_id and content are required")
		return
	}

	ch, err := a.store.ChannelByID(r.Context(), req.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Channel not found")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if !a.requireMember(w, r, ch.ServerID, u.UserID) {
		return
	}

	msg, err := a.store.CreateMessage(r.Context(), store.NewMessage{
		ChannelID:         ch.ChannelID,
		AuthorID:          u.UserID,
		AuthorUsername:    u.Username,
		AuthorDisplayName: u.DisplayName,
		Content:           req.Content,
		MessageType:       req.MessageType,
		Attachments:       req.Attachments,
	})
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	outcome := a.hub.NotifyChannel(r.Context(), msg.ChannelID, Event{Type: EventNewMessage, Data: msg})
	ctxzap.Extract(r.Context()).Debug("message broadcast",
		zap.String("message_id", msg.MessageID),
		zap.Stringer("outcome", outcome),
	)
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) React(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var req reactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Emoji == "" {
		writeError(w, http.StatusUnprocessableEntity, "emoji is required")
		return
	}

	msg, err := a.store.MessageByID(r.Context(), r.PathValue("message_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	switch req.Action {
	case "add":
		err = a.store.AddReaction(r.Context(), store.Reaction{
			MessageID: msg.MessageID,
			UserID:    u.UserID,
			Username:  u.Username,
			Emoji:     req.Emoji,
		})
	case "remove":
		err = a.store.RemoveReaction(r.Context(), msg.MessageID, u.UserID, req.Emoji)
	default:
		writeError(w, http.StatusUnprocessableEntity, "action must be add or remove")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	reactions, err := a.store.Reactions(r.Context(), msg.MessageID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	a.hub.NotifyChannel(r.Context(), msg.ChannelID, Event{
		Type: EventReactionUpdate,
		Data: ReactionUpdateData{MessageID: msg.MessageID, Reactions: reactions},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "Xalvion Backend"})
}
