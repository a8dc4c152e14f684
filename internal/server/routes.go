package server

import (
	"net/http"

	"go.uber.org/zap"
)

// SetupRoutes wires the realtime endpoint, the REST API and the liveness
// pages onto one mux behind request logging and CORS.
func SetupRoutes(hub *Hub, api *API, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /test", TestPageHandler)
	mux.HandleFunc("/ws/{user_id}", WebSocketHandler(hub))

	mux.HandleFunc("GET /api/health", api.Health)
	mux.HandleFunc("POST /api/auth/register", api.Register)
	mux.HandleFunc("POST /api/auth/login", api.Login)
	mux.HandleFunc("GET /api/user/profile", requireAuth(api.issuer, api.Profile))
	mux.HandleFunc("GET /api/user/presence", api.Presence)
	mux.HandleFunc("POST /api/servers", requireAuth(api.issuer, api.CreateServer))
	mux.HandleFunc("GET /api/servers", requireAuth(api.issuer, api.ListServers))
	mux.HandleFunc("GET /api/servers/{server_id}", requireAuth(api.issuer, api.GetServer))
	mux.HandleFunc("GET /api/servers/{server_id}/channels", requireAuth(api.issuer, api.ListChannels))
	mux.HandleFunc("POST /api/channels", requireAuth(api.issuer, api.CreateChannel))
	mux.HandleFunc("GET /api/channels/{channel_id}/messages", requireAuth(api.issuer, api.ListMessages))
	mux.HandleFunc("POST /api/messages", requireAuth(api.issuer, api.CreateMessage))
	mux.HandleFunc("POST /api/messages/{message_id}/reactions", requireAuth(api.issuer, api.React))

	return withRequestLogger(logger, withCORS(mux))
}
