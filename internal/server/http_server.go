// Package server wraps HTTP server construction, startup, and graceful
// shutdown helpers for the Xalvion service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// CreateServer creates an HTTP server with the service's timeouts. The
// websocket upgrade clears these deadlines on hijacked connections.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer serves until the server is shut down. A clean shutdown is not
// reported as an error.
func StartServer(ctx context.Context, server *http.Server) error {
	ctxzap.Extract(ctx).Info("server listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func ShutdownServer(ctx context.Context, server *http.Server, timeout time.Duration) error {
	l := ctxzap.Extract(ctx)
	l.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	l.Info("HTTP server shutdown completed")
	return nil
}
