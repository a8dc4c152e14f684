package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sskingcobraz/Xalvion/internal/auth"
	"github.com/Sskingcobraz/Xalvion/internal/logging"
	"github.com/Sskingcobraz/Xalvion/internal/server"
	"github.com/Sskingcobraz/Xalvion/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "xalvion",
		Short:         "Xalvion chat backend: REST API and realtime websocket server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return server.BindEnv(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String(server.KeyPort, "", "listen port or address (env SERVER_PORT)")
	flags.String(server.KeyAllowedOrigins, "", "comma separated websocket/CORS origins, * for any (env ALLOWED_ORIGINS)")
	flags.String(server.KeyMaxMessageSize, "", "max inbound websocket frame in bytes (env MAX_MESSAGE_SIZE)")
	flags.String(server.KeyRateLimitBurst, "", "inbound frames allowed per refill interval (env RATE_LIMIT_BURST)")
	flags.String(server.KeyRateLimitRefillInterval, "", "rate limit refill interval (env RATE_LIMIT_REFILL_INTERVAL)")
	flags.String(server.KeySendTimeout, "", "how long a broadcast waits on a full client queue (env SEND_TIMEOUT)")
	flags.Bool(server.KeyEchoTyping, false, "echo typing indicators to their sender (env ECHO_TYPING)")
	flags.String(server.KeyChannelCacheSize, "", "channel lookup cache entries (env CHANNEL_CACHE_SIZE)")
	flags.String(server.KeyChannelCacheTTL, "", "channel lookup cache TTL (env CHANNEL_CACHE_TTL)")
	flags.String(server.KeyDatabasePath, "", "SQLite database file (env DATABASE_PATH)")
	flags.String(server.KeyJWTSecret, "", "HS256 signing secret (env JWT_SECRET)")
	flags.String(server.KeyTokenTTL, "", "access token lifetime, 0 for no expiry (env TOKEN_TTL)")
	flags.String(server.KeyLogLevel, "", "log level (env LOG_LEVEL)")
	flags.String(server.KeyLogFormat, "", "log format: json or console (env LOG_FORMAT)")
	flags.String(server.KeyLogOutput, "", "comma separated log sinks: stderr, stdout or file paths (env LOG_OUTPUT)")
	flags.String(server.KeyOTLPEndpoint, "", "OTLP/gRPC metrics collector (env OTEL_EXPORTER_OTLP_ENDPOINT)")

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg := server.NewConfigFromViper(v)

	ctx, err := logging.Init(ctx,
		logging.WithLogLevel(cfg.LogLevel),
		logging.WithLogFormat(cfg.LogFormat),
		logging.WithOutputPaths(cfg.LogOutput),
	)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	l := ctxzap.Extract(ctx)
	defer func() { _ = l.Sync() }()

	if cfg.JWTSecret == "" {
		return errors.New("a JWT secret is required (--jwt-secret or JWT_SECRET)")
	}

	server.SetConfig(cfg)
	active := server.CurrentConfig()
	l.Info("starting Xalvion server",
		zap.String("addr", active.Port),
		zap.Strings("allowed_origins", active.AllowedOrigins),
		zap.Duration("send_timeout", active.SendTimeout),
		zap.Bool("echo_typing", active.EchoTyping),
	)

	st, err := store.Open(ctx, active.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Warn("error closing store", zap.Error(err))
		}
	}()

	issuer, err := auth.NewIssuer(active.JWTSecret, active.TokenTTL)
	if err != nil {
		return err
	}

	mh, shutdownMetrics, err := newMetricsHandler(ctx, active.OTLPEndpoint)
	if err != nil {
		return err
	}

	// Tag every series and hub log line with this process instance.
	instanceID := ksuid.New().String()
	hub, err := server.NewHub(st,
		server.WithLogger(l.With(zap.String("instance", instanceID))),
		server.WithMetrics(mh.WithTags(map[string]string{"instance": instanceID})),
	)
	if err != nil {
		return err
	}

	api := server.NewAPI(st, issuer, hub)
	httpServer := server.CreateServer(active.Port, server.SetupRoutes(hub, api, l))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return server.StartServer(gctx, httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutdown signal received")
		return errors.Join(
			server.ShutdownServer(gctx, httpServer, shutdownTimeout),
			hub.Shutdown(shutdownTimeout),
			shutdownMetrics(context.WithoutCancel(gctx)),
		)
	})

	return g.Wait()
}
