package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/forum-client/internal/config"
	"github.com/Sternrassler/forum-client/internal/tools"
	"github.com/Sternrassler/forum-client/pkg/client"
	"github.com/Sternrassler/forum-client/pkg/forum"
	"github.com/Sternrassler/forum-client/pkg/logging"
	"github.com/Sternrassler/forum-client/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run the MCP server over stdio (default), SSE or streamable HTTP.

HTTP transports also serve /health, /ready and /metrics. When NITAN_TOKEN is
set, MCP requests must carry "Authorization: Bearer <token>".

SIGINT or SIGTERM shuts the server down gracefully.`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	f.String("transport", "", "stdio, sse or streamable-http")
	f.String("host", "", "listen host for HTTP transports")
	f.Int("port", 0, "listen port for HTTP transports")
	f.String("log-level", "", "debug, info, warn, error or off")
	f.Bool("write", false, "enable create_topic and create_post")
}

// flagBindings maps serve flags to config keys.
var flagBindings = map[string]string{
	"transport": "server.transport",
	"host":      "server.host",
	"port":      "server.port",
	"log-level": "logging.level",
	"write":     "forum.write_enabled",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagBindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := openRedis(ctx, cfg.Cache.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info().Str("addr", rdb.Options().Addr).Msg("Connected to Redis")
	}

	c, err := client.New(clientConfig(cfg, rdb, &logger))
	if err != nil {
		return fmt.Errorf("create forum client: %w", err)
	}
	defer c.Close()

	if err := bootstrap(ctx, c.Session(), cfg.Auth, logger); err != nil {
		return err
	}

	f := forum.New(c, forum.Options{
		WriteEnabled: cfg.Forum.WriteEnabled,
		MaxPages:     cfg.Forum.MaxPages,
		Concurrency:  cfg.Forum.Concurrency,
		Logger:       &logger,
	})
	srv := tools.NewServer(f, version, logger)

	logger.Info().
		Str("version", version).
		Str("forum", cfg.Forum.BaseURL).
		Str("transport", cfg.Server.Transport).
		Bool("write_enabled", cfg.Forum.WriteEnabled).
		Int("tools", len(srv.Tools())).
		Msg("Starting MCP server")

	if cfg.Server.Transport == config.TransportStdio {
		return serveStdio(ctx, srv.MCPServer(), logger)
	}
	return serveHTTP(ctx, cfg.Server, srv.MCPServer(), rdb, logger)
}

// openRedis connects to rawURL, or returns nil when it is empty.
func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func clientConfig(cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) client.Config {
	cc := client.DefaultConfig(cfg.Forum.BaseURL)
	if cfg.Forum.UserAgent != "" {
		cc.UserAgent = cfg.Forum.UserAgent
	}
	cc.Timeout = cfg.Forum.Timeout
	cc.RequestsPerSecond = cfg.Forum.RequestsPerSecond

	cc.Retry.MaxAttempts = cfg.Retry.MaxAttempts
	cc.Retry.BaseDelay = cfg.Retry.BaseDelay
	cc.Retry.MaxDelay = cfg.Retry.MaxDelay
	cc.Retry.JitterRatio = cfg.Retry.Jitter

	cc.Redis = rdb
	cc.CacheTTL = cfg.Cache.TTL
	cc.DisableCache = cfg.Cache.Disabled
	cc.Logger = logger
	return cc
}

// bootstrap authenticates with the configured credentials. A failed login
// leaves the server anonymous; the login tool can retry. Incomplete
// credentials are a configuration error.
func bootstrap(ctx context.Context, m *session.Manager, auth config.AuthConfig, logger zerolog.Logger) error {
	err := session.Bootstrap(ctx, m,
		session.PasswordStrategy{
			Username:     auth.Username,
			Password:     auth.Password,
			SecondFactor: auth.SecondFactor,
		},
		session.APIKeyStrategy{
			Key:      auth.APIKey,
			ClientID: auth.ClientID,
		},
	)
	switch {
	case err == nil:
		st := m.Status()
		logger.Info().Str("state", st.State.String()).Str("username", st.Identity.Username).Msg("Session ready")
		return nil
	case errors.Is(err, session.ErrPartialCredentials):
		return fmt.Errorf("auth config: %w", err)
	default:
		logger.Warn().Err(err).Msg("Startup login failed, continuing anonymously")
		return nil
	}
}

func serveStdio(ctx context.Context, s *server.MCPServer, logger zerolog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(stdlog.New(logger, "", 0))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info().Msg("Stdio server stopped")
	return nil
}

// mcpHTTPServer is implemented by the SSE and streamable HTTP servers.
type mcpHTTPServer interface {
	http.Handler
	Shutdown(ctx context.Context) error
}

func mcpRoutes(transport string, s *server.MCPServer) (mcpHTTPServer, map[string]http.Handler) {
	if transport == config.TransportSSE {
		sse := server.NewSSEServer(s)
		return sse, map[string]http.Handler{"/sse": sse, "/message": sse}
	}
	h := server.NewStreamableHTTPServer(s)
	return h, map[string]http.Handler{"/mcp": h}
}

func serveHTTP(ctx context.Context, cfg config.ServerConfig, s *server.MCPServer, rdb *redis.Client, logger zerolog.Logger) error {
	mcpSrv, routes := mcpRoutes(cfg.Transport, s)

	var ready pinger
	if rdb != nil {
		ready = rdb
	}
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newMux(routes, cfg.Token, ready, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Bool("token_required", cfg.Token != "").
			Msg("Listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("MCP transport shutdown")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info().Msg("Server stopped gracefully")
	return nil
}
