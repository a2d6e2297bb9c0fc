// Command admind serves the admin protocol over WebSocket and forwards
// requests to cluster processes over NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
	"github.com/rickgao/clusteradmin/internal/audit"
	"github.com/rickgao/clusteradmin/internal/auth"
	"github.com/rickgao/clusteradmin/internal/bus"
	"github.com/rickgao/clusteradmin/internal/config"
	"github.com/rickgao/clusteradmin/internal/connection"
	"github.com/rickgao/clusteradmin/internal/database"
	"github.com/rickgao/clusteradmin/internal/metrics"
	"github.com/rickgao/clusteradmin/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/admind.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("admind failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting admind", append(version.LogAttrs(), "config", configPath)...)
	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"node", cfg.Instance.Node.Name,
		"nats_url", cfg.Backend.NATSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	metrics.Register()

	// Connect to the backend bus
	nb := bus.NewNATS(bus.NATSConfig{
		URL:            cfg.Backend.NATSURL,
		SubjectPrefix:  cfg.Backend.SubjectPrefix,
		Instance:       cfg.Instance.ID,
		RequestTimeout: cfg.Backend.RequestTimeout,
		ConnectTimeout: cfg.Backend.ConnectTimeout,
		Logger:         logger.With("component", "bus"),
	}, admin.WireCodec{})
	if err := nb.Connect(ctx); err != nil {
		return err
	}
	defer nb.Close()

	// Optional signature verification
	var verifier *auth.Verifier
	if cfg.Server.Auth.Enabled {
		pub, err := auth.LoadPublicKey(cfg.Server.Auth.PublicKeyPath)
		if err != nil {
			return fmt.Errorf("load auth public key: %w", err)
		}
		verifier = auth.NewVerifier(pub, cfg.Server.Auth.MaxSkew)
		logger.Info("request signature verification enabled", "max_skew", cfg.Server.Auth.MaxSkew)
	}

	// Optional audit trail
	var sink audit.Sink = audit.Discard
	var auditDB pinger
	if cfg.Audit.Enabled {
		logger.Info("connecting to audit database",
			"host", cfg.Audit.Database.Host,
			"port", cfg.Audit.Database.Port,
			"database", cfg.Audit.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Audit.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := audit.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}

		writer := audit.NewWriter(audit.WriterConfig{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferSize:    cfg.Audit.BufferSize,
		}, pool, logger.With("component", "audit"))
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start audit writer: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			writer.Stop(stopCtx)
			logger.Info("audit writer summary", "stats", writer.Stats())
		}()

		sink = writer
		auditDB = pool
	}

	// Admin WebSocket server
	adminServer := connection.NewServer(connection.ServerConfig{
		Instance:     cfg.Instance.ID,
		Node:         actor.NodeID{Name: cfg.Instance.Node.Name, Addr: cfg.Instance.Node.Addr},
		PingInterval: cfg.Server.PingInterval,
		PongTimeout:  cfg.Server.PongTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadLimit:    cfg.Server.ReadLimit,
		MailboxSize:  cfg.Server.MailboxSize,
	}, nb, verifier, sink, logger.With("component", "admin_server"))

	adminMux := http.NewServeMux()
	adminMux.Handle(cfg.Server.Path, adminServer)
	adminHTTP := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(nb, adminServer, auditDB, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := healthHTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting admin server",
			"listen_addr", cfg.Server.ListenAddr,
			"path", cfg.Server.Path,
			"owner", adminServer.Owner().String(),
		)
		if err := adminHTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Wait for shutdown
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		// Stop accepting upgrades before closing open connections
		if err := adminHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin http shutdown", "error", err)
		}
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown", "error", err)
		}
		if err := healthHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown", "error", err)
		}
		return nil
	})

	logger.Info("admind running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()

	st := adminServer.Stats()
	logger.Info("admind stopped",
		"accepted", st.Accepted,
		"rejected", st.Rejected,
		"bus", nb.Stats(),
	)
	return err
}

// parseLevel maps a config log level to slog. Unknown levels mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
