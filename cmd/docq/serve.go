package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/config"
	"github.com/alfredjeanlab/docq/internal/events"
	"github.com/alfredjeanlab/docq/internal/idgen"
	"github.com/alfredjeanlab/docq/internal/pipeline"
	"github.com/alfredjeanlab/docq/internal/query"
	"github.com/alfredjeanlab/docq/internal/server"
	"github.com/alfredjeanlab/docq/internal/store/postgres"
	docqsync "github.com/alfredjeanlab/docq/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the docq HTTP and gRPC servers",
	GroupID:           "system",
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (DOCQ_NATS_URL not set)")
		}

		resolver := auth.NewResolver(cfg.JWTSecret, cfg.AuthToken)
		if !resolver.Enabled() {
			logger.Warn("authentication disabled; every request acts as the service principal")
		}

		ledger := pipeline.DefaultLedger()
		ledger.Collections = cfg.LedgerCollections

		srv := server.New(store, server.Options{
			Publisher:  publisher,
			Resolver:   resolver,
			Quota:      server.PlanQuota{Limits: cfg.PlanLimits, OwnerField: cfg.OwnerField},
			Limiter:    server.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
			Logger:     logger,
			OwnerField: cfg.OwnerField,
			Mode:       query.ParseMode(cfg.QueryMode),
			Ledger:     ledger,
			IDs:        idgen.New(cfg.IDPrefix, idgen.DefaultLength),
		})
		grpcServer := server.NewGRPCServer(srv)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			store.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startSync(cmd.Context(), cfg, store, logger)

		logger.Info("docq server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"query_mode", query.ParseMode(cfg.QueryMode).String(),
			"owner_field", cfg.OwnerField,
			"ledger_collections", cfg.LedgerCollections,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

// startSync starts the registry backup scheduler when an interval and at
// least one destination are configured.
func startSync(ctx context.Context, cfg *config.Config, store *postgres.PostgresStore, logger *slog.Logger) *docqsync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []docqsync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := docqsync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, docqsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	if len(dests) == 0 {
		return nil
	}
	scheduler := docqsync.NewScheduler(store, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}

// newLogger builds the server logger. format is "text" or "json"; level is
// any slog level name.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("DOCQ_LOG_LEVEL: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("DOCQ_LOG_FORMAT: unknown format %q (want text or json)", format)
	}
}
