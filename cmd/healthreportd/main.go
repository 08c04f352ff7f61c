package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/health-report-parser/internal/app"
	"github.com/joseph-ayodele/health-report-parser/internal/async"
	"github.com/joseph-ayodele/health-report-parser/internal/cache"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/export"
	"github.com/joseph-ayodele/health-report-parser/internal/ingest"
	"github.com/joseph-ayodele/health-report-parser/internal/repository"
	"github.com/joseph-ayodele/health-report-parser/internal/server"
	"github.com/joseph-ayodele/health-report-parser/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "healthreportd",
		Short:        "Health report parsing daemon",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dbHealthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*common.Config, *slog.Logger, error) {
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := common.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parser over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			watchDirs, _ := cmd.Flags().GetStringSlice("watch")
			return serve(cmd.Context(), cfg, logger, watchDirs)
		},
	}
	cmd.Flags().StringSlice("watch", nil, "directories whose new reports are queued automatically")
	return cmd
}

func serve(ctx context.Context, cfg *common.Config, logger *slog.Logger, watchDirs []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, version, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("otel.shutdown.failed", "error", err)
		}
	}()

	db, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	logger.Info("db.ready", "driver", db.Dialect())

	p, err := app.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	parser, closeCache, err := withCache(ctx, cfg, p, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	jobs := repository.NewReportJobRepository(db, logger)
	queue := async.NewParserQueue(parser, jobs, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	loader := ingest.NewLoader(cfg.Pipeline.MaxFileSize, logger)

	if len(watchDirs) > 0 {
		if err := watch(ctx, loader, queue, watchDirs, logger); err != nil {
			return err
		}
	}

	svc := server.NewParserService(parser, loader, queue, jobs, export.NewService(jobs, logger), logger)
	grpcServer, hs := server.NewGRPCServer(svc, logger)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()
	logger.Info("grpc.serving", "addr", lis.Addr().String())

	select {
	case err := <-serveErr:
		return fmt.Errorf("grpc serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hs.Shutdown()
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ProcessTimeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	return nil
}

// withCache wraps p in the redis report cache when REDIS_ADDR is set.
func withCache(ctx context.Context, cfg *common.Config, p cache.Parser, logger *slog.Logger) (cache.Parser, func(), error) {
	if cfg.Cache.RedisAddr == "" {
		return p, func() {}, nil
	}
	store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:        cfg.Cache.RedisAddr,
		Password:    cfg.Cache.RedisPassword,
		DB:          cfg.Cache.RedisDB,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	ns, err := app.CacheNamespace(cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	logger.Info("cache.ready", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL.String(), "namespace", ns)
	return cache.NewCachingParser(p, store,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithNamespace(ns),
		cache.WithLogger(logger),
	), func() { _ = store.Close() }, nil
}

// watch queues every supported file that appears under dirs.
func watch(ctx context.Context, loader *ingest.Loader, queue *async.ParserQueue, dirs []string, logger *slog.Logger) error {
	events, errs, err := loader.Watch(ctx, ingest.WatchConfig{Roots: dirs, SkipHidden: true})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	logger.Info("watch.started", "dirs", dirs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				logger.Warn("watch.error", "error", err)
			case path, ok := <-events:
				if !ok {
					return
				}
				doc, err := loader.LoadFile(path)
				if err != nil {
					logger.Warn("watch.load.failed", "path", path, "error", err)
					continue
				}
				id, err := queue.Submit(ctx, doc)
				if errors.Is(err, async.ErrQueueClosed) {
					return
				}
				if err != nil {
					logger.Error("watch.submit.failed", "path", path, "error", err)
					continue
				}
				logger.Info("watch.submitted", "path", path, "job_id", id)
			}
		}
	}()
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the job tables if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := app.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			db.Close()
			logger.Info("migrate.ok", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func dbHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			timeout, _ := cmd.Flags().GetDuration("timeout")
			db, err := repository.Open(cmd.Context(), repository.Config{
				Driver:      cfg.Database.Driver,
				DSN:         cfg.Database.DSN,
				MaxConns:    1,
				DialTimeout: timeout,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.HealthCheck(cmd.Context(), timeout); err != nil {
				return fmt.Errorf("db health: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "db ok")
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 3*time.Second, "health check timeout")
	return cmd
}
