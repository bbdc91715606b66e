package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/terra-clan/motify-engine/internal/api"
	"github.com/terra-clan/motify-engine/internal/chain"
	"github.com/terra-clan/motify-engine/internal/challenge"
	"github.com/terra-clan/motify-engine/internal/config"
	"github.com/terra-clan/motify-engine/internal/events"
	"github.com/terra-clan/motify-engine/internal/finalizer"
	"github.com/terra-clan/motify-engine/internal/metrics"
	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/oauth"
	"github.com/terra-clan/motify-engine/internal/progress"
	"github.com/terra-clan/motify-engine/internal/providers"
	"github.com/terra-clan/motify-engine/internal/storage"
	"github.com/terra-clan/motify-engine/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting motify-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database_driver", cfg.Database.Driver,
		"debug", cfg.Server.Debug,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}

	// Join locker
	var locker storage.JoinLocker = storage.NewLocalLocker()
	if cfg.Redis.Enabled {
		redisLocker, err := storage.NewRedisLocker(initCtx, storage.RedisLockerConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisLocker.Close()
		locker = redisLocker
		slog.Info("redis join locker enabled", "address", cfg.Redis.Address)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := events.NewHub()
	hub.OnDrop(m.EventDropped)

	oauthClient := oauth.NewClient(cfg.OAuth.URL, oauth.WithTimeout(cfg.OAuth.Timeout))

	// Activity providers
	registry := providers.NewRegistry(progress.NewRandomProvider())
	if cfg.GitHub.Enabled {
		github, err := providers.NewGitHubProvider(providers.GitHubConfig{
			BaseURL:   cfg.GitHub.APIURL,
			Token:     cfg.GitHub.Token,
			CacheSize: cfg.GitHub.CacheSize,
			Timeout:   cfg.GitHub.Timeout,
		}, oauthClient)
		if err != nil {
			slog.Error("failed to create github provider", "error", err)
			os.Exit(1)
		}
		registry.Register(string(models.ProviderGitHub), github)
	}
	slog.Info("activity providers registered", "providers", registry.List())

	manager := challenge.NewManager(repo, locker, progress.NewSynthesizer(registry),
		challenge.WithIDMapper(chain.NewIDMapper(cfg.Chain.IDOffset)),
		challenge.WithPublisher(hub),
		challenge.WithMetrics(m),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start finalization watcher
	watcher := finalizer.NewWatcher(manager, hub, m, cfg.Finalizer.Interval)
	if err := watcher.Start(ctx); err != nil {
		slog.Error("failed to start finalization watcher", "error", err)
		os.Exit(1)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.RateLimit, manager, oauthClient, hub, repo, m)
	go server.RateLimiter().Cleanup(ctx, time.Minute, 3*time.Minute)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // event streams are long-lived
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()
	if err := watcher.Stop(); err != nil {
		slog.Error("finalization watcher stop error", "error", err)
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("motify-engine stopped")
}

// openRepository creates the configured repository and registers the
// development API key if one is set.
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	var devClient *models.ApiClient
	if cfg.Auth.DevApiKey != "" {
		devClient = &models.ApiClient{
			Name:        "dev",
			ApiKey:      cfg.Auth.DevApiKey,
			Metadata:    map[string]string{"source": "DEV_API_KEY"},
			IsActive:    true,
			Permissions: []string{"*"},
			CreatedAt:   time.Now().UTC(),
		}
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			Schema:       cfg.Database.Schema,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
			MaxLifetime:  cfg.Database.MaxLifetime,
		})
		if err != nil {
			return nil, err
		}

		var migrationsFS fs.FS = migrations.FS
		if cfg.Database.MigrationsDir != "" {
			migrationsFS = os.DirFS(cfg.Database.MigrationsDir)
		}
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir, "schema", cfg.Database.Schema)
		if err := repo.Migrate(ctx, migrationsFS); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		if devClient != nil {
			if err := repo.UpsertClient(ctx, devClient); err != nil {
				repo.Close()
				return nil, fmt.Errorf("failed to register dev api key: %w", err)
			}
		}
		slog.Info("database connected successfully")
		return repo, nil

	default:
		now := time.Now()
		seed := storage.DefaultSeed(now)
		if cfg.Store.SeedFile != "" {
			loaded, err := storage.LoadSeedFile(cfg.Store.SeedFile, now)
			if err != nil {
				return nil, err
			}
			seed = loaded
		}
		if devClient != nil {
			seed.Clients = append(seed.Clients, devClient)
		}

		slog.Info("using in-memory repository",
			"challenges", len(seed.Challenges),
			"clients", len(seed.Clients),
			"seed_file", cfg.Store.SeedFile,
		)
		return storage.NewMemoryRepository(seed, storage.MemoryConfig{
			LatencyMin: cfg.Store.LatencyMin,
			LatencyMax: cfg.Store.LatencyMax,
		}), nil
	}
}
