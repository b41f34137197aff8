package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"go-events-query/internal/cache/l1"
	"go-events-query/internal/cache/l2"
	"go-events-query/internal/cache/multi"
	"go-events-query/internal/cache/noop"
	"go-events-query/internal/config"
	"go-events-query/internal/events"
	"go-events-query/internal/gateway"
	"go-events-query/internal/httpserver"
	"go-events-query/internal/interfaces"
	"go-events-query/internal/query"
)

// CompositionRoot holds all application dependencies and is the single
// place where they are created, wired and released.
type CompositionRoot struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger

	// Snapshot stores
	L1Store       interfaces.SnapshotStore
	L2Store       interfaces.SnapshotStore
	SnapshotStore *multi.MultiStore

	// Services
	QueryClient   *query.Client
	Gateway       *gateway.Client
	EventsService *events.Service
	HTTPServer    *httpserver.Server
}

// NewCompositionRoot creates and initializes all application dependencies.
//
// Initialization order:
// 1. Logger (needed by all other components)
// 2. Configuration
// 3. Snapshot stores (L1, L2)
// 4. Query client, gateway and events service
// 5. HTTP Server
func NewCompositionRoot() (*CompositionRoot, error) {
	root := &CompositionRoot{}

	if err := root.initLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := root.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := root.initSnapshotStores(); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot stores: %w", err)
	}

	root.initServices()
	root.initHTTPServer()

	return root, nil
}

// initLogger initializes the application logger
func (r *CompositionRoot) initLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	r.Logger = logger
	return nil
}

// loadConfig loads .env, then the YAML configuration. A missing config file
// means running on defaults and environment overrides.
func (r *CompositionRoot) loadConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.Logger.Warn("Failed to load .env file", zap.Error(err))
	}

	configPath := GetConfigPath()
	cfg, err := config.LoadConfig(configPath, r.Logger)
	if errors.Is(err, fs.ErrNotExist) {
		r.Logger.Warn("Config file not found, using defaults", zap.String("path", configPath))
		cfg = config.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}

	r.Config = cfg
	return nil
}

// initSnapshotStores initializes the persisted query snapshot tiers
func (r *CompositionRoot) initSnapshotStores() error {
	if err := r.initL1Store(); err != nil {
		return fmt.Errorf("failed to initialize L1 store: %w", err)
	}
	r.initL2Store()

	r.SnapshotStore = multi.NewMultiStore([]interfaces.SnapshotStore{r.L1Store, r.L2Store}, r.Logger)
	return nil
}

// initL1Store initializes the L1 store (BigCache)
func (r *CompositionRoot) initL1Store() error {
	if !r.Config.BigCache.Enabled {
		r.L1Store = noop.NewNoOpStore()
		r.Logger.Info("BigCache (L1) disabled")
		return nil
	}

	store, err := l1.NewBigCacheStore(&r.Config.BigCache, r.Config.Query.PersistTTL, r.Logger)
	if err != nil {
		return err
	}
	r.L1Store = store
	r.Logger.Info("BigCache (L1) initialized", zap.Int("size_mb", r.Config.BigCache.Size))
	return nil
}

// initL2Store initializes the L2 store (KeyDB), degrading to no L2 when
// KeyDB cannot be reached
func (r *CompositionRoot) initL2Store() {
	if !r.Config.KeyDB.Enabled {
		r.L2Store = noop.NewNoOpStore()
		r.Logger.Info("KeyDB (L2) disabled")
		return
	}

	redis.SetLogger(NewRedisLogger(r.Logger))
	keydbURL := GetKeyDBURL(r.Logger)

	keydbClient, err := l2.NewRedisKeyDbClient(&r.Config.KeyDB, keydbURL, r.Logger)
	if err != nil {
		r.Logger.Warn("Failed to connect to KeyDB, falling back to no L2 store",
			zap.String("keydb_url", keydbURL),
			zap.Error(err))
		r.L2Store = noop.NewNoOpStore()
		return
	}

	r.L2Store = l2.NewKeyDBStore(&r.Config.KeyDB, keydbClient, r.Logger)
	r.Logger.Info("KeyDB (L2) initialized", zap.String("keydb_url", keydbURL))
}

// initServices initializes the query client, gateway and events service
func (r *CompositionRoot) initServices() {
	r.QueryClient = query.NewClient(&r.Config.Query, r.Logger, query.WithSnapshotStore(r.SnapshotStore))
	r.Gateway = gateway.NewClient(&r.Config.Backend, r.Logger)
	r.EventsService = events.NewService(r.QueryClient, r.Gateway, &r.Config.Query, r.Logger)

	r.Logger.Info("Events service initialized",
		zap.String("backend_url", r.Config.Backend.BaseURL),
		zap.String("update_policy", string(r.Config.Query.UpdatePolicy)),
		zap.Int("snapshot_stores", r.SnapshotStore.StoreCount()))
}

// initHTTPServer initializes the HTTP server
func (r *CompositionRoot) initHTTPServer() {
	r.HTTPServer = httpserver.NewServer(r.EventsService, r.Gateway, r.Logger)
}

// Start serves on the configured Unix socket, else on the TCP address
func (r *CompositionRoot) Start() error {
	if r.Config.Server.SocketPath != "" {
		return r.HTTPServer.StartUnixSocket(r.Config.Server.SocketPath)
	}
	return r.HTTPServer.Start(r.Config.Server.ListenAddr)
}

// Cleanup performs cleanup of all resources
func (r *CompositionRoot) Cleanup() error {
	var errs []error

	if r.QueryClient != nil {
		r.QueryClient.Close()
	}

	if store, ok := r.L1Store.(*l1.BigCacheStore); ok {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L1 store: %w", err))
		}
	}

	if store, ok := r.L2Store.(*l2.KeyDBStore); ok {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L2 store: %w", err))
		}
	}

	if r.Logger != nil {
		// Sync returns EINVAL for stderr on some platforms
		_ = r.Logger.Sync()
	}

	return errors.Join(errs...)
}
