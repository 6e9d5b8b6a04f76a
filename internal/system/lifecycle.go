package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/api/rest"
	"github.com/KevinKickass/EcoShareCore/internal/api/websocket"
	"github.com/KevinKickass/EcoShareCore/internal/config"
	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/interfaces"
	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/metrics"
	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/pairing"
	"github.com/KevinKickass/EcoShareCore/internal/settings"
	"github.com/KevinKickass/EcoShareCore/internal/storage"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	// onboardingService is the gRPC health service name of the workflow.
	onboardingService = "ecoshare.onboarding"

	statusInterval = 10 * time.Second
)

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	storage       *storage.PostgresClient // nil with the memory driver
	deviceManager *devices.Manager
	catalog       locations.Catalog
	registry      *onboarding.Registry
	settings      *settings.Service
	closePairer   func()
	wsHub         *websocket.Hub

	restServer *rest.Server
	grpcServer *grpc.Server
	health     *health.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string
	startedAt    time.Time

	cancel       context.CancelFunc
	background   sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager builds every component from cfg. Nothing listens
// until Start.
func NewLifecycleManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
		closePairer:  func() {},
	}

	floors, err := locations.LoadSeed(cfg.Catalog.SeedFile)
	if err != nil {
		return nil, err
	}

	var store devices.Store
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := lm.openPostgres(ctx, floors)
		if err != nil {
			return nil, err
		}
		lm.storage = db
		lm.catalog = db
		store = db

	default:
		catalog, err := locations.NewMemoryCatalog(floors)
		if err != nil {
			return nil, err
		}
		lm.catalog = catalog
		if cfg.Storage.SeedDevices {
			store = devices.NewSeededMemoryStore()
		} else {
			store = devices.NewMemoryStore()
		}
	}

	settingsService, err := settings.NewService(ctx, settings.NewFileStore(cfg.Settings.Path), logger)
	if err != nil {
		lm.closeStorage()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	lm.settings = settingsService

	pairer, scanner, err := lm.buildPairer()
	if err != nil {
		lm.closeStorage()
		return nil, err
	}

	lm.wsHub = websocket.NewHub(logger)
	lm.wsHub.SetStatusProvider(lm)

	lm.deviceManager = devices.NewManager(store, logger)
	lm.deviceManager.SetNotifier(lm.wsHub)
	lm.deviceManager.SetSpotTracker(lm.catalog)

	lm.registry = onboarding.NewRegistry(onboarding.Dependencies{
		Devices:  lm.deviceManager,
		Catalog:  lm.catalog,
		Pairer:   pairer,
		Scanner:  scanner,
		Defaults: settingsService,
		Notifier: lm.wsHub,
	}, onboarding.Options{
		AttemptTimeout: cfg.Pairing.AttemptTimeout,
		MaxAttempts:    cfg.Pairing.MaxAttempts,
	}, cfg.Onboarding.SessionTTL, logger)

	return lm, nil
}

func (lm *LifecycleManager) openPostgres(ctx context.Context, floors []types.Floor) (*storage.PostgresClient, error) {
	db, err := storage.NewPostgresClient(ctx, lm.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if lm.config.Storage.SeedDevices {
		n, err := db.SeedDevices(ctx, devices.SeedDevices())
		if err != nil {
			db.Close()
			return nil, err
		}
		if n > 0 {
			lm.logger.Info("Seeded devices", zap.Int("count", n))
		}
	}

	n, err := db.SeedFloors(ctx, floors)
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		lm.logger.Info("Seeded location catalog", zap.Int("floors", n))
	}

	lm.logger.Info("Database connected successfully",
		zap.String("host", lm.config.Database.Host),
		zap.String("database", lm.config.Database.Database))
	return db, nil
}

// buildPairer returns the pairer and scanner for the configured mode. The
// scanner stays simulated in MQTT mode since scanning happens on the client.
func (lm *LifecycleManager) buildPairer() (pairing.Pairer, pairing.Scanner, error) {
	cfg := lm.config.Pairing

	sim := pairing.NewSimulator(cfg.Latency)
	sim.ScanLatency = cfg.ScanLatency
	if cfg.ScanResult != "" {
		sim.ScanResult = cfg.ScanResult
	}
	sim.RejectPrefix = cfg.RejectPrefix
	sim.Reject(cfg.RejectIDs...)

	if cfg.Mode != "mqtt" {
		return sim, sim, nil
	}

	mqttPairer, err := pairing.NewMQTTPairer(lm.config.MQTT, lm.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect pairing broker: %w", err)
	}
	lm.closePairer = mqttPairer.Close
	return mqttPairer, sim, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting EcoShareCore",
		zap.String("storage_driver", lm.config.Storage.Driver),
		zap.String("pairing_mode", lm.config.Pairing.Mode))

	metrics.Init()
	lm.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	lm.runBackground(func() { lm.wsHub.Run(ctx) })
	lm.runBackground(func() { lm.registry.Run(ctx, lm.config.Onboarding.SweepInterval) })
	lm.runBackground(func() { lm.publishStatus(ctx) })

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort))

	return nil
}

func (lm *LifecycleManager) runBackground(fn func()) {
	lm.background.Add(1)
	go func() {
		defer lm.background.Done()
		fn()
	}()
}

func (lm *LifecycleManager) publishStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lm.wsHub.PublishStatus()
		}
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. Open sessions; outstanding pairing attempts are abandoned
	lm.registry.Shutdown()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	case err = <-errChan:
	}

	// 4. Background loops (hub, sweeper, status), then outbound connections
	if lm.cancel != nil {
		lm.cancel()
	}
	lm.background.Wait()
	lm.closePairer()
	lm.closeStorage()

	return err
}

func (lm *LifecycleManager) closeStorage() {
	if lm.storage != nil {
		lm.storage.Close()
	}
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	lm.health = health.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)
	reflection.Register(lm.grpcServer)
	lm.syncHealth(lm.State())

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
	if state != StateError {
		lm.lastError = ""
	}
	lm.stateMu.Unlock()

	lm.syncHealth(state)
	lm.wsHub.PublishStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)

	lm.stateMu.Lock()
	lm.lastError = err.Error()
	lm.stateMu.Unlock()
}

func (lm *LifecycleManager) syncHealth(state SystemState) {
	if lm.health == nil {
		return
	}
	status := state.ServingStatus()
	lm.health.SetServingStatus("", status)
	lm.health.SetServingStatus(onboardingService, status)
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lastError := lm.lastError
	startedAt := lm.startedAt
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:              state.String(),
		Error:              lastError,
		StorageDriver:      lm.config.Storage.Driver,
		PairingMode:        lm.config.Pairing.Mode,
		OnboardingSessions: lm.registry.Count(),
		ConnectedClients:   lm.wsHub.GetClientCount(),
	}
	if !startedAt.IsZero() {
		status.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if list, err := lm.deviceManager.List(ctx, types.DeviceFilter{}); err == nil {
		status.DeviceCount = len(list)
	}
	status.StorageOK = lm.storage == nil || lm.storage.Ping(ctx) == nil

	return status
}

// GetStatus feeds the WebSocket status stream.
func (lm *LifecycleManager) GetStatus() any {
	return lm.GetCurrentStatus()
}

// DeviceManager returns the device manager
func (lm *LifecycleManager) DeviceManager() *devices.Manager {
	return lm.deviceManager
}

func (lm *LifecycleManager) Catalog() locations.Catalog {
	return lm.catalog
}

func (lm *LifecycleManager) Onboarding() *onboarding.Registry {
	return lm.registry
}

func (lm *LifecycleManager) Settings() *settings.Service {
	return lm.settings
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
