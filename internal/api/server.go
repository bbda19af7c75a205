package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/infrastructure/config"
	"github.com/nerrad567/garden-core/internal/infrastructure/logging"
	"github.com/nerrad567/garden-core/internal/payload"
	"github.com/nerrad567/garden-core/internal/provisioning"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceCommander is the slice of the gateway the HTTP layer drives.
// This avoids a concrete dependency so handlers can be tested against
// a mock without a connected bus.
type DeviceCommander interface {
	SendWaterCommand(ctx context.Context, rawMAC string, duration *int) error
	SendMeasureCommand(ctx context.Context, rawMAC string, fields []string) error
	RequestSettings(ctx context.Context, rawMAC string) (*payload.Settings, error)
	UpdateSettings(ctx context.Context, rawMAC string, snapshot *payload.Settings) error
	ResetSettings(ctx context.Context, rawMAC string) error
}

// Provisioner registers devices and issues broker credentials.
// Implemented by *provisioning.Manager.
type Provisioner interface {
	Register(ctx context.Context, rawMAC, owner string) (*provisioning.Credentials, device.TransferResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Devices      device.Repository
	Measurements device.MeasurementRepository
	Alerts       device.AlertRepository
	Gateway      DeviceCommander
	Provisioner  Provisioner
	Version      string
}

// Server is the HTTP API server for Garden Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	devices      device.Repository
	measurements device.MeasurementRepository
	alerts       device.AlertRepository
	gateway      DeviceCommander
	provisioner  Provisioner
	version      string
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, repositories, gateway)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	// Provisioner is optional; POST /provision returns 500 without it

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		devices:      deps.Devices,
		measurements: deps.Measurements,
		alerts:       deps.Alerts,
		gateway:      deps.Gateway,
		provisioner:  deps.Provisioner,
		version:      deps.Version,
	}, nil
}

// EventHub returns the WebSocket hub, creating it lazily.
//
// The hub is handed to the gateway as its event sink, so it must exist
// before Start() even though its run loop only begins then.
func (s *Server) EventHub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.EventHub().Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
