package host

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/lei/pipehost/internal/api"
	"github.com/lei/pipehost/internal/config"
	"github.com/lei/pipehost/internal/controller"
	"github.com/lei/pipehost/internal/pipeline"
	"github.com/lei/pipehost/internal/transport"
	"github.com/lei/pipehost/pkg/logger"
)

// Host represents a pipeline host instance that can be embedded in applications
type Host struct {
	config *Config
	ctrl   *controller.Controller
	hub    *transport.Hub
	router http.Handler
	server *http.Server
	logger *logger.Logger
}

// Config holds the configuration for the Host
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// Run execution configuration
	Runner RunnerConfig

	// Logger configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	ReadTimeout time.Duration
	// WriteTimeout of zero means unlimited; the event stream stays open
	// for the duration of a run.
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration. An empty key list
// disables authentication.
type AuthConfig struct {
	APIKeys []APIKey
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// RunnerConfig holds run execution configuration
type RunnerConfig struct {
	// WorkDir is where runs execute and result archives land
	WorkDir string
	// MaxDownloadMiB caps inline result encoding (default 50)
	MaxDownloadMiB int64
	// Defaults are parameter values merged under every run request
	Defaults map[string]any
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// New creates a new Host instance for the given pipeline
func New(cfg *Config, pipe pipeline.Pipeline) (*Host, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pipe == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	applyDefaults(cfg)

	// Initialize logger
	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Initialize the transport hub and run controller
	hub := transport.NewHub()
	ctrl := controller.New(pipe, hub, appLogger, controller.Config{
		WorkDir:          cfg.Runner.WorkDir,
		MaxDownloadBytes: cfg.Runner.MaxDownloadMiB << 20,
		DefaultParams:    pipeline.Params(cfg.Runner.Defaults),
	})

	// Initialize API layer
	handlers := api.NewHandlers(ctrl, pipe, hub)

	// Convert APIKeys to internal config format
	configAPIKeys := make([]config.APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		configAPIKeys[i] = config.APIKey{
			Name: key.Name,
			Key:  key.Key,
		}
	}
	authMiddleware := api.NewAuthMiddleware(configAPIKeys)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	appLogger.Info("initialized pipeline host",
		"pipeline", pipe.Meta().Name,
		"port", cfg.Server.Port)

	return &Host{
		config: cfg,
		ctrl:   ctrl,
		hub:    hub,
		router: router,
		server: srv,
		logger: appLogger,
	}, nil
}

// LoadConfig reads a YAML configuration file into a host Config.
// Environment variable references in the file are expanded.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return fromInternal(cfg), nil
}

// NewFromFile creates a Host from a YAML configuration file
func NewFromFile(path string, pipe pipeline.Pipeline) (*Host, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(cfg, pipe)
}

// NewFromEnv creates a Host from environment variables. Unset variables
// keep their defaults.
func NewFromEnv(pipe pipeline.Pipeline) (*Host, error) {
	cfg := &Config{}

	if port := os.Getenv("PIPEHOST_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("parse PIPEHOST_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if dir := os.Getenv("PIPEHOST_WORK_DIR"); dir != "" {
		cfg.Runner.WorkDir = dir
	}
	if key := os.Getenv("PIPEHOST_API_KEY"); key != "" {
		cfg.Auth.APIKeys = []APIKey{{Name: "default", Key: key}}
	}
	if level := os.Getenv("PIPEHOST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PIPEHOST_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	return New(cfg, pipe)
}

// Start starts the HTTP server
// This is a blocking call that will run until the context is canceled or an error occurs
func (h *Host) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		h.logger.Info("starting http server", "port", h.config.Server.Port)
		serverErrors <- h.server.ListenAndServe()
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		h.logger.Info("shutdown signal received")

		// A run still in flight gets a cancel request on the way out
		h.ctrl.Cancel()

		// Graceful shutdown with 30s timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		h.logger.Info("server stopped gracefully")
		return nil
	}
}

// Handler returns the http.Handler for the host
// Use this to mount the host surface into an existing HTTP server
func (h *Host) Handler() http.Handler {
	return h.router
}

// Controller returns the underlying run controller
// Use this for direct programmatic access (start, cancel, poll)
func (h *Host) Controller() *controller.Controller {
	return h.ctrl
}

func fromInternal(cfg *config.Config) *Config {
	out := &Config{
		Server: ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout.Std(),
			WriteTimeout: cfg.Server.WriteTimeout.Std(),
		},
		Runner: RunnerConfig{
			WorkDir:        cfg.Runner.WorkDir,
			MaxDownloadMiB: cfg.Runner.MaxDownloadMiB,
			Defaults:       cfg.Runner.Defaults,
		},
		Logging: LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	}
	out.Auth.APIKeys = make([]APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		out.Auth.APIKeys[i] = APIKey{Name: key.Name, Key: key.Key}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Runner.MaxDownloadMiB == 0 {
		cfg.Runner.MaxDownloadMiB = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
