// Package server provides HTTP server setup and graceful shutdown for
// spotfi-cloud's public surface: the captive-portal UAM endpoints and the
// operator x-tunnel/admin API, both registered on the same Echo instance by
// cmd/spotfi-cloud. It separates server lifecycle from the application-level
// wiring in cmd/spotfi-cloud/run.go.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080" or "0.0.0.0:8080".
	Addr string

	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration
}

// DefaultConfig returns sane server timeouts for the given listen address.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server wraps an Echo instance with lifecycle management.
type Server struct {
	Echo   *echo.Echo
	Config Config
}

// New creates a new server with the given configuration.
func New(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Server.IdleTimeout = cfg.IdleTimeout

	return &Server{Echo: e, Config: cfg}
}

// Start starts the server and blocks until shutdown.
// The shutdownFn is called during graceful shutdown to clean up resources.
func (s *Server) Start(shutdownFn func(ctx context.Context)) {
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Server is shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Run application-level cleanup first
		if shutdownFn != nil {
			shutdownFn(ctx)
		}

		if err := s.Echo.Shutdown(ctx); err != nil {
			log.Fatalf("Could not gracefully shutdown: %v\n", err)
		}
		close(done)
	}()

	if err := s.Echo.Start(s.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Could not listen on %s: %v\n", s.Config.Addr, err)
	}

	<-done
	log.Println("Server stopped")
}

// dialableAddr rewrites a bind address like ":8080" (valid for net.Listen,
// not for net.Dial) to "localhost:8080".
func dialableAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// PerformHealthCheck performs an HTTP health check against the server and exits.
// Invoked via `spotfi-cloud --healthcheck`, the entry point Docker's
// HEALTHCHECK directive execs against the running container.
func PerformHealthCheck(addr string) {
	log.Printf("Performing health check on %s", addr)

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+dialableAddr(addr)+"/healthz", http.NoBody)
	if err != nil {
		log.Printf("Health check failed: %v", err)
		os.Exit(1)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("Health check failed: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	//nolint:gocritic // health check exits after defer cleanup
	if resp.StatusCode == http.StatusOK {
		log.Println("Health check passed")
		os.Exit(0)
	}

	log.Printf("Health check failed with status: %d", resp.StatusCode)
	os.Exit(1)
}
