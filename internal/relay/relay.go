// ABOUTME: Relay orchestrator that owns the HTTP server, registry, and dispatcher
// ABOUTME: Manages route wiring, startup, and graceful shutdown lifecycle

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/compact-relay/internal/config"
	"github.com/2389/compact-relay/internal/dispatch"
	"github.com/2389/compact-relay/internal/registry"
)

// Relay coordinates the compact-relay server components: the HTTP boundary
// accepting broadcasts, the subscriber registry fed by websocket upgrades,
// and the fan-out dispatcher.
type Relay struct {
	config     *config.Config
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// New creates a new Relay instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &Relay{
		config:     cfg,
		registry:   registry.New(logger),
		dispatcher: dispatch.New(cfg.Dispatch.Timeout, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The relay carries no credentials and callers are not
			// authenticated; cross-origin upgrades are allowed.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "relay"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/broadcast", rl.handleBroadcast)
	mux.HandleFunc(cfg.Server.WSPath, rl.handleSubscribe)
	mux.HandleFunc("/health", rl.handleHealth)
	mux.HandleFunc("/health/ready", rl.handleReady)

	rl.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return rl
}

// Handler exposes the relay's HTTP handler, mainly for tests that serve it
// through httptest.
func (rl *Relay) Handler() http.Handler {
	return rl.httpServer.Handler
}

// Run starts the relay server and blocks until the context is canceled or
// the server fails. Returns nil on graceful shutdown.
func (rl *Relay) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", rl.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		rl.logger.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"ws_path", rl.config.Server.WSPath,
			"endpoints", len(rl.config.Endpoints),
		)
		if err := rl.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := rl.waitForShutdownSignal(ctx, errCh)
	shutdownErr := rl.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (rl *Relay) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		rl.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		rl.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (rl *Relay) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rl.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and closes every live
// subscriber connection.
func (rl *Relay) Shutdown(ctx context.Context) error {
	rl.logger.Info("shutting down relay")

	err := rl.httpServer.Shutdown(ctx)
	rl.registry.Close()

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (rl *Relay) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the relay is serving. The relay has no
// downstream dependency to gate readiness on; the body reports the live
// subscriber count for operators.
func (rl *Relay) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d subscribers)", rl.registry.Len())
}
