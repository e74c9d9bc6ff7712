package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/narevent/REA/engine"
	"github.com/narevent/REA/logging"
)

// Config describes the HTTP listener and the engine every connection gets
type Config struct {
	Addr           string        `json:"addr"`
	AllowedOrigins []string      `json:"allowed_origins"`
	Engine         engine.Config `json:"engine"`

	// ReadLimit caps one binary message; zero allows four capture buffers of float32
	ReadLimit       int64         `json:"read_limit"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig listens on :8080 and accepts any origin
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		AllowedOrigins:  []string{"*"},
		Engine:          engine.DefaultConfig(),
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server streams pitch events over websockets. Each connection owns one Engine; every
// binary message is a capture buffer of little-endian float32 samples.
type Server struct {
	config   Config
	router   *mux.Router
	handler  http.Handler
	upgrader websocket.Upgrader
	logger   logging.Logger

	active atomic.Int64

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New validates the engine configuration and builds the routes. A configuration that
// cannot produce an engine is rejected here rather than on the first connection.
func New(config Config) (*Server, error) {
	if _, err := engine.New(config.Engine); err != nil {
		return nil, err
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = int64(config.Engine.CaptureSize) * 4 * 4
	}

	s := &Server{
		config: config,
		conns:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// origins are enforced by the cors handler
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.WithFields(logging.Fields{
			"component": "server",
		}),
	}

	s.router = mux.NewRouter().StrictSlash(true)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/pitch", s.handlePitch).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)

	return s, nil
}

// Handler returns the routed, CORS-wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Active returns the number of open pitch connections
func (s *Server) Active() int64 {
	return s.active.Load()
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully and
// closes any open websocket sessions
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// hijacked websocket connections are not tracked by Shutdown
	srv.RegisterOnShutdown(s.closeConnections)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("Server listening", logging.Fields{
		"addr":         ln.Addr().String(),
		"sample_rate":  s.config.Engine.SampleRate,
		"capture_size": s.config.Engine.CaptureSize,
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.active.Add(1)
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.active.Add(-1)
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int64  `json:"connections"`
	SampleRate  int    `json:"sample_rate"`
	CaptureSize int    `json:"capture_size"`
	WindowSize  int    `json:"window_size"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Connections: s.active.Load(),
		SampleRate:  s.config.Engine.SampleRate,
		CaptureSize: s.config.Engine.CaptureSize,
		WindowSize:  s.config.Engine.WindowSize,
	})
}
