// Package web serves the observer websocket and the small HTTP surface
// around it.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"home-security/internal/application"
)

const maxFrameSize = 4096

type Config struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	WriteTimeout   time.Duration
}

// BusStateFunc reports the current bus connection state for /health.
type BusStateFunc func() string

type Server struct {
	cfg         Config
	hub         *application.Hub
	states      application.DeviceStates
	busState    BusStateFunc
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
}

func NewServer(
	cfg Config,
	hub *application.Hub,
	states application.DeviceStates,
	busState BusStateFunc,
	metrics http.Handler,
	logger *slog.Logger,
) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	s := &Server{
		cfg:         cfg,
		hub:         hub,
		states:      states,
		busState:    busState,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}

	s.mux.HandleFunc("GET /ws", s.rateLimiter.Middleware(s.handleWS))
	s.mux.HandleFunc("GET /devices", s.rateLimiter.Middleware(s.handleDevices))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr is the bound address once Start returned, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	// No read or write timeout: they would apply to hijacked websocket
	// connections too. Frames carry their own deadlines.
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.listener = ln

	go func() {
		s.logger.Info("HTTP server starting", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameSize)

	id := uuid.NewString()
	obs := s.hub.Connect(id)
	defer s.hub.Disconnect(obs)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		s.readPump(ctx, conn, id)
	}()

	s.writePump(ctx, conn, obs)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, id string) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.logger.Debug("websocket read ended", "observer_id", id, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.hub.Reject(id, "expected a JSON text frame")
			continue
		}

		var msg application.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.Reject(id, "malformed frame")
			continue
		}

		switch {
		case msg.Type != application.InboundUtterance:
			s.hub.Reject(id, fmt.Sprintf("unsupported frame type %q", msg.Type))
		case msg.Text == "":
			s.hub.Reject(id, "empty utterance")
		default:
			s.hub.HandleUtterance(ctx, id, msg.Text)
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, obs *application.Observer) {
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-obs.Events():
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "observer dropped")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "observer_id", obs.ID(), "error", err)
				return
			}
		}
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(application.DeviceViews(s.states.Snapshot())); err != nil {
		s.logger.Error("encoding devices", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	bus := "unknown"
	if s.busState != nil {
		bus = s.busState()
	}

	status := "ok"
	if bus != "connected" {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"%s","bus":"%s","observers":%d}`, status, bus, s.hub.ObserverCount())
}
