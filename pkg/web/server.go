package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"jeev/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// HandlerFunc resolves the HTTP handler a unit registered, or nil.
type HandlerFunc func(unit string) http.Handler

// StatusSource reports host state for the health endpoints.
type StatusSource interface {
	Status() Status
	Ready() bool
}

// Status is the JSON body of /healthz and /readyz.
type Status struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Adapter       string   `json:"adapter"`
	AdapterUp     bool     `json:"adapter_running"`
	AdapterError  string   `json:"adapter_error,omitempty"`
	Units         []string `json:"units"`
}

type Server struct {
	cfg      config.WebConfig
	log      *slog.Logger
	handlers HandlerFunc
	status   StatusSource

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewServer(cfg config.WebConfig, handlers HandlerFunc, status StatusSource, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = config.DefaultWebHost
	}
	if cfg.Port < 0 {
		cfg.Port = config.DefaultWebPort
	}

	return &Server{
		cfg:      cfg,
		log:      log.With("component", "web.server"),
		handlers: handlers,
		status:   status,
	}
}

// Handler returns the router. /healthz and /readyz win over unit routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("/{unit}", s.handleUnit)
	mux.HandleFunc("/{unit}/{rest...}", s.handleUnit)
	return mux
}

// Start binds the listener and serves in the background until ctx ends or
// Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("web server is already running")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	s.server = server
	s.listener = listener
	s.done = done

	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Web server stopped", "error", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Shutdown()
		case <-done:
		}
	}()

	s.log.Info("Web server started", "address", listener.Addr().String())
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown() error {
	s.mu.Lock()
	server, done := s.server, s.done
	s.server, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	if server == nil {
		return errors.New("web server is not running")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	<-done
	if err != nil {
		return fmt.Errorf("shutdown web server: %w", err)
	}
	return nil
}

func (s *Server) handleUnit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("unit")

	var handler http.Handler
	if s.handlers != nil {
		handler = s.handlers(name)
	}
	if handler == nil {
		http.NotFound(w, r)
		return
	}

	handler.ServeHTTP(w, stripUnit(r, name))
}

// stripUnit returns a shallow copy of r addressed relative to the unit.
func stripUnit(r *http.Request, name string) *http.Request {
	rest := strings.TrimPrefix(r.URL.Path, "/"+name)
	if rest == "" {
		rest = "/"
	}

	stripped := new(http.Request)
	*stripped = *r
	stripped.URL = new(url.URL)
	*stripped.URL = *r.URL
	stripped.URL.Path = rest
	stripped.URL.RawPath = ""
	return stripped
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if s.status == nil || !s.status.Ready() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Server) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := Status{}
	if s.status != nil {
		payload = s.status.Status()
	}
	payload.Status = status
	if payload.Units == nil {
		payload.Units = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}
