// Package sandbox is a local stand-in for the signing service. It accepts
// envelopes over HTTP, validates them, keeps them in memory and can be told
// to fail, so the send path can be exercised end to end.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kingrea/countersign/internal/workflow"
)

// ProtocolVersion identifies the sandbox contract version exposed via /health.
const ProtocolVersion = "1.0.0"

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// Logger records sandbox activity.
type Logger interface {
	Printf(format string, args ...any)
}

// Server wraps the HTTP listener and handlers backing the sandbox.
type Server struct {
	settings Settings
	store    *Store
	logger   Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithStore shares a store with the caller.
func WithStore(store *Store) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a sandbox server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings = settings.normalized()
	s := &Server{
		settings: settings,
		store:    NewStore(),
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if settings.FailNext > 0 {
		s.store.FailNext(settings.FailNext, settings.FailStatus)
	}
	return s
}

// Store exposes the envelope store.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Head("/health", s.handleHealth)
	r.Route("/envelopes", func(api chi.Router) {
		api.Post("/", s.handleSubmit)
		api.Get("/", s.handleList)
		api.Get("/{envelope_id}", s.handleGet)
	})
	r.Post("/admin/fail", s.handleFail)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	return r
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sandbox: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("sandbox: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sandbox: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: headerTimeout,
		WriteTimeout:      s.settings.writeTimeout(),
		IdleTimeout:       idleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("sandbox: serve error: %v", err)
		}
	}()
	s.logger.Printf("sandbox: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		Envelopes:     s.store.Len(),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty body"})
		return
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read body"})
		return
	}
	var env workflow.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if err := env.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if s.settings.Latency > 0 {
		select {
		case <-time.After(s.settings.Latency):
		case <-r.Context().Done():
			return
		}
	}
	if status, fail := s.store.takeFailure(); fail {
		s.logger.Printf("sandbox: simulated failure %d for session %s", status, env.SessionID)
		writeJSON(w, status, errorResponse{Error: "simulated failure"})
		return
	}
	rec := s.store.Add(env, strings.TrimSpace(r.Header.Get("X-Request-ID")), s.now())
	s.logger.Printf("sandbox: accepted %s (%q, %d signer(s))", rec.ID, env.Document.Name, len(env.Signers))
	writeJSON(w, http.StatusCreated, submitResponse{ID: rec.ID, RequestID: rec.RequestID, ReceivedAt: rec.ReceivedAt})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records := s.store.List(strings.TrimSpace(r.URL.Query().Get("signer")))
	writeJSON(w, http.StatusOK, listResponse{Envelopes: records})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(chi.URLParam(r, "envelope_id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "envelope not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	count := 1
	if v := r.URL.Query().Get("count"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "count must be a non-negative integer"})
			return
		}
		count = parsed
	}
	status := http.StatusInternalServerError
	if v := r.URL.Query().Get("status"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 400 || parsed > 599 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "status must be 4xx or 5xx"})
			return
		}
		status = parsed
	}
	s.store.FailNext(count, status)
	writeJSON(w, http.StatusOK, map[string]int{"fail_next": count, "status": status})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Envelopes     int    `json:"envelopes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type submitResponse struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type listResponse struct {
	Envelopes []Record `json:"envelopes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
