package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/nixxel-company-limited/zpl-bridge/router"
	"go.uber.org/zap"
)

// Dispatcher executes one named operation
type Dispatcher interface {
	Call(method string, args router.Arguments) (any, error)
}

// Options configures the HTTP front end
type Options struct {
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the defaults used when nothing is configured
func DefaultOptions() Options {
	return Options{
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// CallRequest is the body of POST /call
type CallRequest struct {
	Method    string           `json:"method"`
	Arguments router.Arguments `json:"arguments"`
}

// CallResponse carries either a result or an error
type CallResponse struct {
	Result any           `json:"result,omitempty"`
	Error  *router.Error `json:"error,omitempty"`
}

// Server represents an HTTP server that forwards method calls to a Dispatcher
type Server struct {
	dispatcher Dispatcher
	address    string
	opts       Options
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	running    bool
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// New creates a new server instance
func New(dispatcher Dispatcher, address string, opts Options) *Server {
	return NewWithLogger(dispatcher, address, opts, zap.L().Named("server"))
}

// NewWithLogger creates a new server instance with a custom logger
func NewWithLogger(dispatcher Dispatcher, address string, opts Options, logger *zap.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		address:    address,
		opts:       opts,
		logger:     logger,
	}
}

// Handler returns the HTTP handler with CORS and access logging applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/call", s.handleCall)
	mux.HandleFunc("/methods", s.handleMethods)
	mux.HandleFunc("/healthz", s.handleHealth)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	accessLog := zap.NewStdLog(s.logger.Named("access")).Writer()
	return handlers.CombinedLoggingHandler(accessLog, cors(mux))
}

// Start starts the HTTP server and blocks until Stop is called
func (s *Server) Start() error {
	if err := s.listen(); err != nil {
		return err
	}
	s.logger.Info("Ready to accept calls")
	return s.serve()
}

// StartAsync starts the HTTP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	if err := s.listen(); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.serve(); err != nil {
			s.logger.Error("Server stopped with error", zap.Error(err))
		}
	}()
	s.logger.Info("Server started in background, ready to accept calls")
	return nil
}

func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Starting server", zap.String("address", s.address))

	if s.running {
		s.logger.Error("Server already running")
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("Failed to start server", zap.Error(err))
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.running = true
	s.logger.Info("Server listening", zap.Stringer("address", listener.Addr()))
	return nil
}

func (s *Server) serve() error {
	s.mu.Lock()
	httpServer, listener := s.httpServer, s.listener
	s.mu.Unlock()

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server, letting in-flight calls finish
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Debug("Stop called but server is not running")
		return nil
	}

	s.logger.Info("Stopping server...")
	s.running = false
	httpServer := s.httpServer
	s.mu.Unlock()

	ctx := context.Background()
	if s.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()
	}

	err := httpServer.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		s.logger.Error("Error shutting down server", zap.Error(err))
		return err
	}

	s.logger.Info("Server stopped successfully")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.address
}

// ListenAddr returns the bound address, or nil when the server is not running
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := s.dispatcher.Call(req.Method, req.Arguments)
	if err != nil {
		var re *router.Error
		if !errors.As(err, &re) {
			re = &router.Error{Code: router.CodeConnection, Message: err.Error()}
		}
		writeJSON(w, statusFor(re.Code), CallResponse{Error: re})
		return
	}

	writeJSON(w, http.StatusOK, CallResponse{Result: result})
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"methods": router.Methods()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(code router.Code) int {
	switch code {
	case router.CodeMissingArgument:
		return http.StatusBadRequest
	case router.CodeUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
