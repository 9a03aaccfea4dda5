package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/service"
)

// Server represents the HTTP server
type Server struct {
	handler *Handler
	server  *http.Server
	port    string
}

// NewServer creates a new HTTP server. metricsHandler may be nil, in which case /metrics is not served.
func NewServer(guard service.Guard, metricsHandler http.Handler, port, serverURL string, verbose bool) *Server {
	handler := NewHandler(guard, serverURL)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(handler, metricsHandler, verbose),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handler: handler,
		server:  server,
		port:    port,
	}
}

// NewRouter registers every route on a mux and wraps it with the logging middleware
func NewRouter(handler *Handler, metricsHandler http.Handler, verbose bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/shorten", handler.Shorten)
	mux.HandleFunc("/api/token", handler.Token)
	mux.HandleFunc("/api/stats", handler.Stats)
	mux.HandleFunc("/api/ratelimit", handler.RateLimitStatus)
	mux.HandleFunc("/healthz", handler.Health)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	// Redirect endpoint (catch-all)
	mux.HandleFunc("/", handler.Redirect)

	if !verbose {
		return mux
	}
	return NewLoggingMiddleware(verbose).Middleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Server starting on port %s", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Server shutting down...")
	return s.server.Shutdown(ctx)
}

// Port returns the server port
func (s *Server) Port() string {
	return s.port
}

// Handler returns the server handler (useful for testing)
func (s *Server) Handler() *Handler {
	return s.handler
}
