package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-events-query/internal/events"
	"go-events-query/internal/metrics"
)

// ImageResolver turns stored image paths into URLs
type ImageResolver interface {
	ImageURL(image string) string
}

// Server serves the events views over HTTP
type Server struct {
	events *events.Service
	images ImageResolver
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new view server
func NewServer(eventsService *events.Service, images ImageResolver, logger *zap.Logger) *Server {
	return &Server{
		events: eventsService,
		images: images,
		logger: logger,
	}
}

// Handler returns the routed handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.createRouter()
}

// Start serves on a TCP address
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Info("Starting events HTTP server", zap.String("address", addr))
	return s.serve(listener)
}

// StartUnixSocket serves on a Unix socket
func (s *Server) StartUnixSocket(socketPath string) error {
	if err := os.RemoveAll(socketPath); err != nil {
		s.logger.Warn("Failed to remove existing socket file", zap.String("path", socketPath), zap.Error(err))
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	// readable/writable by owner and group
	if err := os.Chmod(socketPath, 0660); err != nil {
		s.logger.Warn("Failed to set socket permissions", zap.String("path", socketPath), zap.Error(err))
	}

	s.logger.Info("Starting events HTTP server on Unix socket", zap.String("socket_path", socketPath))
	return s.serve(listener)
}

func (s *Server) serve(listener net.Listener) error {
	s.server = &http.Server{
		Handler:     s.createRouter(),
		ReadTimeout: 30 * time.Second,
		// no WriteTimeout: watch streams stay open
		IdleTimeout: 60 * time.Second,
	}

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Stopping events HTTP server")
	return s.server.Shutdown(ctx)
}

// createRouter creates and configures the HTTP router
func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.recordMetrics)

	// Event views
	router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	router.HandleFunc("/events/new", s.handleNewEventForm).Methods(http.MethodGet)
	router.HandleFunc("/events/new", s.handleCreateEvent).Methods(http.MethodPost)
	router.HandleFunc("/events/{id}", s.handleEventDetails).Methods(http.MethodGet)
	router.HandleFunc("/events/{id}", s.handleDeleteEvent).Methods(http.MethodDelete)
	router.HandleFunc("/events/{id}/delete", s.handleDeleteEvent).Methods(http.MethodPost)
	router.HandleFunc("/events/{id}/edit", s.handleEditEvent).Methods(http.MethodGet)
	router.HandleFunc("/events/{id}/edit", s.handleUpdateEvent).Methods(http.MethodPut, http.MethodPost)
	router.HandleFunc("/events/{id}/watch", s.handleWatchEvent).Methods(http.MethodGet)

	// Global fetching indicator
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

// recordMetrics counts responses per route template
func (s *Server) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.RecordViewRequest(route, sw.status)
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleStatus reports how many queries are being fetched
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, &StatusResponse{Fetching: s.events.Client().IsFetching()})
}

// writeResponse writes a JSON response
func (s *Server) writeResponse(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes an error block
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, block events.ErrorBlock) {
	s.writeResponse(w, statusCode, &ErrorResponse{Error: block})
}

// redirect answers a recorded navigation with 303 See Other
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, nav *redirectNavigator, fallback string) {
	target, ok := nav.Target()
	if !ok {
		target = fallback
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// statusWriter captures the response status and keeps streaming working
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Flush() {
	if flusher, ok := sw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
