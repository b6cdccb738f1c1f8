package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"studentmonitor/internal/history"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// Registry reports live connection counts
type Registry interface {
	Stats() map[string]int
}

// Server serves the read-only HTTP surface. It never mutates history.
type Server struct {
	buffer        *history.Buffer
	snapshotSize  int
	journal       interfaces.Journal
	registry      Registry
	allowedOrigin string
	router        *http.ServeMux
	healthChecks  singleflight.Group
}

// Options configures optional collaborators of the Server
type Options struct {
	// Journal may be nil when journaling is disabled
	Journal       interfaces.Journal
	AllowedOrigin string
}

func NewServer(buffer *history.Buffer, snapshotSize int, registry Registry, opts Options) *Server {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	s := &Server{
		buffer:        buffer,
		snapshotSize:  snapshotSize,
		journal:       opts.Journal,
		registry:      registry,
		allowedOrigin: opts.AllowedOrigin,
		router:        http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.root))))
	s.router.Handle("/session-data", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.sessionData))))
	s.router.Handle("/session-summary", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.sessionSummary))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type MessageResponse struct {
	Message string `json:"message"`
}

type SummaryResponse struct {
	Window     int            `json:"window"`
	Statuses   map[string]int `json:"statuses"`
	AlertTypes map[string]int `json:"alert_types"`
	Length     int            `json:"length"`
	Total      uint64         `json:"total"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Journal     string         `json:"journal"`
	Records     *int64         `json:"journal_records,omitempty"`
	Connections map[string]int `json:"connections"`
	History     map[string]int `json:"history"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	if !s.allowGet(w, r) {
		return
	}
	_ = json.NewEncoder(w).Encode(MessageResponse{Message: "Student Monitoring API is running"})
}

// GET /session-data
func (s *Server) sessionData(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}
	_ = json.NewEncoder(w).Encode(types.HistoryResponse{Data: s.buffer.Recent(s.snapshotSize)})
}

// GET /session-summary aggregates over the same window as /session-data
func (s *Server) sessionSummary(w http.ResponseWriter, r *http.Request) {
	if !s.allowGet(w, r) {
		return
	}

	records := s.buffer.Recent(s.snapshotSize)
	summary := SummaryResponse{
		Window:     len(records),
		Statuses:   make(map[string]int),
		AlertTypes: make(map[string]int),
		Length:     s.buffer.Len(),
		Total:      s.buffer.Total(),
	}
	for _, record := range records {
		summary.Statuses[record.Status()]++
		if alert := record.AlertType(); alert != "" {
			summary.AlertTypes[alert]++
		}
	}

	_ = json.NewEncoder(w).Encode(summary)
}

// GET /health returns 503 when the journal is enabled but unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Journal:     "disabled",
		Connections: s.registry.Stats(),
		History: map[string]int{
			"length":   s.buffer.Len(),
			"capacity": s.buffer.Capacity(),
		},
	}

	if s.journal != nil {
		response.Journal = "healthy"
		count, err := s.checkJournal(ctx)
		if err != nil {
			response.Status = "unhealthy"
			response.Journal = fmt.Sprintf("error: %v", err)
		} else if count >= 0 {
			response.Records = &count
		}
	}

	if response.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

// checkJournal collapses concurrent health checks into one journal query.
// A count of -1 means the journal is reachable but could not be counted.
func (s *Server) checkJournal(ctx context.Context) (int64, error) {
	v, err, _ := s.healthChecks.Do("journal", func() (any, error) {
		if err := s.journal.HealthCheck(ctx); err != nil {
			return int64(0), err
		}
		count, err := s.journal.CountRecords(ctx)
		if err != nil {
			return int64(-1), nil
		}
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *Server) allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
