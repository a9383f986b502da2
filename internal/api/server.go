package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/khanhnv2901/seca-posture/internal/api/middleware"
	"github.com/khanhnv2901/seca-posture/internal/fleet"
	"github.com/khanhnv2901/seca-posture/internal/posture"
	consts "github.com/khanhnv2901/seca-posture/internal/shared/constants"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BindingsRequest is the JSON form of a bindings parse request.
type BindingsRequest struct {
	Raw string `json:"raw"`
}

// AuditRequest carries raw facts for a batch of hosts.
type AuditRequest struct {
	Hosts map[string]fleet.RawFacts `json:"hosts"`
}

// AuditResponse is the outcome of a batch audit.
type AuditResponse struct {
	Reports []fleet.HostReport `json:"reports"`
	Summary fleet.Summary      `json:"summary"`
}

type HealthService interface {
	Check(ctx context.Context) error
	Ready(ctx context.Context) error
}

type Config struct {
	Engine      *posture.Engine
	Runner      *fleet.Runner
	Jobs        *JobManager
	Health      HealthService
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
	MaxHosts    int      // Maximum hosts per audit request (0 = unlimited)
}

type Server struct {
	cfg      Config
	router   chi.Router
	limiters *rateLimiterMap
}

func NewServer(cfg Config) *Server {
	if cfg.Engine == nil {
		cfg.Engine = posture.NewEngine(posture.DefaultPolicy())
	}
	if cfg.Runner == nil {
		cfg.Runner = &fleet.Runner{Concurrency: consts.DefaultAuditConcurrency}
	}
	if cfg.Runner.Engine == nil {
		cfg.Runner.Engine = cfg.Engine
	}
	srv := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		limiters: newRateLimiterMap(),
	}
	srv.routes()
	return srv
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.limiters.stop()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Apply middleware chain: RequestID -> CORS -> RateLimit -> Logging -> Auth -> Handler
	handler := middleware.RequestID(s.withCORS(s.withRateLimit(s.withLogging(s.router))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(chimw.Recoverer)
	s.router.MethodNotAllowed(s.methodNotAllowed)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	})

	mount := func(api chi.Router) {
		api.Use(s.withAuth)
		api.Get("/health", s.handleHealth)
		api.Get("/ready", s.handleReady)
		api.Post("/bindings", s.handleBindings)
		api.Post("/score", s.handleScore)
		api.Post("/audits", s.handleAudits)
		api.Get("/policy", s.handlePolicy)
		api.Get("/jobs", s.handleListJobs)
		api.Post("/jobs", s.handleStartJob)
		api.Get("/jobs/{jobID}", s.handleJobByID)
		api.Get("/jobs-stream", s.handleJobStream)
	}

	// Version 1 API routes (primary)
	s.router.Route("/api/v1", mount)
	// Unversioned routes (backward compatibility - alias to v1)
	s.router.Route("/api", mount)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ready(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleBindings accepts either a raw text/plain socket table or a JSON
// BindingsRequest.
func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, consts.MaxRequestBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req BindingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %w", secaerrors.ErrDeserializationFailed, err))
			return
		}
		writeJSON(w, http.StatusOK, posture.ParseBindings(req.Raw))
		return
	}

	bindings, err := posture.ParseBindingsReader(r.Body)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, bindings)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, consts.MaxRequestBodyBytes)
	var in posture.AuditInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %w", secaerrors.ErrDeserializationFailed, err))
		return
	}
	if err := in.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Engine.Score(in))
}

func (s *Server) handleAudits(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAuditRequest(w, r)
	if !ok {
		return
	}
	collector := fleet.StaticCollector(req.Hosts)
	reports := s.cfg.Runner.RunAudits(r.Context(), collector.Hosts(), collector, nil)
	writeJSON(w, http.StatusOK, AuditResponse{
		Reports: reports,
		Summary: fleet.Summarize(reports),
	})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Engine.Policy())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	limit := 25
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.cfg.Jobs.ListJobs(limit))
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	req, ok := s.decodeAuditRequest(w, r)
	if !ok {
		return
	}
	collector := fleet.StaticCollector(req.Hosts)
	job := s.cfg.Jobs.StartAudit(s.cfg.Runner, collector, collector.Hosts())
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	id := chi.URLParam(r, "jobID")
	job := s.cfg.Jobs.GetJob(id)
	if job == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	updates, unsubscribe := s.cfg.Jobs.Subscribe()
	defer unsubscribe()
	ctx := r.Context()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(job)
			if err != nil {
				s.requestLogger(r).Error("failed to marshal job", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, r, []byte("event: job\ndata: ")) {
				return
			}
			if !s.writeStreamChunk(w, r, payload) {
				return
			}
			if !s.writeStreamChunk(w, r, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) decodeAuditRequest(w http.ResponseWriter, r *http.Request) (AuditRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, consts.MaxRequestBodyBytes)
	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %w", secaerrors.ErrDeserializationFailed, err))
		return req, false
	}
	if len(req.Hosts) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("at least one host is required"))
		return req, false
	}
	if s.cfg.MaxHosts > 0 && len(req.Hosts) > s.cfg.MaxHosts {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("too many hosts: %d (max %d)", len(req.Hosts), s.cfg.MaxHosts))
		return req, false
	}
	return req, true
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip rate limiting if disabled
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := clientIPFromRequest(r)
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.requestLogger(r).Warn("rate_limit_exceeded",
				zap.String("client_ip", clientIP),
			)
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIPFromRequest prefers the first X-Forwarded-For hop and strips the port.
func clientIPFromRequest(r *http.Request) string {
	clientIP := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			clientIP = strings.TrimSpace(forwarded[:idx])
		} else {
			clientIP = strings.TrimSpace(forwarded)
		}
	}
	if idx := strings.LastIndex(clientIP, ":"); idx > 0 {
		clientIP = clientIP[:idx]
	}
	return clientIP
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowedOrigin := range s.cfg.CORSOrigins {
				if allowedOrigin == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int64("bytes", lrw.bytesWritten),
			)
		}
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

// Flush lets the job stream pass through the logging wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		status = http.StatusRequestEntityTooLarge
	}

	// For 5xx errors, return generic message and log details server-side
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}

	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w io.Writer, r *http.Request, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		s.requestLogger(r).Error("failed to write stream chunk", zap.Error(err))
		return false
	}
	return true
}

// rateLimiterMap manages per-IP rate limiters with automatic cleanup
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	done     chan struct{}
	once     sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{
		limiters: make(map[string]*ipLimiter),
		done:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if burst <= 0 {
		burst = rps
	}
	limiter, exists := m.limiters[ip]
	if !exists {
		limiter = &ipLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rps), burst),
			lastSeen: time.Now(),
		}
		m.limiters[ip] = limiter
	} else {
		limiter.lastSeen = time.Now()
	}

	return limiter.limiter
}

func (m *rateLimiterMap) stop() {
	m.once.Do(func() { close(m.done) })
}

// cleanupLoop removes limiters that haven't been used in 5 minutes
func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			for ip, limiter := range m.limiters {
				if time.Since(limiter.lastSeen) > 5*time.Minute {
					delete(m.limiters, ip)
				}
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}
