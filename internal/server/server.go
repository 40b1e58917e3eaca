package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/pingproxy/internal/probe"
	"github.com/hazz-dev/pingproxy/internal/routeros"
)

const maxBodyBytes = 1 << 20

// Recorder receives probe and request observations. *metrics.Collector
// implements it.
type Recorder interface {
	ObserveProbe(status string, d time.Duration)
	ObserveRequest(method, route string, code int)
}

// Server holds the chi router and its dependencies.
type Server struct {
	token   string
	prober  routeros.Prober
	metrics Recorder
	router  chi.Router
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new Server and registers all routes. A nil prober makes
// every ping fail with 500; pass nil logger to use the default logger.
func New(token string, prober routeros.Prober, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		token:  token,
		prober: prober,
		router: chi.NewRouter(),
		logger: logger,
		now:    time.Now,
	}
	s.registerRoutes()
	return s
}

// SetMetrics sets the recorder notified of every probe and request.
// It must be called before the server starts handling requests.
func (s *Server) SetMetrics(m Recorder) {
	s.metrics = m
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(cors)
	r.Use(s.recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/ping", s.handlePing)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)
}

// --- Response helpers ---

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type notFoundResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}

// --- Handlers ---

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, notFoundResponse{Message: "Not found"})
}

type pingRequest struct {
	IPRouter string
	ClientIP string
	PPPUser  string
}

// decodePingRequest reads exactly one JSON value from body. Syntax errors and
// trailing data are errors; fields that are absent or not strings are left
// empty so that validation reports them as missing.
func decodePingRequest(body io.Reader) (pingRequest, error) {
	dec := json.NewDecoder(body)
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return pingRequest{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return pingRequest{}, errors.New("unexpected data after JSON value")
	}

	fields, _ := v.(map[string]interface{})
	var req pingRequest
	req.IPRouter, _ = fields["ipRouter"].(string)
	req.ClientIP, _ = fields["clientIp"].(string)
	req.PPPUser, _ = fields["pppUser"].(string)
	return req, nil
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := decodePingRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IPRouter == "" || req.ClientIP == "" {
		writeError(w, http.StatusBadRequest, "missing parameters: ipRouter, clientIp")
		return
	}

	if s.prober == nil {
		writeError(w, http.StatusInternalServerError, "router client not installed")
		return
	}

	s.logger.Info("ping requested",
		"router", req.IPRouter,
		"target", req.ClientIP,
		"ppp_user", req.PPPUser,
	)

	start := time.Now()
	reply, err := s.prober.Probe(r.Context(), routeros.Request{
		Router:  req.IPRouter,
		Target:  req.ClientIP,
		PPPUser: req.PPPUser,
	})
	elapsed := time.Since(start)

	var connErr *routeros.ConnectError
	switch {
	case errors.As(err, &connErr):
		// The router being unreachable is a probe outcome, not a proxy failure.
		s.logger.Warn("router unreachable", "router", req.IPRouter, "error", err)
		s.observeProbe("failed", elapsed)
		writeJSON(w, http.StatusOK, probe.Failed(req.ClientIP, err))
		return
	case err != nil:
		s.logger.Error("probe", "router", req.IPRouter, "error", err)
		s.observeProbe("internal", elapsed)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := probe.Normalize(reply.Records, routeros.ProbeCount, req.ClientIP)
	result.ConnectionInfo = reply.Connection

	s.logger.Info("ping result",
		"router", req.IPRouter,
		"target", req.ClientIP,
		"status", result.Status,
		"message", result.Message,
		"duration", elapsed,
	)
	s.observeProbe(string(result.Status), elapsed)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) authorized(r *http.Request) bool {
	got := r.Header.Get("Authorization")
	want := "Bearer " + s.token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) observeProbe(status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveProbe(status, d)
	}
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, sw.status)
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// cors allows any origin and answers every pre-flight request itself.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a handler panic into a 500 JSON response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic recovered in HTTP handler",
				"error", rec,
				"path", r.URL.Path,
			)
			writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
		}()
		next.ServeHTTP(w, r)
	})
}
