package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"weather-ready/internal/fetcher"
	"weather-ready/internal/logging"
	"weather-ready/internal/service"
	"weather-ready/internal/storage"
	"weather-ready/internal/weather"
)

// Server exposes health, readiness, metrics and the report query endpoint.
type Server struct {
	httpServer *http.Server
	service    *service.Service
	ready      storage.Pinger
	logger     zerolog.Logger
}

// NewServer creates the HTTP server. ready may be nil, in which case the
// service is always reported ready.
func NewServer(addr string, svc *service.Service, ready storage.Pinger, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		service: svc,
		ready:   ready,
		logger:  logging.Component(logger, "http"),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/report", s.handleReport)
	mux.HandleFunc("GET /v1/locations", s.handleLocations)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Registry().All())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseQuery(r, s.service.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	bundle, err := s.service.Query(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("location", req.Location).Msg("report query failed")
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, weather.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, weather.ErrUnknownLocation):
		return http.StatusNotFound
	case errors.Is(err, fetcher.ErrFeed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseQuery builds a request from URL parameters. The date defaults to today.
func parseQuery(r *http.Request, today weather.Date) (weather.QueryRequest, error) {
	q := r.URL.Query()

	req := weather.QueryRequest{Location: q.Get("location"), Date: today}
	if v := q.Get("date"); v != "" {
		d, err := weather.ParseDate(v)
		if err != nil {
			return req, err
		}
		req.Date = d
	}

	unit, err := weather.ParseUnit(q.Get("unit"))
	if err != nil {
		return req, err
	}
	req.Unit = unit

	if v := q.Get("start_hour"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: start_hour %q is not an integer", weather.ErrInvalidQuery, v)
		}
		req.AlertStartHour = &h
	}

	thresholds := []struct {
		name string
		dst  **float64
	}{
		{"max_temp", &req.Thresholds.MaxTemp},
		{"min_temp", &req.Thresholds.MinTemp},
		{"max_wind", &req.Thresholds.MaxWind},
		{"min_humidity", &req.Thresholds.MinHumidity},
		{"precip_threshold", &req.Thresholds.Precipitation},
	}
	for _, th := range thresholds {
		v := q.Get(th.name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: %s %q is not a number", weather.ErrInvalidQuery, th.name, v)
		}
		*th.dst = &f
	}

	if v := q.Get("metrics"); v != "" {
		metrics, err := weather.ParseMetrics(strings.Split(v, ","))
		if err != nil {
			return req, err
		}
		req.Metrics = metrics
	}

	return req, req.Validate()
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
