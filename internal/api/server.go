// Package api exposes the read-only HTTP interface over scraped geography
// data, serving from the relational store when available and falling back
// to the latest snapshot artifact otherwise.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/config"
	"github.com/weathertrack/geoscraper/internal/snapshot"
	"github.com/weathertrack/geoscraper/internal/store"
)

// CountryStore is the relational read surface the server consumes.
type CountryStore interface {
	ListCountries(ctx context.Context) ([]store.Country, error)
	CitiesByCountry(ctx context.Context, countryName string) ([]store.City, error)
}

// SnapshotReader serves data from the latest dated artifact.
type SnapshotReader interface {
	Latest() (string, []snapshot.CountryRecord, bool, error)
	CitiesFor(country string) ([]snapshot.CityEntry, error)
}

// Server wires HTTP handlers to the store and the snapshot fallback.
// The store may be nil; the server then answers from snapshots only.
type Server struct {
	router    chi.Router
	store     CountryStore
	snapshots SnapshotReader
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Health and
// metrics stay open; the /v1 surface honors the auth config.
func NewServer(
	countryStore CountryStore,
	snapshots SnapshotReader,
	gatherer prometheus.Gatherer,
	auth config.AuthConfig,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:     countryStore,
		snapshots: snapshots,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if auth.Enabled {
			r.Use(apiKeyMiddleware(auth.APIKey))
		}
		r.Get("/countries", s.listCountries)
		r.Get("/countries/{country}/cities", s.listCities)
		r.Get("/snapshot", s.latestSnapshot)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type placePayload struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name"`
	URL  *string `json:"url,omitempty"`
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		countries, err := s.store.ListCountries(r.Context())
		if err != nil {
			s.logger.Error("list countries failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list countries")
			return
		}
		payload := make([]placePayload, 0, len(countries))
		for _, c := range countries {
			payload = append(payload, placePayload{ID: c.ID, Name: c.Name, URL: c.URL})
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": "database", "countries": payload})
		return
	}

	_, records, found, err := s.snapshots.Latest()
	if err != nil {
		s.logger.Error("read snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no snapshot available")
		return
	}
	payload := make([]placePayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, placePayload{Name: rec.Country, URL: rec.URL})
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": "snapshot", "countries": payload})
}

func (s *Server) listCities(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "country")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	if s.store != nil {
		cities, err := s.store.CitiesByCountry(r.Context(), name)
		if err != nil {
			s.logger.Error("list cities failed", zap.String("country", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list cities")
			return
		}
		if len(cities) > 0 {
			payload := make([]placePayload, 0, len(cities))
			for _, c := range cities {
				payload = append(payload, placePayload{ID: c.ID, Name: c.Name, URL: c.URL})
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"source": "database", "country": name, "count": len(payload), "cities": payload,
			})
			return
		}
		// The store has nothing for this country; fall through to the
		// latest snapshot before reporting it missing.
	}

	_, records, found, err := s.snapshots.Latest()
	if err != nil {
		s.logger.Error("read snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no snapshot available")
		return
	}
	for _, rec := range records {
		if rec.Country != name {
			continue
		}
		payload := make([]placePayload, 0, len(rec.Cities))
		for _, c := range rec.Cities {
			payload = append(payload, placePayload{Name: c.Name, URL: c.URL})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source": "snapshot", "country": name, "count": len(payload), "cities": payload,
		})
		return
	}
	writeError(w, http.StatusNotFound, "country not found")
}

func (s *Server) latestSnapshot(w http.ResponseWriter, _ *http.Request) {
	path, records, found, err := s.snapshots.Latest()
	if err != nil {
		s.logger.Error("read snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no snapshot available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifact":  filepath.Base(path),
		"countries": len(records),
		"records":   records,
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
