package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ttsites/facturemanager/internal/api/swagger"
	"github.com/ttsites/facturemanager/internal/form"
	"github.com/ttsites/facturemanager/internal/metrics"
	"github.com/ttsites/facturemanager/internal/settings"
	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

const maxBodyBytes = 1 << 20

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// Options wires the HTTP surface to its collaborators.
type Options struct {
	Store    storage.Storage
	Settings *settings.Provider
	// UploadDir receives tariff PDFs posted to the import endpoint.
	UploadDir string

	RequestsPerSecond float64
	Burst             int

	Logger *zap.Logger
}

type server struct {
	store     storage.Storage
	settings  *settings.Provider
	uploadDir string
	limiter   *rate.Limiter
	log       *zap.Logger
}

// NewMux constructs the HTTP mux with the bill API, metrics, health endpoints
// and API documentation.
func NewMux(opts Options) *http.ServeMux {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &server{
		store:     opts.Store,
		settings:  opts.Settings,
		uploadDir: opts.UploadDir,
		log:       log.Named("api"),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond * 2)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler("/swagger")))

	s.route(mux, "POST /api/v1/calculate", "/api/v1/calculate", s.limited("/api/v1/calculate", s.handleCalculate))
	s.route(mux, "POST /api/v1/forms/recompute", "/api/v1/forms/recompute", s.limited("/api/v1/forms/recompute", s.handleRecompute))

	s.route(mux, "GET /api/v1/settings", "/api/v1/settings", s.handleGetSettings)
	s.route(mux, "PUT /api/v1/settings", "/api/v1/settings", s.handlePutSettings)
	s.route(mux, "POST /api/v1/settings/import-pdf", "/api/v1/settings/import-pdf", s.handleImportPDF)

	s.route(mux, "GET /api/v1/meters", "/api/v1/meters", s.handleListMeters)
	s.route(mux, "GET /api/v1/meters/{id}", "/api/v1/meters/{id}", s.handleGetMeter)
	s.route(mux, "PUT /api/v1/meters/{id}", "/api/v1/meters/{id}", s.handlePutMeter)
	s.route(mux, "GET /api/v1/meters/{id}/power-tier", "/api/v1/meters/{id}/power-tier", s.handleGetPowerTier)
	s.route(mux, "PUT /api/v1/meters/{id}/power-tier", "/api/v1/meters/{id}/power-tier", s.handlePutPowerTier)

	s.route(mux, "POST /api/v1/bills", "/api/v1/bills", s.limited("/api/v1/bills", s.handleCreateBill))
	s.route(mux, "GET /api/v1/bills", "/api/v1/bills", s.handleListBills)
	s.route(mux, "GET /api/v1/bills/{id}", "/api/v1/bills/{id}", s.handleGetBill)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/", http.StatusFound)
	})

	return mux
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// route registers h under pattern and instruments it with the route label.
func (s *server) route(mux *http.ServeMux, pattern, label string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		metrics.RequestsTotal.WithLabelValues(label).Inc()
		defer func() {
			metrics.RequestDurationSeconds.WithLabelValues(label, r.Method).Observe(time.Since(start).Seconds())
			if rec.status >= 400 {
				metrics.RequestErrorsTotal.WithLabelValues(label, strconv.Itoa(rec.status)).Inc()
			}
		}()
		h(rec, r)
	})
}

func (s *server) limited(label string, h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.RateLimitedTotal.WithLabelValues(label).Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}
		h(w, r)
	}
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("readyz: db ping failed", zap.Error(err))
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, tariff.ErrUnknownRegime),
		errors.Is(err, tariff.ErrMissingInput),
		errors.Is(err, tariff.ErrInvalidMonths),
		errors.Is(err, tariff.ErrInvalidIndex),
		errors.Is(err, tariff.ErrInvalidSettings),
		errors.Is(err, settings.ErrInvalidPowerTier),
		errors.Is(err, settings.ErrNoTariffFound),
		errors.Is(err, settings.ErrUnreadableDocument),
		errors.Is(err, form.ErrReadOnlyField):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and their
// detail is not echoed to the client.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("method", r.Method), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
