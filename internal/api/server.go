// Package api exposes the simulation over HTTP. Player operations ride
// behind JWT bearer auth; tick control and engine status sit behind an
// admin key. All responses are JSON; money fields are decimal strings.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/XelaNull/UsedPlus-sub003/internal/app/engine"
	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// Config controls the HTTP surface.
type Config struct {
	// JWTSecret signs bearer tokens. Empty disables the authenticated
	// routes entirely (they answer 401).
	JWTSecret string

	// TokenTTL is how long an issued token stays valid.
	TokenTTL time.Duration

	// AdminKey guards the tick and status endpoints. Empty disables them.
	AdminKey string

	// RequestTimeout bounds one request through the middleware stack.
	RequestTimeout time.Duration

	// Metrics exposes /metrics when set.
	Metrics bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TokenTTL:       24 * time.Hour,
		RequestTimeout: 60 * time.Second,
		Metrics:        true,
	}
}

// Server is the simulation HTTP API.
type Server struct {
	cfg Config
	log *logrus.Logger
	eng *engine.Engine
}

// NewServer wires the API around the engine.
func NewServer(cfg Config, log *logrus.Logger, eng *engine.Engine) *Server {
	def := DefaultConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if log == nil {
		log = logrus.New()
	}
	return &Server{cfg: cfg, log: log, eng: eng}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(requestLogger(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", s.handleRegister)
		r.Post("/login", s.handleLogin)

		// Player operations.
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/account", s.handleAccount)
			r.Get("/balance", s.handleBalance)
			r.Post("/deposit", s.handleDeposit)

			r.Route("/deals", func(r chi.Router) {
				r.Post("/", s.handleCreateDeal)
				r.Get("/", s.handleListDeals)
				r.Get("/{id}", s.handleGetDeal)
				r.Put("/{id}/mode", s.handleSetPaymentMode)
				r.Post("/{id}/payoff", s.handlePayEarly)
			})

			r.Route("/searches", func(r chi.Router) {
				r.Post("/", s.handleStartSearch)
				r.Get("/", s.handleListSearches)
				r.Get("/{id}", s.handleGetSearch)
				r.Delete("/{id}", s.handleCancelSearch)
			})

			r.Route("/listings", func(r chi.Router) {
				r.Post("/", s.handleListForSale)
				r.Get("/", s.handleListListings)
				r.Get("/{id}", s.handleGetListing)
				r.Post("/{id}/offer", s.handleRespondOffer)
				r.Delete("/{id}", s.handleCancelListing)
			})

			r.Route("/assets", func(r chi.Router) {
				r.Post("/", s.handleAddAsset)
				r.Get("/", s.handleListAssets)
				r.Get("/{ref}/quote", s.handleTradeInQuote)
			})

			r.Get("/credit-report", s.handleCreditReport)
			r.Get("/catalog", s.handleCatalog)
		})

		// Host operations.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/admin/tick", s.handleAdminTick)
			r.Get("/admin/status", s.handleAdminStatus)
		})
	})

	return r
}

// ─── Response Helpers ───────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"status":  status,
		},
	})
}

// writeDomainError maps a sentinel to its HTTP status and renders it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// decodeJSON parses the request body into v, refusing unknown fields so a
// typoed key fails loudly instead of silently defaulting.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// statusFor classifies a domain error into an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrBelowMinimumAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrIneligible),
		errors.Is(err, domain.ErrInsufficientCredit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrDealNotFound),
		errors.Is(err, domain.ErrSearchNotFound),
		errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrAlreadyListed),
		errors.Is(err, domain.ErrAlreadyPaidOff),
		errors.Is(err, domain.ErrDealTerminal),
		errors.Is(err, domain.ErrNotActive),
		errors.Is(err, domain.ErrNoOffer):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOfferExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger emits one structured line per request.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("http request")
		})
	}
}
