// Package api exposes the preauthorization workflow and read access to the
// simulator's store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/kb"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxRequestBytes = 1 << 20

// PreAuthorizer runs the preauthorization workflow.
type PreAuthorizer interface {
	PreAuthorize(ctx context.Context, droneID string, plan *model.FlightPlanRequest) model.Decision
}

// Characterizer summarises a route against the live zone set.
type Characterizer interface {
	Characterize(ctx context.Context, droneID string, route []model.Position) (model.RouteCharacteristics, error)
}

// ZoneLister lists the current zones.
type ZoneLister interface {
	Zones(ctx context.Context) ([]model.Zone, error)
}

// ZoneCache is a zone source that can drop what it has cached.
type ZoneCache interface {
	Invalidate()
}

// DroneMinter registers drones with the ledger.
type DroneMinter interface {
	MintDrone(ctx context.Context, reg ledger.DroneRegistration) (ledger.MintResult, error)
}

// Config wires a Server. ZoneCache, Metrics and MetricsHandler are optional.
type Config struct {
	PreAuth       PreAuthorizer
	Characterizer Characterizer
	Zones         ZoneLister
	Minter        DroneMinter
	Store         *kb.KnowledgeBase

	// ZoneCache enables POST /api/v1/zones/refresh.
	ZoneCache ZoneCache

	// Metrics wraps every request, typically APICollector.Middleware.
	Metrics        func(http.Handler) http.Handler
	MetricsHandler http.Handler
	Log            logging.Logger
}

// Server is the HTTP adapter.
type Server struct {
	cfg Config
	log logging.Logger
}

// NewServer validates cfg and returns a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.PreAuth == nil || cfg.Characterizer == nil || cfg.Zones == nil || cfg.Minter == nil || cfg.Store == nil {
		return nil, fmt.Errorf("api: preauthorizer, characterizer, zones, minter and store are required")
	}
	log := cfg.Log
	if log == nil {
		log = logging.Noop()
	}
	return &Server{cfg: cfg, log: log}, nil
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)
	if s.cfg.Metrics != nil {
		r.Use(s.cfg.Metrics)
	}

	r.Get("/healthz", s.health)
	if s.cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/preauthorize", s.preAuthorize)
		r.Post("/routes/characterize", s.characterize)
		r.Get("/zones", s.listZones)
		if s.cfg.ZoneCache != nil {
			r.Post("/zones/refresh", s.refreshZones)
		}

		r.Get("/flightplans", s.listFlightPlans)
		r.Get("/flightplans/{id}", s.getFlightPlan)

		r.Get("/drones", s.listDrones)
		r.Post("/drones", s.registerDrone)
		r.Get("/drones/{id}", s.getDrone)
		r.Get("/operators", s.listOperators)
	})

	return otelhttp.NewHandler(r, "flightsim.api")
}

// requestContext attaches a request id, echoing the caller's X-Request-Id
// when present, and a request-scoped logger.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-Id"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, s.log)
		ctx = logging.ContextWithLogger(ctx, log)
		w.Header().Set("X-Request-Id", logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"drones":      s.cfg.Store.DroneCount(),
		"activePlans": len(s.cfg.Store.ActiveFlightPlanIDs()),
	})
}
