// Package sim drives the simulated fleet: it keeps a small fleet
// registered, requests flight plans for it and replays approved plans as
// telemetry.
package sim

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/flightplan-simulator/internal/events"
	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/internal/rand"
	"github.com/signalsfoundry/flightplan-simulator/kb"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"github.com/signalsfoundry/flightplan-simulator/timectrl"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/signalsfoundry/flightplan-simulator/internal/sim"

// Loop names used in logs and metrics.
const (
	LoopAuthorization = "authorization"
	LoopTelemetry     = "telemetry"
)

// FleetRegistry registers operators and drones with the ledger.
type FleetRegistry interface {
	OperatorInfo(ctx context.Context, id string) (model.Operator, error)
	RegisterOperator(ctx context.Context, op model.Operator) error
	OperatorReputation(ctx context.Context, id string) (ledger.Reputation, error)
	MintDrone(ctx context.Context, reg ledger.DroneRegistration) (ledger.MintResult, error)
}

// RouteGenerator produces candidate routes.
type RouteGenerator interface {
	Generate(ctx context.Context, permitted []model.ZoneType, valid bool) []model.Position
}

// Characterizer summarises a route against the live zone set.
type Characterizer interface {
	Characterize(ctx context.Context, droneID string, route []model.Position) (model.RouteCharacteristics, error)
}

// PreAuthorizer runs the preauthorization workflow.
type PreAuthorizer interface {
	PreAuthorize(ctx context.Context, droneID string, plan *model.FlightPlanRequest) model.Decision
}

// Metrics receives scheduler measurements.
type Metrics interface {
	IncPlansAuthorized()
	ObserveTick(loop string, d time.Duration)
	IncTickSkipped(loop string)
}

type noopMetrics struct{}

func (noopMetrics) IncPlansAuthorized()               {}
func (noopMetrics) ObserveTick(string, time.Duration) {}
func (noopMetrics) IncTickSkipped(string)             {}

// Deps are the collaborators a Scheduler needs. Clock, Rand, Metrics and
// Log are optional.
type Deps struct {
	Store         *kb.KnowledgeBase
	Fleet         FleetRegistry
	Routes        RouteGenerator
	Characterizer Characterizer
	PreAuth       PreAuthorizer
	Sink          events.Sink

	Clock   timectrl.SimClock
	Rand    *rand.Rand
	Metrics Metrics
	Log     logging.Logger
}

// Scheduler owns the authorization and telemetry loops.
type Scheduler struct {
	cfg Config

	store         *kb.KnowledgeBase
	fleet         FleetRegistry
	routes        RouteGenerator
	characterizer Characterizer
	preauth       PreAuthorizer
	sink          events.Sink
	clock         timectrl.SimClock
	rng           *rand.Rand
	metrics       Metrics
	log           logging.Logger

	// fleetMu serialises fleet bootstrap so overlapping ticks cannot
	// register duplicates.
	fleetMu chan struct{}
}

// New validates cfg and deps and returns a Scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var missing []error
	if deps.Store == nil {
		missing = append(missing, errors.New("store is required"))
	}
	if deps.Fleet == nil {
		missing = append(missing, errors.New("fleet registry is required"))
	}
	if deps.Routes == nil {
		missing = append(missing, errors.New("route generator is required"))
	}
	if deps.Characterizer == nil {
		missing = append(missing, errors.New("characterizer is required"))
	}
	if deps.PreAuth == nil {
		missing = append(missing, errors.New("preauthorizer is required"))
	}
	if deps.Sink == nil {
		missing = append(missing, errors.New("telemetry sink is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:           cfg,
		store:         deps.Store,
		fleet:         deps.Fleet,
		routes:        deps.Routes,
		characterizer: deps.Characterizer,
		preauth:       deps.PreAuth,
		sink:          deps.Sink,
		clock:         deps.Clock,
		rng:           deps.Rand,
		metrics:       deps.Metrics,
		log:           deps.Log,
		fleetMu:       make(chan struct{}, 1),
	}
	if s.clock == nil {
		s.clock = timectrl.NewTimeController(timectrl.RealTime)
	}
	if s.rng == nil {
		if cfg.Seed != 0 {
			s.rng = rand.NewSeeded(cfg.Seed)
		} else {
			s.rng = rand.New()
		}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	return s, nil
}

// Run starts both loops and blocks until ctx is cancelled. The
// authorization loop fires immediately; in-flight ticks are allowed to
// finish their current step before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	auth := timectrl.NewPeriodicTask(LoopAuthorization, s.cfg.AuthInterval, s.AuthorizationTick)
	auth.Immediate = true
	auth.OnSkip = s.onSkip

	telemetry := timectrl.NewPeriodicTask(LoopTelemetry, s.cfg.TelemetryInterval, s.TelemetryTick)
	telemetry.OnSkip = s.onSkip

	s.log.Info(ctx, "scheduler started",
		logging.Duration("auth_interval", s.cfg.AuthInterval),
		logging.Duration("telemetry_interval", s.cfg.TelemetryInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return auth.Run(gctx) })
	g.Go(func() error { return telemetry.Run(gctx) })
	err := g.Wait()

	s.log.Info(context.WithoutCancel(ctx), "scheduler stopped",
		logging.Int("authorization_runs", int(auth.Runs())),
		logging.Int("telemetry_runs", int(telemetry.Runs())),
	)
	return err
}

func (s *Scheduler) onSkip(loop string) {
	s.metrics.IncTickSkipped(loop)
	s.log.Debug(context.Background(), "tick skipped; previous run still in flight", logging.String("loop", loop))
}

func (s *Scheduler) lockFleet(ctx context.Context) bool {
	select {
	case s.fleetMu <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) unlockFleet() { <-s.fleetMu }
