package sim

import (
	"context"
	"time"

	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/internal/rand"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// AuthorizationTick bootstraps the fleet if needed and then makes
// AttemptsPerTick flight plan requests. The first ValidAttempts use valid
// routes and the rest deliberately stray into restricted airspace.
func (s *Scheduler) AuthorizationTick(ctx context.Context) {
	start := time.Now()
	defer func() { s.metrics.ObserveTick(LoopAuthorization, time.Since(start)) }()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sim.AuthorizationTick")
	defer span.End()

	if err := s.EnsureFleet(ctx); err != nil {
		s.log.Warn(ctx, "fleet bootstrap incomplete", logging.Err(err))
	}
	drones := s.store.ListDrones()
	if len(drones) == 0 {
		s.log.Warn(ctx, "no drones registered; skipping authorization attempts")
		return
	}

	approved := 0
	for i := 0; i < s.cfg.AttemptsPerTick; i++ {
		if ctx.Err() != nil {
			break
		}
		d, _ := rand.Sample(s.rng, drones)
		if s.attempt(ctx, d, i < s.cfg.ValidAttempts) {
			approved++
		}
	}
	span.SetAttributes(attribute.Int("approved", approved))
}

// attempt generates one route for d and, if it is approved, stores the
// resulting flight plan. It reports whether a plan was stored.
func (s *Scheduler) attempt(ctx context.Context, d *model.Drone, valid bool) bool {
	log := s.log.With(logging.String("drone_id", d.ID), logging.Any("valid_route", valid))

	route := s.routes.Generate(ctx, d.PermittedZones, valid)
	rc, err := s.characterizer.Characterize(ctx, d.ID, route)
	if err != nil {
		log.Warn(ctx, "route characterization failed; attempt dropped", logging.Err(err))
		return false
	}
	if denied := unpermittedZones(d, rc.Zones); len(denied) > 0 {
		log = log.With(logging.Any("unpermitted_zones", denied))
	}

	now := s.clock.Now()
	req := &model.FlightPlanRequest{
		Route:     route,
		StartTime: now.Add(s.cfg.PlanLead),
		EndTime:   now.Add(s.cfg.PlanLead + s.cfg.PlanDuration),
	}
	dec := s.preauth.PreAuthorize(ctx, d.ID, req)
	if !dec.Approved() {
		log.Info(ctx, "flight plan not authorized; dropped", logging.String("reason", dec.Reason))
		return false
	}

	plan, err := s.store.AuthorizeFlightPlan(d.ID, route, req.StartTime, req.EndTime, rc.Zones)
	if err != nil {
		log.Error(ctx, "storing approved flight plan failed", logging.Err(err))
		return false
	}
	s.metrics.IncPlansAuthorized()
	log.Info(ctx, "flight plan authorized",
		logging.String("flight_plan_id", plan.ID),
		logging.Int("waypoints", len(plan.Waypoints)),
		logging.Int("max_altitude", rc.MaxAltitude),
	)
	return true
}

// unpermittedZones returns the zone types the route crosses that d is not
// cleared for, in route order.
func unpermittedZones(d *model.Drone, zones []model.ZoneType) []model.ZoneType {
	var denied []model.ZoneType
	for _, z := range zones {
		if !d.Permits(z) {
			denied = append(denied, z)
		}
	}
	return denied
}
