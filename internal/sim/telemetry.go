package sim

import (
	"context"
	"time"

	"github.com/signalsfoundry/flightplan-simulator/core"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/kb"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Off-route offsets applied to violation reports.
const (
	offRouteMinKm  = 0.05
	offRouteMaxKm  = 0.2
	offRouteMinAlt = 10.0
	offRouteMaxAlt = 30.0
)

// TelemetryTick replays up to MaxSteps waypoints of every unfinished plan.
// Plans are advanced one after another; a plan already being advanced by an
// earlier tick is left alone.
func (s *Scheduler) TelemetryTick(ctx context.Context) {
	start := time.Now()
	defer func() { s.metrics.ObserveTick(LoopTelemetry, time.Since(start)) }()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sim.TelemetryTick")
	defer span.End()

	ids := s.store.ActiveFlightPlanIDs()
	span.SetAttributes(attribute.Int("active_plans", len(ids)))
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		s.advancePlan(ctx, id)
	}
}

func (s *Scheduler) advancePlan(ctx context.Context, id string) {
	adv, ok, err := s.store.TryAdvance(id)
	if err != nil {
		s.log.Warn(ctx, "flight plan vanished before advancing", logging.String("flight_plan_id", id), logging.Err(err))
		return
	}
	if !ok {
		s.log.Debug(ctx, "flight plan busy; skipping", logging.String("flight_plan_id", id))
		return
	}
	defer adv.Release()

	for i := 0; i < s.cfg.MaxSteps; i++ {
		if i > 0 && !s.pause(ctx) {
			return
		}
		if s.step(ctx, adv, i) {
			return
		}
	}
}

// pause waits StepDelay on the simulation clock. It returns false if ctx
// was cancelled first.
func (s *Scheduler) pause(ctx context.Context) bool {
	if s.cfg.StepDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(s.cfg.StepDelay):
		return ctx.Err() == nil
	}
}

// step advances adv by one waypoint and reports whether the plan is done.
// Emissions use a context detached from cancellation so a step that has
// started always completes.
func (s *Scheduler) step(ctx context.Context, adv *kb.Advancer, i int) bool {
	emitCtx := context.WithoutCancel(ctx)
	log := s.log.With(
		logging.String("flight_plan_id", adv.PlanID()),
		logging.String("drone_id", adv.DroneID()),
	)

	idx, wp, ok := adv.Next()
	if !ok {
		first, err := adv.Finish()
		if err != nil {
			log.Error(emitCtx, "finishing flight plan failed", logging.Err(err))
			return true
		}
		if first {
			s.completePlan(emitCtx, log, adv.Snapshot())
		}
		return true
	}

	now := s.clock.Now()
	reported := wp.Position
	if (i+1)%s.cfg.ViolationEvery == 0 {
		reported = s.offRoute(wp.Position)
		err := s.sink.ReportViolation(emitCtx, model.Violation{
			DroneID:      adv.DroneID(),
			FlightPlanID: adv.PlanID(),
			Kind:         model.ViolationOffRoute,
			Position:     reported,
			Expected:     wp.Position,
			Timestamp:    now,
		})
		if err != nil {
			log.Warn(emitCtx, "violation report failed", logging.Int("waypoint", idx), logging.Err(err))
		}
	}

	if err := adv.MarkReached(idx); err != nil {
		log.Error(emitCtx, "marking waypoint reached failed", logging.Int("waypoint", idx), logging.Err(err))
		return true
	}

	err := s.sink.ReportLocation(emitCtx, model.LocationUpdate{
		DroneID:      adv.DroneID(),
		FlightPlanID: adv.PlanID(),
		Position:     reported,
		Timestamp:    now,
	})
	if err != nil {
		log.Warn(emitCtx, "location update failed", logging.Int("waypoint", idx), logging.Err(err))
	}
	return false
}

func (s *Scheduler) completePlan(ctx context.Context, log logging.Logger, plan model.FlightPlan) {
	path := plan.Path()
	entry := model.RouteLog{
		DroneID:      plan.DroneID,
		FlightPlanID: plan.ID,
		Path:         path,
		Zones:        plan.Zones,
		StartTime:    plan.StartTime.Unix(),
		EndTime:      plan.EndTime.Unix(),
	}
	if len(path) > 0 {
		entry.StartPoint, entry.EndPoint = path[0], path[len(path)-1]
	}
	if err := s.sink.LogRoute(ctx, entry); err != nil {
		log.Warn(ctx, "route log failed", logging.Err(err))
		return
	}
	log.Info(ctx, "flight plan completed", logging.Int("waypoints", len(path)))
}

func (s *Scheduler) offRoute(p model.Position) model.Position {
	q := core.Destination(p, s.rng.Uniform(0, 360), s.rng.Uniform(offRouteMinKm, offRouteMaxKm))
	q.Altitude = p.Altitude + s.rng.Uniform(offRouteMinAlt, offRouteMaxAlt)
	return q
}
