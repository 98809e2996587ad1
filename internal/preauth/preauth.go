// Package preauth decides whether a candidate flight plan may fly.
package preauth

import (
	"context"
	"errors"

	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/signalsfoundry/flightplan-simulator/internal/preauth"

// ErrMissingFields is the validation failure for an empty drone id or route.
var ErrMissingFields = errors.New("droneId and flightPlan are required")

// Characterizer summarises a route against the current zone set. It is
// expected to apply the default zone when the route touches none.
type Characterizer interface {
	Characterize(ctx context.Context, droneID string, route []model.Position) (model.RouteCharacteristics, error)
}

// PermissionAuthority is the external route-permission check.
type PermissionAuthority interface {
	CheckRoutePermission(ctx context.Context, rc model.RouteCharacteristics) (model.Decision, error)
}

// DecisionRecorder observes every decision produced.
type DecisionRecorder interface {
	ObserveDecision(status model.DecisionStatus)
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithDecisionRecorder reports each decision to rec.
func WithDecisionRecorder(rec DecisionRecorder) Option {
	return func(w *Workflow) { w.recorder = rec }
}

// WithLogger sets the workflow's logger.
func WithLogger(log logging.Logger) Option {
	return func(w *Workflow) {
		if log != nil {
			w.log = log
		}
	}
}

// Workflow runs validation, characterization and the permission check.
type Workflow struct {
	characterizer Characterizer
	authority     PermissionAuthority
	recorder      DecisionRecorder
	log           logging.Logger
}

// New builds a Workflow.
func New(c Characterizer, a PermissionAuthority, opts ...Option) *Workflow {
	w := &Workflow{characterizer: c, authority: a, log: logging.Noop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PreAuthorize returns the authority's decision for the plan. It never
// returns an error: every failure becomes a FAILED decision whose reason is
// the failing step's error message.
func (w *Workflow) PreAuthorize(ctx context.Context, droneID string, plan *model.FlightPlanRequest) model.Decision {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "preauth.PreAuthorize")
	defer span.End()
	span.SetAttributes(attribute.String("drone_id", droneID))

	dec, err := w.decide(ctx, droneID, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		dec = model.Fail(droneID, err.Error())
	}
	span.SetAttributes(attribute.String("decision", string(dec.Status)))

	if dec.Approved() {
		w.log.Info(ctx, "flight plan preauthorized", logging.String("drone_id", droneID))
	} else {
		w.log.Info(ctx, "flight plan rejected",
			logging.String("drone_id", droneID),
			logging.String("reason", dec.Reason),
		)
	}
	if w.recorder != nil {
		w.recorder.ObserveDecision(dec.Status)
	}
	return dec
}

func (w *Workflow) decide(ctx context.Context, droneID string, plan *model.FlightPlanRequest) (model.Decision, error) {
	if droneID == "" || plan == nil || len(plan.Route) == 0 {
		return model.Decision{}, ErrMissingFields
	}
	if w.characterizer == nil || w.authority == nil {
		return model.Decision{}, errors.New("preauthorization workflow is not configured")
	}

	rc, err := w.characterizer.Characterize(ctx, droneID, plan.Route)
	if err != nil {
		return model.Decision{}, err
	}
	rc.DroneID = droneID

	dec, err := w.authority.CheckRoutePermission(ctx, rc)
	if err != nil {
		return model.Decision{}, err
	}
	if dec.DroneID == "" {
		dec.DroneID = droneID
	}
	if dec.Status != model.DecisionApproved {
		dec.Status = model.DecisionFailed
	}
	return dec, nil
}
