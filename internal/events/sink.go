// Package events delivers simulator telemetry to its consumers.
package events

import (
	"context"

	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

// Kinds of telemetry event.
const (
	KindLocation  = "location"
	KindViolation = "violation"
	KindRouteLog  = "route_log"
)

// Sink receives telemetry. Implementations return an error when the event
// was not accepted.
type Sink interface {
	ReportLocation(ctx context.Context, u model.LocationUpdate) error
	ReportViolation(ctx context.Context, v model.Violation) error
	LogRoute(ctx context.Context, r model.RouteLog) error
}

// EmissionRecorder observes each delivery attempt to the primary sink.
type EmissionRecorder interface {
	ObserveEmission(kind string, err error)
}

// Fanout delivers to a primary sink and any number of mirrors. Only the
// primary's result is returned; mirror failures are logged.
type Fanout struct {
	primary  Sink
	mirrors  []Sink
	recorder EmissionRecorder
	log      logging.Logger
}

// NewFanout builds a Fanout. rec and log may be nil.
func NewFanout(primary Sink, rec EmissionRecorder, log logging.Logger, mirrors ...Sink) *Fanout {
	if log == nil {
		log = logging.Noop()
	}
	return &Fanout{primary: primary, mirrors: mirrors, recorder: rec, log: log}
}

func (f *Fanout) ReportLocation(ctx context.Context, u model.LocationUpdate) error {
	return f.emit(ctx, KindLocation, func(s Sink) error { return s.ReportLocation(ctx, u) })
}

func (f *Fanout) ReportViolation(ctx context.Context, v model.Violation) error {
	return f.emit(ctx, KindViolation, func(s Sink) error { return s.ReportViolation(ctx, v) })
}

func (f *Fanout) LogRoute(ctx context.Context, r model.RouteLog) error {
	return f.emit(ctx, KindRouteLog, func(s Sink) error { return s.LogRoute(ctx, r) })
}

func (f *Fanout) emit(ctx context.Context, kind string, send func(Sink) error) error {
	var err error
	if f.primary != nil {
		err = send(f.primary)
		if f.recorder != nil {
			f.recorder.ObserveEmission(kind, err)
		}
	}
	for _, m := range f.mirrors {
		if merr := send(m); merr != nil {
			f.log.Warn(ctx, "telemetry mirror failed",
				logging.String("kind", kind),
				logging.Err(merr),
			)
		}
	}
	return err
}
