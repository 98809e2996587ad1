package core

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/signalsfoundry/flightplan-simulator/core"

// ZoneSource supplies the current set of prepared airspace zones.
type ZoneSource interface {
	PreparedZones(ctx context.Context) ([]*PreparedZone, error)
}

// Characterize reduces route to its altitude ceiling and the set of zone
// classifications any of its points fall inside. The zone set is returned in
// model.AllZoneTypes order so identical inputs always produce identical
// output, regardless of the order points are visited in.
func Characterize(droneID string, route []model.Position, zones []*PreparedZone) model.RouteCharacteristics {
	rc := model.RouteCharacteristics{DroneID: droneID, Zones: []model.ZoneType{}}
	if len(route) == 0 {
		return rc
	}

	ceiling := route[0].Altitude
	found := make(map[model.ZoneType]bool)
	for _, p := range route {
		if p.Altitude > ceiling {
			ceiling = p.Altitude
		}
		for _, z := range zones {
			if found[z.Type] {
				continue
			}
			if z.Contains(p) {
				found[z.Type] = true
			}
		}
	}
	rc.MaxAltitude = int(math.Floor(ceiling))

	for _, t := range model.AllZoneTypes {
		if found[t] {
			rc.Zones = append(rc.Zones, t)
			delete(found, t)
		}
	}
	// Classifications outside the known set are still reported.
	extra := make([]model.ZoneType, 0, len(found))
	for t := range found {
		extra = append(extra, t)
	}
	slices.Sort(extra)
	rc.Zones = append(rc.Zones, extra...)
	return rc
}

// Characterizer binds Characterize to a live ZoneSource. It is the single
// place where an empty zone set is replaced with model.DefaultZones, so every
// consumer submits the same conservative default.
type Characterizer struct {
	zones ZoneSource
	log   logging.Logger
}

// NewCharacterizer returns a Characterizer reading zones from src.
func NewCharacterizer(src ZoneSource, log logging.Logger) *Characterizer {
	if log == nil {
		log = logging.Noop()
	}
	return &Characterizer{zones: src, log: log}
}

// Characterize fetches zones and characterizes route. A zone fetch failure
// fails the characterization rather than yielding an empty zone set.
func (c *Characterizer) Characterize(ctx context.Context, droneID string, route []model.Position) (model.RouteCharacteristics, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Characterize")
	defer span.End()
	span.SetAttributes(
		attribute.String("drone_id", droneID),
		attribute.Int("route_points", len(route)),
	)

	if c == nil || c.zones == nil {
		err := fmt.Errorf("characterize route: no zone source configured")
		span.SetStatus(codes.Error, err.Error())
		return model.RouteCharacteristics{}, err
	}

	zones, err := c.zones.PreparedZones(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.RouteCharacteristics{}, err
	}

	rc := Characterize(droneID, route, zones)
	if len(rc.Zones) == 0 {
		c.log.Debug(ctx, "route intersects no active zone; applying default",
			logging.String("drone_id", droneID),
		)
	}
	rc.Zones = model.DefaultZones(rc.Zones)

	span.SetAttributes(attribute.Int("max_altitude", rc.MaxAltitude))
	return rc, nil
}
