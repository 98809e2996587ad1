// Package mockroute synthesises plausible drone routes over the live zone
// set. Output is random; callers should only rely on its distribution.
package mockroute

import (
	"context"

	"github.com/signalsfoundry/flightplan-simulator/core"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/internal/rand"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

const (
	MinPoints = 30
	MaxPoints = 50

	// MaxStepKm bounds the horizontal distance between consecutive points.
	MaxStepKm = 1.0
	// MaxDriftM bounds the altitude change between consecutive points.
	MaxDriftM = 10.0

	jumpMinM       = 500.0
	jumpMaxM       = 1000.0
	samplesPerZone = 100
)

// FallbackRegion is used when no suitable zone exists.
var FallbackRegion = struct {
	Center      model.Position
	SpanDeg     float64
	MinAltitude float64
	MaxAltitude float64
}{
	Center:      model.Position{Latitude: 40.7128, Longitude: -74.0060},
	SpanDeg:     0.05,
	MinAltitude: 50,
	MaxAltitude: 120,
}

// Generate builds a route of MinPoints to MaxPoints positions.
//
// A valid route starts inside an active zone whose type is in permitted. An
// invalid route starts inside an active restricted zone and contains one
// altitude jump, in its middle third, above every zone's altitude band.
func Generate(rng *rand.Rand, zones []*core.PreparedZone, permitted []model.ZoneType, valid bool) []model.Position {
	n := MinPoints + rng.Intn(MaxPoints-MinPoints+1)
	route := make([]model.Position, n)
	route[0] = startPoint(rng, zones, permitted, valid)

	jumpAt := -1
	if !valid {
		jumpAt = n/3 + rng.Intn(n/3)
	}
	// The jump is a single spike; cruise altitude resumes after it.
	cruise := route[0].Altitude
	for i := 1; i < n; i++ {
		next := core.Destination(route[i-1], rng.Uniform(0, 360), rng.Uniform(0, MaxStepKm))
		cruise = max(0, cruise+rng.Uniform(-MaxDriftM, MaxDriftM))
		next.Altitude = cruise
		if i == jumpAt {
			next.Altitude = ceiling(zones) + rng.Uniform(jumpMinM, jumpMaxM)
		}
		route[i] = next
	}
	return route
}

// ceiling is the highest altitude any zone, or the fallback region, allows.
func ceiling(zones []*core.PreparedZone) float64 {
	top := FallbackRegion.MaxAltitude
	for _, z := range zones {
		top = max(top, z.MaxAltitude)
	}
	return top
}

func startPoint(rng *rand.Rand, zones []*core.PreparedZone, permitted []model.ZoneType, valid bool) model.Position {
	var candidates []*core.PreparedZone
	for _, z := range zones {
		if !z.Active {
			continue
		}
		if valid && isPermitted(z.Type, permitted) || !valid && z.Type == model.ZoneRestricted {
			candidates = append(candidates, z)
		}
	}
	if z, ok := rand.Sample(rng, candidates); ok {
		return pointIn(rng, z)
	}
	return fallbackPoint(rng)
}

func isPermitted(t model.ZoneType, permitted []model.ZoneType) bool {
	for _, p := range permitted {
		if p == t {
			return true
		}
	}
	return false
}

// pointIn samples uniformly over the zone's bounding box until the point
// falls inside the polygon. A vertex, which is on the boundary and so
// contained, is used if sampling keeps missing.
func pointIn(rng *rand.Rand, z *core.PreparedZone) model.Position {
	alt := z.MinAltitude
	if z.MaxAltitude > z.MinAltitude {
		alt = rng.Uniform(z.MinAltitude, z.MaxAltitude)
	}
	b := z.Bounds()
	for range samplesPerZone {
		p := model.Position{
			Latitude:  rng.Uniform(b.Min.Lat(), b.Max.Lat()),
			Longitude: rng.Uniform(b.Min.Lon(), b.Max.Lon()),
			Altitude:  alt,
		}
		if z.Contains(p) {
			return p
		}
	}
	v := z.Boundary[rng.Intn(len(z.Boundary))]
	return model.Position{Latitude: v.Lat, Longitude: v.Lng, Altitude: alt}
}

func fallbackPoint(rng *rand.Rand) model.Position {
	c, span := FallbackRegion.Center, FallbackRegion.SpanDeg
	return model.Position{
		Latitude:  c.Latitude + rng.Uniform(-span, span),
		Longitude: c.Longitude + rng.Uniform(-span, span),
		Altitude:  rng.Uniform(FallbackRegion.MinAltitude, FallbackRegion.MaxAltitude),
	}
}

// Generator binds Generate to a live zone source.
type Generator struct {
	zones core.ZoneSource
	rng   *rand.Rand
	log   logging.Logger
}

// NewGenerator returns a Generator. A nil rng is replaced by a clock-seeded one.
func NewGenerator(src core.ZoneSource, rng *rand.Rand, log logging.Logger) *Generator {
	if rng == nil {
		rng = rand.New()
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Generator{zones: src, rng: rng, log: log}
}

// Generate fetches the current zones and builds a route. If zones cannot be
// fetched the route starts in the fallback region.
func (g *Generator) Generate(ctx context.Context, permitted []model.ZoneType, valid bool) []model.Position {
	var zones []*core.PreparedZone
	if g.zones != nil {
		var err error
		zones, err = g.zones.PreparedZones(ctx)
		if err != nil {
			g.log.Warn(ctx, "zone fetch failed; generating route in fallback region", logging.Err(err))
			zones = nil
		}
	}
	return Generate(g.rng, zones, permitted, valid)
}
