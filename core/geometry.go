package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

// ErrInvalidZone is returned for zones whose boundary cannot form a polygon.
var ErrInvalidZone = errors.New("invalid zone")

// PreparedZone is a Zone whose polygon has been closed and bounded once, at
// ingestion time. Containment checks never modify it.
type PreparedZone struct {
	model.Zone

	ring  orb.Ring
	bound orb.Bound
}

// PrepareZone validates z and precomputes its closed ring and bounding box.
// The caller's boundary slice is copied, never aliased.
func PrepareZone(z model.Zone) (*PreparedZone, error) {
	if distinctVertices(z.Boundary) < 3 {
		return nil, fmt.Errorf("%w: zone %q needs at least 3 distinct boundary points", ErrInvalidZone, z.ID)
	}
	if z.MinAltitude > z.MaxAltitude {
		return nil, fmt.Errorf("%w: zone %q altitude band [%v, %v] is inverted", ErrInvalidZone, z.ID, z.MinAltitude, z.MaxAltitude)
	}
	ring := closeRing(z.Boundary)
	z.Boundary = append([]model.LatLng(nil), z.Boundary...)
	return &PreparedZone{Zone: z, ring: ring, bound: ring.Bound()}, nil
}

// PrepareZones prepares every zone it can. Zones that fail validation are
// skipped and reported through the joined error; the valid ones are still
// returned.
func PrepareZones(zones []model.Zone) ([]*PreparedZone, error) {
	prepared := make([]*PreparedZone, 0, len(zones))
	var errs []error
	for _, z := range zones {
		pz, err := PrepareZone(z)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		prepared = append(prepared, pz)
	}
	return prepared, errors.Join(errs...)
}

// Ring returns a copy of the closed polygon ring.
func (z *PreparedZone) Ring() []model.LatLng {
	out := make([]model.LatLng, len(z.ring))
	for i, pt := range z.ring {
		out[i] = model.LatLng{Lat: pt.Lat(), Lng: pt.Lon()}
	}
	return out
}

// Bounds returns the zone's bounding box in (lng, lat) order.
func (z *PreparedZone) Bounds() orb.Bound { return z.bound }

// Contains reports whether p is inside the zone: the zone must be active, the
// altitude must lie within the band (inclusive) and the horizontal position
// must be inside or on the polygon boundary.
func (z *PreparedZone) Contains(p model.Position) bool {
	if z == nil || !z.Active {
		return false
	}
	if !z.InBand(p.Altitude) {
		return false
	}
	pt := toPoint(p)
	if !z.bound.Contains(pt) {
		return false
	}
	return planar.RingContains(z.ring, pt)
}

// InBand reports whether alt lies within the zone's altitude band.
func (z *PreparedZone) InBand(alt float64) bool {
	return alt >= z.MinAltitude && alt <= z.MaxAltitude
}

// Contains is the one-shot form of PreparedZone.Contains for callers holding
// a raw zone. Invalid zones contain nothing.
func Contains(z model.Zone, p model.Position) bool {
	pz, err := PrepareZone(z)
	if err != nil {
		return false
	}
	return pz.Contains(p)
}

// closeRing converts boundary to a ring, appending its first vertex when the
// ring is not already closed. Closing an already closed ring is a no-op.
func closeRing(boundary []model.LatLng) orb.Ring {
	ring := make(orb.Ring, len(boundary), len(boundary)+1)
	for i, v := range boundary {
		ring[i] = orb.Point{v.Lng, v.Lat}
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

func distinctVertices(boundary []model.LatLng) int {
	seen := make(map[model.LatLng]struct{}, len(boundary))
	for _, v := range boundary {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func toPoint(p model.Position) orb.Point { return orb.Point{p.Longitude, p.Latitude} }

// Destination returns the point reached by travelling distKm along the
// great circle leaving p at bearingDeg (clockwise from north). Altitude is
// carried over unchanged.
func Destination(p model.Position, bearingDeg, distKm float64) model.Position {
	q := geo.PointAtBearingAndDistance(toPoint(p), bearingDeg, distKm*1000)
	// Normalise longitude to [-180, 180).
	lng := math.Mod(q.Lon()+540, 360) - 180
	return model.Position{Latitude: q.Lat(), Longitude: lng, Altitude: p.Altitude}
}

// DistanceKm returns the haversine surface distance between two positions.
func DistanceKm(a, b model.Position) float64 {
	return geo.DistanceHaversine(toPoint(a), toPoint(b)) / 1000
}
