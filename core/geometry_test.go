package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/flightplan-simulator/model"
)

func squareZone(t model.ZoneType) model.Zone {
	return model.Zone{
		ID:   "z-" + string(t),
		Name: "Square " + string(t),
		Type: t,
		Boundary: []model.LatLng{
			{Lat: 40.0, Lng: -74.0},
			{Lat: 40.0, Lng: -73.9},
			{Lat: 40.1, Lng: -73.9},
			{Lat: 40.1, Lng: -74.0},
		},
		MinAltitude: 0,
		MaxAltitude: 120,
		Active:      true,
	}
}

func TestContainsCentroidAtMidBand(t *testing.T) {
	z := squareZone(model.ZoneUrban)
	p := model.Position{Latitude: 40.05, Longitude: -73.95, Altitude: 60}
	if !Contains(z, p) {
		t.Fatalf("expected centroid at mid band to be contained")
	}
}

func TestContainsFarOutside(t *testing.T) {
	z := squareZone(model.ZoneUrban)
	p := model.Position{Latitude: 10, Longitude: 10, Altitude: 60}
	if Contains(z, p) {
		t.Fatalf("expected far point not to be contained")
	}
}

func TestContainsAltitudeBandInclusive(t *testing.T) {
	pz, err := PrepareZone(squareZone(model.ZoneRural))
	if err != nil {
		t.Fatalf("PrepareZone: %v", err)
	}
	for _, tc := range []struct {
		alt  float64
		want bool
	}{
		{alt: -0.1, want: false},
		{alt: 0, want: true},
		{alt: 120, want: true},
		{alt: 120.5, want: false},
	} {
		p := model.Position{Latitude: 40.05, Longitude: -73.95, Altitude: tc.alt}
		if got := pz.Contains(p); got != tc.want {
			t.Errorf("Contains(alt=%v) = %v, want %v", tc.alt, got, tc.want)
		}
	}
}

func TestContainsInactiveZone(t *testing.T) {
	z := squareZone(model.ZoneMilitary)
	z.Active = false
	if Contains(z, model.Position{Latitude: 40.05, Longitude: -73.95, Altitude: 60}) {
		t.Fatalf("inactive zone must not contain any point")
	}
}

func TestContainsBoundaryPoints(t *testing.T) {
	pz, err := PrepareZone(squareZone(model.ZoneUrban))
	if err != nil {
		t.Fatalf("PrepareZone: %v", err)
	}
	for _, p := range []model.Position{
		{Latitude: 40.0, Longitude: -74.0, Altitude: 10},  // vertex
		{Latitude: 40.0, Longitude: -73.95, Altitude: 10}, // bottom edge
		{Latitude: 40.05, Longitude: -73.9, Altitude: 10}, // right edge
	} {
		if !pz.Contains(p) {
			t.Errorf("expected boundary point %+v to be contained", p)
		}
	}
}

func TestContainsConcavePolygon(t *testing.T) {
	// U shape open to the north: the notch between the arms is outside.
	z := model.Zone{
		ID:   "u",
		Type: model.ZoneHospitals,
		Boundary: []model.LatLng{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 3}, {Lat: 3, Lng: 3}, {Lat: 3, Lng: 2},
			{Lat: 1, Lng: 2}, {Lat: 1, Lng: 1}, {Lat: 3, Lng: 1}, {Lat: 3, Lng: 0},
		},
		MaxAltitude: 100,
		Active:      true,
	}
	if Contains(z, model.Position{Latitude: 2, Longitude: 1.5, Altitude: 50}) {
		t.Fatalf("point in notch must be outside")
	}
	if !Contains(z, model.Position{Latitude: 2, Longitude: 0.5, Altitude: 50}) {
		t.Fatalf("point in left arm must be inside")
	}
}

func TestContainsIsIdempotentAndDoesNotMutate(t *testing.T) {
	z := squareZone(model.ZoneUrban)
	before := len(z.Boundary)
	pz, err := PrepareZone(z)
	if err != nil {
		t.Fatalf("PrepareZone: %v", err)
	}
	ringLen := len(pz.Ring())
	p := model.Position{Latitude: 40.05, Longitude: -73.95, Altitude: 60}

	first := pz.Contains(p)
	second := pz.Contains(p)
	if first != second {
		t.Fatalf("Contains results differ: %v then %v", first, second)
	}
	if got := len(pz.Ring()); got != ringLen {
		t.Fatalf("ring length = %d after checks, want %d", got, ringLen)
	}
	if ringLen != before+1 {
		t.Fatalf("ring length = %d, want %d (one closing vertex)", ringLen, before+1)
	}

	Contains(z, p)
	Contains(z, p)
	if len(z.Boundary) != before {
		t.Fatalf("boundary length = %d after checks, want %d", len(z.Boundary), before)
	}
}

func TestPrepareZoneAlreadyClosed(t *testing.T) {
	z := squareZone(model.ZoneUrban)
	z.Boundary = append(z.Boundary, z.Boundary[0])
	pz, err := PrepareZone(z)
	if err != nil {
		t.Fatalf("PrepareZone: %v", err)
	}
	if got := len(pz.Ring()); got != len(z.Boundary) {
		t.Fatalf("ring length = %d, want %d for already-closed boundary", got, len(z.Boundary))
	}
}

func TestPrepareZoneRejectsDegenerate(t *testing.T) {
	z := model.Zone{
		ID:       "line",
		Boundary: []model.LatLng{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 0, Lng: 0}},
		Active:   true,
	}
	if _, err := PrepareZone(z); !errors.Is(err, ErrInvalidZone) {
		t.Fatalf("PrepareZone error = %v, want ErrInvalidZone", err)
	}
}

func TestPrepareZonesKeepsValid(t *testing.T) {
	bad := model.Zone{ID: "bad", Boundary: []model.LatLng{{Lat: 0, Lng: 0}}}
	zones, err := PrepareZones([]model.Zone{squareZone(model.ZoneUrban), bad, squareZone(model.ZoneRural)})
	if err == nil {
		t.Fatalf("expected error for invalid zone")
	}
	if len(zones) != 2 {
		t.Fatalf("prepared %d zones, want 2", len(zones))
	}
}

func TestDestinationAndDistanceRoundTrip(t *testing.T) {
	start := model.Position{Latitude: 40.7128, Longitude: -74.0060, Altitude: 80}
	for _, bearing := range []float64{0, 45, 90, 180, 270, 359} {
		dest := Destination(start, bearing, 0.75)
		if got := DistanceKm(start, dest); math.Abs(got-0.75) > 1e-6 {
			t.Errorf("bearing %v: distance = %v, want 0.75", bearing, got)
		}
		if dest.Altitude != start.Altitude {
			t.Errorf("bearing %v: altitude = %v, want %v", bearing, dest.Altitude, start.Altitude)
		}
	}

	north := Destination(start, 0, 1)
	if north.Latitude <= start.Latitude {
		t.Fatalf("moving north decreased latitude: %v -> %v", start.Latitude, north.Latitude)
	}
}

func TestBoundsCoverClosedRing(t *testing.T) {
	pz, err := PrepareZone(squareZone(model.ZoneUrban))
	if err != nil {
		t.Fatalf("PrepareZone: %v", err)
	}
	b := pz.Bounds()
	if b.Min.Lat() != 40.0 || b.Max.Lat() != 40.1 || b.Min.Lon() != -74.0 || b.Max.Lon() != -73.9 {
		t.Fatalf("Bounds = %v, want [-74 40] to [-73.9 40.1]", b)
	}
	ring := pz.Ring()
	if ring[0] != ring[len(ring)-1] {
		t.Fatalf("ring not closed: first %v last %v", ring[0], ring[len(ring)-1])
	}
	for _, v := range ring {
		if !pz.Contains(model.Position{Latitude: v.Lat, Longitude: v.Lng, Altitude: 1}) {
			t.Errorf("vertex %v not contained", v)
		}
	}
	if pz.Contains(model.Position{Latitude: 40.1000001, Longitude: -73.95, Altitude: 1}) {
		t.Fatalf("point just past the northern edge must be outside")
	}
}
