package preauth

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/flightplan-simulator/core"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

type fakeAuthority struct {
	got   []model.RouteCharacteristics
	reply model.Decision
	err   error
}

func (a *fakeAuthority) CheckRoutePermission(_ context.Context, rc model.RouteCharacteristics) (model.Decision, error) {
	a.got = append(a.got, rc)
	return a.reply, a.err
}

type zoneList []*core.PreparedZone

func (z zoneList) PreparedZones(context.Context) ([]*core.PreparedZone, error) { return z, nil }

type failingZones struct{ err error }

func (f failingZones) PreparedZones(context.Context) ([]*core.PreparedZone, error) { return nil, f.err }

type statusCounter map[model.DecisionStatus]int

func (c statusCounter) ObserveDecision(s model.DecisionStatus) { c[s]++ }

func urbanZone(t *testing.T) *core.PreparedZone {
	t.Helper()
	z, err := core.PrepareZone(model.Zone{
		ID:   "u1",
		Type: model.ZoneUrban,
		Boundary: []model.LatLng{
			{Lat: 40, Lng: -74}, {Lat: 40, Lng: -73}, {Lat: 41, Lng: -73}, {Lat: 41, Lng: -74},
		},
		MaxAltitude: 200,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("PrepareZone: %v", err)
	}
	return z
}

func plan(points ...model.Position) *model.FlightPlanRequest {
	return &model.FlightPlanRequest{Route: points}
}

func TestPreAuthorizeValidation(t *testing.T) {
	auth := &fakeAuthority{reply: model.Approve("", "")}
	w := New(core.NewCharacterizer(zoneList{}, nil), auth)
	ctx := context.Background()

	dec := w.PreAuthorize(ctx, "", plan(model.Position{Altitude: 10}))
	if dec.Status != model.DecisionFailed || dec.DroneID != "" || dec.Reason != "droneId and flightPlan are required" {
		t.Fatalf("missing drone decision = %+v", dec)
	}

	dec = w.PreAuthorize(ctx, "d1", nil)
	if dec.Status != model.DecisionFailed || dec.DroneID != "d1" || dec.Reason != "droneId and flightPlan are required" {
		t.Fatalf("missing plan decision = %+v", dec)
	}

	dec = w.PreAuthorize(ctx, "d1", plan())
	if dec.Status != model.DecisionFailed {
		t.Fatalf("empty route decision = %+v, want FAILED", dec)
	}
	if len(auth.got) != 0 {
		t.Fatalf("validation failures reached the authority %d times", len(auth.got))
	}
}

func TestPreAuthorizeUpstreamErrorBecomesReason(t *testing.T) {
	auth := &fakeAuthority{err: errors.New("Network error")}
	w := New(core.NewCharacterizer(zoneList{}, nil), auth)

	dec := w.PreAuthorize(context.Background(), "d1", plan(model.Position{Altitude: 10}))
	want := model.Decision{DroneID: "d1", Status: model.DecisionFailed, Reason: "Network error"}
	if dec != want {
		t.Fatalf("PreAuthorize = %+v, want %+v", dec, want)
	}
}

func TestPreAuthorizeCharacterizationFailure(t *testing.T) {
	auth := &fakeAuthority{reply: model.Approve("d1", "")}
	w := New(core.NewCharacterizer(failingZones{err: errors.New("failed to retrieve zone limits")}, nil), auth)

	dec := w.PreAuthorize(context.Background(), "d1", plan(model.Position{Altitude: 10}))
	if dec.Status != model.DecisionFailed || dec.Reason != "failed to retrieve zone limits" {
		t.Fatalf("PreAuthorize = %+v", dec)
	}
	if len(auth.got) != 0 {
		t.Fatalf("authority called after characterization failure")
	}
}

func TestPreAuthorizeSubmitsDefaultZone(t *testing.T) {
	auth := &fakeAuthority{reply: model.Approve("d1", "")}
	w := New(core.NewCharacterizer(zoneList{urbanZone(t)}, nil), auth)

	// Far from the only zone.
	dec := w.PreAuthorize(context.Background(), "d1", plan(model.Position{Latitude: 10, Longitude: 10, Altitude: 50}))
	if !dec.Approved() {
		t.Fatalf("PreAuthorize = %+v, want APPROVED", dec)
	}
	if len(auth.got) != 1 {
		t.Fatalf("authority called %d times, want 1", len(auth.got))
	}
	got := auth.got[0]
	if len(got.Zones) != 1 || got.Zones[0] != model.ZoneRestricted {
		t.Fatalf("submitted zones = %v, want [restricted]", got.Zones)
	}
	if got.MaxAltitude != 50 || got.DroneID != "d1" {
		t.Fatalf("submitted characteristics = %+v", got)
	}
}

func TestPreAuthorizePassesAuthorityDecision(t *testing.T) {
	auth := &fakeAuthority{reply: model.Fail("", "zone not permitted")}
	counts := statusCounter{}
	w := New(core.NewCharacterizer(zoneList{urbanZone(t)}, nil), auth, WithDecisionRecorder(counts))

	dec := w.PreAuthorize(context.Background(), "d1", plan(
		model.Position{Latitude: 40.5, Longitude: -73.5, Altitude: 120},
		model.Position{Latitude: 40.6, Longitude: -73.5, Altitude: 180},
	))
	want := model.Decision{DroneID: "d1", Status: model.DecisionFailed, Reason: "zone not permitted"}
	if dec != want {
		t.Fatalf("PreAuthorize = %+v, want %+v", dec, want)
	}
	if z := auth.got[0].Zones; len(z) != 1 || z[0] != model.ZoneUrban {
		t.Fatalf("submitted zones = %v, want [urban]", z)
	}
	if counts[model.DecisionFailed] != 1 {
		t.Fatalf("recorder counts = %v", counts)
	}
}

type fixedCharacterizer struct{ rc model.RouteCharacteristics }

func (c fixedCharacterizer) Characterize(context.Context, string, []model.Position) (model.RouteCharacteristics, error) {
	return c.rc, nil
}

func TestPreAuthorizeSubmitsCharacterizedZonesUnchanged(t *testing.T) {
	auth := &fakeAuthority{reply: model.Approve("d1", "")}
	w := New(fixedCharacterizer{rc: model.RouteCharacteristics{MaxAltitude: 40}}, auth)

	w.PreAuthorize(context.Background(), "d1", plan(model.Position{Latitude: 10, Longitude: 10, Altitude: 40}))
	if len(auth.got) != 1 {
		t.Fatalf("authority called %d times, want 1", len(auth.got))
	}
	if z := auth.got[0].Zones; len(z) != 0 {
		t.Fatalf("submitted zones = %v, want none added", z)
	}
	if auth.got[0].DroneID != "d1" {
		t.Fatalf("submitted drone = %q, want d1", auth.got[0].DroneID)
	}
}
