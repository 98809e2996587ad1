package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/flightplan-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return c
}

func square(id string, typ model.ZoneType) model.Zone {
	return model.Zone{
		ID:   id,
		Type: typ,
		Boundary: []model.LatLng{
			{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
		},
		MinAltitude: 0,
		MaxAltitude: 120,
		Active:      true,
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LEDGER_URL", "http://ledger:9000/api")
	t.Setenv("LEDGER_TIMEOUT", "3s")
	t.Setenv("LEDGER_ZONE_CACHE_TTL", "bogus")

	cfg := ConfigFromEnv()
	assert.Equal(t, "http://ledger:9000/api", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.ZoneCacheTTL)
}

func TestZones(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/zones", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]model.Zone{square("z1", model.ZoneUrban)})
	}))

	zones, err := c.Zones(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, model.ZoneUrban, zones[0].Type)
	assert.True(t, zones[0].Active)
	assert.Len(t, zones[0].Boundary, 4)
}

func TestZonesFailureWrapsSentinel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	_, err := c.Zones(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrZoneLimits)
	assert.ErrorIs(t, err, ErrUpstream)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.Equal(t, "down", upErr.Body)
}

func TestCheckRoutePermission(t *testing.T) {
	cases := map[string]struct {
		reply      decisionPayload
		wantStatus model.DecisionStatus
		wantReason string
	}{
		"approved":      {reply: decisionPayload{Status: "APPROVED"}, wantStatus: model.DecisionApproved},
		"lower case":    {reply: decisionPayload{Status: "approved"}, wantStatus: model.DecisionApproved},
		"failed reason": {reply: decisionPayload{Status: "FAILED", Reason: "zone not permitted"}, wantStatus: model.DecisionFailed, wantReason: "zone not permitted"},
		"unknown":       {reply: decisionPayload{Status: "MAYBE"}, wantStatus: model.DecisionFailed, wantReason: `unrecognised decision status "MAYBE"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/routes/permission", r.URL.Path)
				var rc model.RouteCharacteristics
				require.NoError(t, json.NewDecoder(r.Body).Decode(&rc))
				assert.Equal(t, "d1", rc.DroneID)
				assert.Equal(t, 180, rc.MaxAltitude)
				_ = json.NewEncoder(w).Encode(tc.reply)
			}))

			dec, err := c.CheckRoutePermission(context.Background(), model.RouteCharacteristics{
				DroneID: "d1", MaxAltitude: 180, Zones: []model.ZoneType{model.ZoneUrban},
			})
			require.NoError(t, err)
			assert.Equal(t, "d1", dec.DroneID)
			assert.Equal(t, tc.wantStatus, dec.Status)
			assert.Equal(t, tc.wantReason, dec.Reason)
		})
	}
}

func TestMintDroneValidatesBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.MintDrone(context.Background(), DroneRegistration{SerialNumber: "SN-1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.MintDrone(context.Background(), DroneRegistration{
		SerialNumber:   "SN-1",
		CertHashes:     []string{"h"},
		PermittedZones: []model.ZoneType{"moon"},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, calls.Load())
}

func TestMintDrone(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drones/mint", r.URL.Path)
		var reg DroneRegistration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		_ = json.NewEncoder(w).Encode(MintResult{DroneID: "drone-7", SerialNumber: reg.SerialNumber, Class: reg.Class})
	}))

	res, err := c.MintDrone(context.Background(), DroneRegistration{
		Class:          model.DroneClassCommercial,
		SerialNumber:   "SN-7",
		CertHashes:     []string{"abc"},
		PermittedZones: []model.ZoneType{model.ZoneUrban},
		Status:         model.DroneActive,
	})
	require.NoError(t, err)
	assert.Equal(t, "drone-7", res.DroneID)
	assert.Equal(t, "SN-7", res.SerialNumber)
}

func TestMintDroneUpstreamFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.MintDrone(context.Background(), DroneRegistration{
		SerialNumber:   "SN-1",
		CertHashes:     []string{"abc"},
		PermittedZones: []model.ZoneType{model.ZoneRural},
	})
	assert.ErrorIs(t, err, ErrDroneMint)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestOperatorInfoNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/operators/op-1", r.URL.Path)
		http.NotFound(w, r)
	}))

	_, err := c.OperatorInfo(context.Background(), "op-1")
	assert.ErrorIs(t, err, ErrOperatorNotFound)
}

func TestOperatorReputation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/operators/op-1/reputation", r.URL.Path)
		_, _ = w.Write([]byte(`{"operatorId":"op-1","reputationScore":87.5,"violations":2}`))
	}))

	rep, err := c.OperatorReputation(context.Background(), "op-1")
	require.NoError(t, err)
	assert.InDelta(t, 87.5, rep.Score, 1e-9)
	assert.Equal(t, 2, rep.Violations)
}

func TestTelemetryEndpoints(t *testing.T) {
	seen := make(chan string, 3)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		seen <- r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	ctx := context.Background()
	pos := model.Position{Latitude: 1, Longitude: 2, Altitude: 3}

	require.NoError(t, c.ReportLocation(ctx, model.LocationUpdate{DroneID: "d1", Position: pos}))
	require.NoError(t, c.ReportViolation(ctx, model.Violation{DroneID: "d1", Kind: model.ViolationOffRoute}))
	require.NoError(t, c.LogRoute(ctx, model.RouteLog{DroneID: "d1", Path: []model.Position{pos}}))

	assert.Equal(t, "/drones/d1/location", <-seen)
	assert.Equal(t, "/violations", <-seen)
	assert.Equal(t, "/routes/log", <-seen)
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Zones(context.Background())
	assert.ErrorIs(t, err, ErrZoneLimits)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type countingLister struct {
	calls atomic.Int32
	zones []model.Zone
	err   error
}

func (l *countingLister) Zones(context.Context) ([]model.Zone, error) {
	l.calls.Add(1)
	return l.zones, l.err
}

func TestCachedZoneSource(t *testing.T) {
	bad := model.Zone{ID: "bad", Type: model.ZoneRural, Boundary: []model.LatLng{{Lat: 0, Lng: 0}}}
	lister := &countingLister{zones: []model.Zone{square("z1", model.ZoneUrban), bad}}
	src := NewCachedZoneSource(lister, time.Minute, nil)
	ctx := context.Background()

	first, err := src.PreparedZones(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "z1", first[0].ID)

	_, err = src.PreparedZones(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), lister.calls.Load())

	src.Invalidate()
	zones, err := src.Zones(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, 1)
	assert.Equal(t, int32(2), lister.calls.Load())
}

func TestCachedZoneSourceWithoutTTL(t *testing.T) {
	lister := &countingLister{err: ErrZoneLimits}
	src := NewCachedZoneSource(lister, 0, nil)

	for range 2 {
		_, err := src.PreparedZones(context.Background())
		assert.ErrorIs(t, err, ErrZoneLimits)
	}
	assert.Equal(t, int32(2), lister.calls.Load())
}
