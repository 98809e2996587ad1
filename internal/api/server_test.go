package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/internal/observability"
	"github.com/signalsfoundry/flightplan-simulator/kb"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePreAuth struct {
	gotDrone string
	gotPlan  *model.FlightPlanRequest
}

func (f *fakePreAuth) PreAuthorize(_ context.Context, droneID string, plan *model.FlightPlanRequest) model.Decision {
	f.gotDrone, f.gotPlan = droneID, plan
	if plan == nil {
		return model.Fail(droneID, "droneId and flightPlan are required")
	}
	return model.Approve(droneID, "")
}

type fakeCharacterizer struct{ err error }

func (f fakeCharacterizer) Characterize(_ context.Context, droneID string, route []model.Position) (model.RouteCharacteristics, error) {
	if f.err != nil {
		return model.RouteCharacteristics{}, f.err
	}
	return model.RouteCharacteristics{DroneID: droneID, MaxAltitude: int(route[0].Altitude), Zones: []model.ZoneType{model.ZoneUrban}}, nil
}

type fakeZones struct {
	zones []model.Zone
	err   error
}

func (f fakeZones) Zones(context.Context) ([]model.Zone, error) { return f.zones, f.err }

// refreshingZones serves a different zone set after each Invalidate.
type refreshingZones struct {
	invalidations int
}

func (z *refreshingZones) Invalidate() { z.invalidations++ }

func (z *refreshingZones) Zones(context.Context) ([]model.Zone, error) {
	return []model.Zone{{ID: fmt.Sprintf("gen-%d", z.invalidations), Type: model.ZoneRural, Active: true}}, nil
}

type fakeMinter struct {
	calls int
	err   error
}

func (f *fakeMinter) MintDrone(_ context.Context, reg ledger.DroneRegistration) (ledger.MintResult, error) {
	f.calls++
	if err := reg.Validate(); err != nil {
		return ledger.MintResult{}, err
	}
	if f.err != nil {
		return ledger.MintResult{}, f.err
	}
	return ledger.MintResult{DroneID: fmt.Sprintf("drone-%d", f.calls), SerialNumber: reg.SerialNumber}, nil
}

type harness struct {
	handler http.Handler
	store   *kb.KnowledgeBase
	preauth *fakePreAuth
	minter  *fakeMinter
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{store: kb.NewKnowledgeBase(), preauth: &fakePreAuth{}, minter: &fakeMinter{}}
	cfg := Config{
		PreAuth:       h.preauth,
		Characterizer: fakeCharacterizer{},
		Zones:         fakeZones{},
		Minter:        h.minter,
		Store:         h.store,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestPreAuthorizeReturnsDecision(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"droneId":"d1","flightPlan":{"route":[{"lat":40.7,"lng":-74,"altitude":80}],
		"startTime":"2026-01-01T10:00:00Z","endTime":"2026-01-01T10:30:00Z"}}`

	rec := h.do(t, http.MethodPost, "/api/v1/preauthorize", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var dec model.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
	assert.Equal(t, model.DecisionApproved, dec.Status)
	assert.Equal(t, "d1", dec.DroneID)
	assert.Equal(t, "d1", h.preauth.gotDrone)
	require.NotNil(t, h.preauth.gotPlan)
	assert.Len(t, h.preauth.gotPlan.Route, 1)
	assert.Equal(t, 30*time.Minute, h.preauth.gotPlan.EndTime.Sub(h.preauth.gotPlan.StartTime))
}

func TestPreAuthorizeMissingPlanIsStillDecision(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/preauthorize", `{"droneId":"d1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var dec model.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
	assert.Equal(t, model.DecisionFailed, dec.Status)
	assert.Equal(t, "droneId and flightPlan are required", dec.Reason)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/preauthorize", `{"droneId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), body.RequestID)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestCharacterize(t *testing.T) {
	tests := []struct {
		name     string
		charErr  error
		body     string
		wantCode int
	}{
		{"ok", nil, `{"droneId":"d1","route":[{"lat":1,"lng":2,"altitude":95.7}]}`, http.StatusOK},
		{"empty route", nil, `{"droneId":"d1","route":[]}`, http.StatusBadRequest},
		{"zone fetch failed", fmt.Errorf("%w: boom", ledger.ErrZoneLimits), `{"droneId":"d1","route":[{"lat":1,"lng":2,"altitude":10}]}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config) { c.Characterizer = fakeCharacterizer{err: tt.charErr} })
			rec := h.do(t, http.MethodPost, "/api/v1/routes/characterize", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var rc model.RouteCharacteristics
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rc))
			assert.Equal(t, 95, rc.MaxAltitude)
			assert.Equal(t, []model.ZoneType{model.ZoneUrban}, rc.Zones)
		})
	}
}

func TestListZones(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Zones = fakeZones{zones: []model.Zone{{ID: "z1", Type: model.ZoneHospitals, Active: true}}}
	})
	rec := h.do(t, http.MethodGet, "/api/v1/zones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"zoneType":"hospitals"`)

	h = newHarness(t, nil)
	rec = h.do(t, http.MethodGet, "/api/v1/zones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestRefreshZones(t *testing.T) {
	zones := &refreshingZones{}
	h := newHarness(t, func(c *Config) {
		c.Zones = zones
		c.ZoneCache = zones
	})
	rec := h.do(t, http.MethodPost, "/api/v1/zones/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, zones.invalidations)
	assert.Contains(t, rec.Body.String(), `"id":"gen-1"`)

	rec = h.do(t, http.MethodGet, "/api/v1/zones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, zones.invalidations)

	h = newHarness(t, nil)
	rec = h.do(t, http.MethodPost, "/api/v1/zones/refresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFlightPlanEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.AddDrone(&model.Drone{ID: "d1"}))
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	plan, err := h.store.AuthorizeFlightPlan("d1", []model.Position{{Latitude: 1}, {Latitude: 2}}, start, start.Add(time.Hour), []model.ZoneType{model.ZoneRural})
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/v1/flightplans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []model.FlightPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)
	assert.Len(t, plans[0].Waypoints, 2)

	rec = h.do(t, http.MethodGet, "/api/v1/flightplans/"+plan.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/flightplans/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterDrone(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.AddOperator(&model.Operator{ID: "op1", Name: "Ops"}))

	body := `{"droneType":"Medical","permittedZones":["rural","hospitals"],"serialNumber":"SN-1",
		"certHashes":["abc"],"operatorId":"op1"}`
	rec := h.do(t, http.MethodPost, "/api/v1/drones", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var d model.Drone
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "drone-1", d.ID)
	assert.Equal(t, model.DroneActive, d.Status)
	assert.Equal(t, "op1", d.OperatorID)
	assert.Equal(t, 1, h.store.DroneCount())

	rec = h.do(t, http.MethodGet, "/api/v1/drones/drone-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/v1/drones", "")
	assert.Contains(t, rec.Body.String(), `"serialNumber":"SN-1"`)
}

func TestRegisterDroneFailures(t *testing.T) {
	tests := []struct {
		name     string
		mintErr  error
		body     string
		wantCode int
	}{
		{"no cert hashes", nil, `{"permittedZones":["rural"],"serialNumber":"SN-1","certHashes":[]}`, http.StatusBadRequest},
		{"no zones", nil, `{"serialNumber":"SN-1","certHashes":["a"]}`, http.StatusBadRequest},
		{"unknown operator", nil, `{"permittedZones":["rural"],"serialNumber":"SN-1","certHashes":["a"],"operatorId":"ghost"}`, http.StatusNotFound},
		{"ledger down", fmt.Errorf("%w: %w", ledger.ErrDroneMint, &ledger.UpstreamError{Op: "mint", StatusCode: 500}), `{"permittedZones":["rural"],"serialNumber":"SN-1","certHashes":["a"]}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.minter.err = tt.mintErr
			rec := h.do(t, http.MethodPost, "/api/v1/drones", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, 0, h.store.DroneCount())
		})
	}
}

func TestRegisterDroneLogsMintedIDWhenStoreRejects(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t, func(c *Config) {
		c.Log = logging.NewWithHandler(slog.NewJSONHandler(&buf, nil))
	})
	require.NoError(t, h.store.AddDrone(&model.Drone{ID: "drone-1"}))

	rec := h.do(t, http.MethodPost, "/api/v1/drones", `{"permittedZones":["rural"],"serialNumber":"SN-9","certHashes":["a"]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, h.minter.calls)
	assert.Contains(t, buf.String(), `"msg":"minted drone not recorded locally"`)
	assert.Contains(t, buf.String(), `"drone_id":"drone-1"`)
	assert.Contains(t, buf.String(), `"serial_number":"SN-9"`)
}

func TestListOperators(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.AddOperator(&model.Operator{ID: "op1", Name: "Ops"}))

	rec := h.do(t, http.MethodGet, "/api/v1/operators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []model.Operator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "Ops", ops[0].Name)
}

func TestMetricsWiring(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := observability.NewAPICollector(reg)
	require.NoError(t, err)
	h := newHarness(t, func(c *Config) {
		c.Metrics = col.Middleware
		c.MetricsHandler = col.Handler()
	})

	h.do(t, http.MethodGet, "/api/v1/flightplans/nope", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(col.HTTPRequests.WithLabelValues("/api/v1/flightplans/{id}", http.MethodGet, "404")))

	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flightsim_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrBadRequest, http.StatusBadRequest},
		{fmt.Errorf("x: %w", kb.ErrInvalidFlightPlan), http.StatusBadRequest},
		{kb.ErrDroneNotFound, http.StatusNotFound},
		{ledger.ErrOperatorNotFound, http.StatusNotFound},
		{kb.ErrDroneExists, http.StatusConflict},
		{&ledger.UpstreamError{Op: "x", StatusCode: 503}, http.StatusBadGateway},
		{errors.New("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "StatusFor(%v)", tt.err)
	}
}
