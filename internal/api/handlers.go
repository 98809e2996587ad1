package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

type preAuthorizeRequest struct {
	DroneID    string                   `json:"droneId"`
	FlightPlan *model.FlightPlanRequest `json:"flightPlan"`
}

// preAuthorize always answers 200 with a Decision once the body parses;
// workflow failures are carried in the decision itself.
func (s *Server) preAuthorize(w http.ResponseWriter, r *http.Request) {
	var req preAuthorizeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.PreAuth.PreAuthorize(r.Context(), req.DroneID, req.FlightPlan))
}

type characterizeRequest struct {
	DroneID string           `json:"droneId"`
	Route   []model.Position `json:"route"`
}

func (s *Server) characterize(w http.ResponseWriter, r *http.Request) {
	var req characterizeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Route) == 0 {
		writeError(w, r, fmt.Errorf("%w: route is required", ErrBadRequest))
		return
	}
	rc, err := s.cfg.Characterizer.Characterize(r.Context(), req.DroneID, req.Route)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.cfg.Zones.Zones(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if zones == nil {
		zones = []model.Zone{}
	}
	writeJSON(w, http.StatusOK, zones)
}

// refreshZones drops the cached zone set and answers with a fresh read
// from the ledger.
func (s *Server) refreshZones(w http.ResponseWriter, r *http.Request) {
	s.cfg.ZoneCache.Invalidate()
	requestLogger(r).Info(r.Context(), "zone cache invalidated")
	s.listZones(w, r)
}

func (s *Server) listFlightPlans(w http.ResponseWriter, r *http.Request) {
	plans := s.cfg.Store.ListFlightPlans()
	if plans == nil {
		plans = []model.FlightPlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) getFlightPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.cfg.Store.SnapshotFlightPlan(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) listDrones(w http.ResponseWriter, r *http.Request) {
	drones := s.cfg.Store.ListDrones()
	if drones == nil {
		drones = []*model.Drone{}
	}
	writeJSON(w, http.StatusOK, drones)
}

func (s *Server) getDrone(w http.ResponseWriter, r *http.Request) {
	d, err := s.cfg.Store.GetDrone(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type registerDroneRequest struct {
	ledger.DroneRegistration
	OperatorID string `json:"operatorId"`
}

// registerDrone mints the drone on the ledger and then records it locally.
// An operator, when named, must already be known to the store.
func (s *Server) registerDrone(w http.ResponseWriter, r *http.Request) {
	var req registerDroneRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Status == "" {
		req.Status = model.DroneActive
	}
	if req.OperatorID != "" {
		if _, err := s.cfg.Store.GetOperator(req.OperatorID); err != nil {
			writeError(w, r, err)
			return
		}
		if len(req.OwnerHistory) == 0 {
			req.OwnerHistory = []string{req.OperatorID}
		}
	}

	minted, err := s.cfg.Minter.MintDrone(r.Context(), req.DroneRegistration)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d := &model.Drone{
		ID:              minted.DroneID,
		SerialNumber:    req.SerialNumber,
		Class:           req.Class,
		PermittedZones:  req.PermittedZones,
		Status:          req.Status,
		OperatorID:      req.OperatorID,
		CertHashes:      req.CertHashes,
		MaintenanceHash: req.MaintenanceHash,
	}
	if err := s.cfg.Store.AddDrone(d); err != nil {
		// The ledger already holds this drone; keep its id recoverable.
		requestLogger(r).Error(r.Context(), "minted drone not recorded locally",
			logging.String("drone_id", minted.DroneID),
			logging.String("serial_number", req.SerialNumber),
			logging.Err(err),
		)
		writeError(w, r, err)
		return
	}
	requestLogger(r).Info(r.Context(), "drone registered",
		logging.String("drone_id", d.ID),
		logging.String("serial_number", d.SerialNumber),
	)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) listOperators(w http.ResponseWriter, r *http.Request) {
	ops := s.cfg.Store.ListOperators()
	if ops == nil {
		ops = []*model.Operator{}
	}
	writeJSON(w, http.StatusOK, ops)
}
