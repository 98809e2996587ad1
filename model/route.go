package model

import "time"

// Position is a single point along a route. Altitude is in metres.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Altitude  float64 `json:"altitude"`
}

// RouteCharacteristics is the derived, never persisted, summary of a route
// that is submitted to the route-permission authority.
type RouteCharacteristics struct {
	DroneID     string     `json:"droneId"`
	MaxAltitude int        `json:"maxAltitude"`
	Zones       []ZoneType `json:"zones"`
}

// FlightPlanRequest is the candidate plan carried by a preauthorization request.
type FlightPlanRequest struct {
	Route     []Position `json:"route"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
}

// DecisionStatus is the outcome of a preauthorization.
type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "APPROVED"
	DecisionFailed   DecisionStatus = "FAILED"
)

// Decision is the normalised preauthorization result. Reason is empty for
// approvals unless the authority supplied one.
type Decision struct {
	DroneID string         `json:"droneId"`
	Status  DecisionStatus `json:"status"`
	Reason  string         `json:"reason,omitempty"`
}

// Approved reports whether the decision allows the flight.
func (d Decision) Approved() bool { return d.Status == DecisionApproved }

// Approve builds an approval for droneID.
func Approve(droneID, reason string) Decision {
	return Decision{DroneID: droneID, Status: DecisionApproved, Reason: reason}
}

// Fail builds a failed decision for droneID.
func Fail(droneID, reason string) Decision {
	return Decision{DroneID: droneID, Status: DecisionFailed, Reason: reason}
}
