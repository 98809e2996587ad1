package model

import "time"

// LocationUpdate is the per-step position report for a drone in flight.
type LocationUpdate struct {
	DroneID      string    `json:"droneId"`
	FlightPlanID string    `json:"flightPlanId"`
	Position     Position  `json:"position"`
	Timestamp    time.Time `json:"timestamp"`
}

// Violation reports a drone observed away from its authorized route.
type Violation struct {
	DroneID      string    `json:"droneId"`
	FlightPlanID string    `json:"flightPlanId"`
	Kind         string    `json:"violationType"`
	Position     Position  `json:"position"`
	Expected     Position  `json:"expectedPosition"`
	Timestamp    time.Time `json:"timestamp"`
}

// ViolationOffRoute is the only violation kind the simulator produces.
const ViolationOffRoute = "OFF_ROUTE"

// RouteLog is the completion record emitted once per finished flight plan.
// Times are unix seconds.
type RouteLog struct {
	DroneID      string     `json:"droneId"`
	FlightPlanID string     `json:"flightPlanId"`
	StartPoint   Position   `json:"startPoint"`
	EndPoint     Position   `json:"endPoint"`
	Path         []Position `json:"route"`
	Zones        []ZoneType `json:"zones"`
	StartTime    int64      `json:"startTime"`
	EndTime      int64      `json:"endTime"`
}
