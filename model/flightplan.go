package model

import "time"

// Waypoint is one point of a FlightPlan with its progress flag.
type Waypoint struct {
	Position
	Reached bool `json:"reached"`
}

// FlightPlan is an authorized, ordered sequence of waypoints. It is created
// only by a successful authorization and is never deleted, only finished.
type FlightPlan struct {
	ID        string     `json:"id"`
	DroneID   string     `json:"droneId"`
	Waypoints []Waypoint `json:"waypoints"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Zones     []ZoneType `json:"zones"`
	Finished  bool       `json:"finished"`
}

// NextWaypoint returns the index of the first unreached waypoint, or -1 when
// every waypoint has been reached.
func (fp *FlightPlan) NextWaypoint() int {
	for i := range fp.Waypoints {
		if !fp.Waypoints[i].Reached {
			return i
		}
	}
	return -1
}

// Path returns the plan's waypoints as bare positions.
func (fp *FlightPlan) Path() []Position {
	path := make([]Position, len(fp.Waypoints))
	for i, wp := range fp.Waypoints {
		path[i] = wp.Position
	}
	return path
}
