package model

import "time"

// DroneStatus is the operational status of a drone.
type DroneStatus string

const (
	DroneActive      DroneStatus = "active"
	DroneMaintenance DroneStatus = "maintenance"
	DroneInactive    DroneStatus = "inactive"
)

// DroneClass is a drone's airframe classification.
type DroneClass string

const (
	DroneClassMedical      DroneClass = "Medical"
	DroneClassCommercial   DroneClass = "Commercial"
	DroneClassRecreational DroneClass = "Recreational"
	DroneClassMilitary     DroneClass = "Military"
)

// AllDroneClasses lists the classifications used when synthesising a fleet.
var AllDroneClasses = []DroneClass{DroneClassMedical, DroneClassCommercial, DroneClassRecreational, DroneClassMilitary}

// Drone is a registered airframe. Drones are append-only in the store.
type Drone struct {
	ID              string      `json:"id"`
	SerialNumber    string      `json:"serialNumber"`
	Class           DroneClass  `json:"droneType"`
	PermittedZones  []ZoneType  `json:"permittedZones"`
	Status          DroneStatus `json:"status"`
	OperatorID      string      `json:"operatorId"`
	CertHashes      []string    `json:"certHashes"`
	MaintenanceHash string      `json:"maintenanceHash,omitempty"`
	RegisteredAt    time.Time   `json:"registeredAt"`
}

// ClassZones returns the zone types a drone of class c is cleared for.
// Restricted airspace is never included.
func ClassZones(c DroneClass) []ZoneType {
	switch c {
	case DroneClassMedical:
		return []ZoneType{ZoneRural, ZoneUrban, ZoneHospitals}
	case DroneClassCommercial:
		return []ZoneType{ZoneRural, ZoneUrban}
	case DroneClassMilitary:
		return []ZoneType{ZoneRural, ZoneMilitary}
	default:
		return []ZoneType{ZoneRural}
	}
}

// Permits reports whether the drone may enter zones of type t.
func (d *Drone) Permits(t ZoneType) bool {
	for _, z := range d.PermittedZones {
		if z == t {
			return true
		}
	}
	return false
}

// Operator is the party responsible for a fleet of drones.
type Operator struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Jurisdiction string    `json:"jurisdiction"`
	RegisteredAt time.Time `json:"registeredAt"`
}
