package model

// ZoneType classifies an airspace zone.
type ZoneType string

const (
	ZoneRural      ZoneType = "rural"
	ZoneUrban      ZoneType = "urban"
	ZoneHospitals  ZoneType = "hospitals"
	ZoneMilitary   ZoneType = "military"
	ZoneRestricted ZoneType = "restricted"
)

// AllZoneTypes lists every zone classification in a stable order.
var AllZoneTypes = []ZoneType{ZoneRural, ZoneUrban, ZoneHospitals, ZoneMilitary, ZoneRestricted}

// Valid reports whether t is one of the known classifications.
func (t ZoneType) Valid() bool {
	for _, known := range AllZoneTypes {
		if t == known {
			return true
		}
	}
	return false
}

// LatLng is a single polygon vertex in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zone is a named, classified, altitude-bounded polygonal airspace region.
// Boundary is implicitly closed; it is never mutated after ingestion.
type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        ZoneType `json:"zoneType"`
	Boundary    []LatLng `json:"coordinates"`
	MinAltitude float64  `json:"minAltitude"`
	MaxAltitude float64  `json:"maxAltitude"`
	Active      bool     `json:"isActive"`
}

// DefaultZones returns zones unchanged unless it is empty, in which case the
// most conservative classification is substituted.
func DefaultZones(zones []ZoneType) []ZoneType {
	if len(zones) == 0 {
		return []ZoneType{ZoneRestricted}
	}
	return zones
}
