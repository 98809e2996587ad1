package ledger

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/flightplan-simulator/model"
)

var (
	// ErrZoneLimits is returned when the zone list cannot be retrieved.
	ErrZoneLimits = errors.New("failed to retrieve zone limits")
	// ErrDroneMint is returned when a drone cannot be registered on the ledger.
	ErrDroneMint = errors.New("failed to add drone to blockchain")
	// ErrOperatorNotFound is returned when the ledger has no record of an operator.
	ErrOperatorNotFound = errors.New("operator not registered")
	// ErrUpstream marks any non-success response from the ledger.
	ErrUpstream = errors.New("upstream request failed")
	// ErrInvalidRequest marks validation failures detected before any call is made.
	ErrInvalidRequest = errors.New("invalid request")
)

// UpstreamError describes a non-success HTTP response.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
}

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// DroneRegistration is the mint payload for a new drone.
type DroneRegistration struct {
	Class           model.DroneClass  `json:"droneType"`
	PermittedZones  []model.ZoneType  `json:"permittedZones"`
	OwnerHistory    []string          `json:"ownerHistory"`
	SerialNumber    string            `json:"serialNumber"`
	CertHashes      []string          `json:"certHashes"`
	MaintenanceHash string            `json:"maintenanceHash"`
	Status          model.DroneStatus `json:"status"`
}

// Validate checks the fields the ledger requires.
func (r DroneRegistration) Validate() error {
	switch {
	case r.SerialNumber == "":
		return fmt.Errorf("%w: serial number is required", ErrInvalidRequest)
	case len(r.CertHashes) == 0:
		return fmt.Errorf("%w: certification hashes are required", ErrInvalidRequest)
	case len(r.PermittedZones) == 0:
		return fmt.Errorf("%w: permitted zones are required", ErrInvalidRequest)
	}
	for _, h := range r.CertHashes {
		if h == "" {
			return fmt.Errorf("%w: certification hashes must be non-empty", ErrInvalidRequest)
		}
	}
	for _, z := range r.PermittedZones {
		if !z.Valid() {
			return fmt.Errorf("%w: unknown zone type %q", ErrInvalidRequest, z)
		}
	}
	return nil
}

// MintResult is the ledger's response to a drone mint.
type MintResult struct {
	DroneID         string            `json:"droneId"`
	TokenID         string            `json:"tokenId,omitempty"`
	Class           model.DroneClass  `json:"droneType"`
	PermittedZones  []model.ZoneType  `json:"permittedZones"`
	OwnerHistory    []string          `json:"ownerHistory"`
	SerialNumber    string            `json:"serialNumber"`
	CertHashes      []string          `json:"certHashes"`
	MaintenanceHash string            `json:"maintenanceHash"`
	Status          model.DroneStatus `json:"status"`
}

// Reputation is an operator's standing as reported by the ledger.
type Reputation struct {
	OperatorID string  `json:"operatorId"`
	Score      float64 `json:"reputationScore"`
	Violations int     `json:"violations"`
}

type decisionPayload struct {
	DroneID string `json:"droneId"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}
