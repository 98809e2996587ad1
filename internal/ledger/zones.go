package ledger

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/signalsfoundry/flightplan-simulator/core"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

const zonesKey = "zones"

// ZoneLister is the subset of Client used by CachedZoneSource.
type ZoneLister interface {
	Zones(ctx context.Context) ([]model.Zone, error)
}

// CachedZoneSource serves prepared zones from a short-lived cache in front of
// the ledger. A non-positive TTL disables caching.
type CachedZoneSource struct {
	lister ZoneLister
	cache  *expirable.LRU[string, []*core.PreparedZone]
	log    logging.Logger
}

// NewCachedZoneSource wraps lister with a cache of the given TTL.
func NewCachedZoneSource(lister ZoneLister, ttl time.Duration, log logging.Logger) *CachedZoneSource {
	if log == nil {
		log = logging.Noop()
	}
	s := &CachedZoneSource{lister: lister, log: log}
	if ttl > 0 {
		s.cache = expirable.NewLRU[string, []*core.PreparedZone](1, nil, ttl)
	}
	return s
}

// PreparedZones returns the current zone set. Zones with unusable geometry
// are skipped and logged.
func (s *CachedZoneSource) PreparedZones(ctx context.Context) ([]*core.PreparedZone, error) {
	if s.cache != nil {
		if zones, ok := s.cache.Get(zonesKey); ok {
			return zones, nil
		}
	}
	raw, err := s.lister.Zones(ctx)
	if err != nil {
		return nil, err
	}
	prepared, perr := core.PrepareZones(raw)
	if perr != nil {
		s.log.Warn(ctx, "skipping invalid zones",
			logging.Int("received", len(raw)),
			logging.Int("usable", len(prepared)),
			logging.Err(perr),
		)
	}
	if s.cache != nil {
		s.cache.Add(zonesKey, prepared)
	}
	return prepared, nil
}

// Zones returns the raw zone definitions behind the prepared set.
func (s *CachedZoneSource) Zones(ctx context.Context) ([]model.Zone, error) {
	prepared, err := s.PreparedZones(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Zone, len(prepared))
	for i, z := range prepared {
		out[i] = z.Zone
	}
	return out, nil
}

// Invalidate drops the cached zone set.
func (s *CachedZoneSource) Invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
