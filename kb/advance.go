package kb

import (
	"fmt"

	"github.com/signalsfoundry/flightplan-simulator/model"
)

// Advancer holds exclusive write access to one flight plan. At most one
// Advancer exists per plan at a time; Release must be called when done.
type Advancer struct {
	kb    *KnowledgeBase
	entry *planEntry
	done  bool
}

// TryAdvance acquires the single-writer lock for flight plan id. ok is false
// when another writer currently holds it.
func (kb *KnowledgeBase) TryAdvance(id string) (adv *Advancer, ok bool, err error) {
	kb.mu.RLock()
	e, exists := kb.plans[id]
	kb.mu.RUnlock()
	if !exists {
		return nil, false, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, id)
	}
	if !e.advance.TryLock() {
		return nil, false, nil
	}
	return &Advancer{kb: kb, entry: e}, true, nil
}

// Release gives up write access. Calling it more than once is a no-op.
func (a *Advancer) Release() {
	if a == nil || a.done {
		return
	}
	a.done = true
	a.entry.advance.Unlock()
}

// PlanID returns the ID of the plan being advanced.
func (a *Advancer) PlanID() string { return a.entry.plan.ID }

// DroneID returns the drone flying the plan.
func (a *Advancer) DroneID() string { return a.entry.plan.DroneID }

// Next returns the first unreached waypoint. ok is false when none remain.
func (a *Advancer) Next() (idx int, wp model.Waypoint, ok bool) {
	a.kb.mu.RLock()
	defer a.kb.mu.RUnlock()
	idx = a.entry.plan.NextWaypoint()
	if idx < 0 {
		return -1, model.Waypoint{}, false
	}
	return idx, a.entry.plan.Waypoints[idx], true
}

// MarkReached flags waypoint idx as reached. Only the first unreached
// waypoint may be marked, so progress is strictly in route order.
func (a *Advancer) MarkReached(idx int) error {
	if a.done {
		return fmt.Errorf("advancer for %q already released", a.entry.plan.ID)
	}
	a.kb.mu.Lock()
	defer a.kb.mu.Unlock()

	plan := a.entry.plan
	if plan.Finished {
		return fmt.Errorf("%w: %q", ErrFlightPlanFinished, plan.ID)
	}
	next := plan.NextWaypoint()
	if idx != next {
		return fmt.Errorf("%w: plan %q waypoint %d, next is %d", ErrWaypointOutOfOrder, plan.ID, idx, next)
	}
	plan.Waypoints[idx].Reached = true
	return nil
}

// Finish marks the plan finished once every waypoint is reached. It returns
// true only for the call that performed the transition, so callers can emit
// exactly one completion record.
func (a *Advancer) Finish() (bool, error) {
	if a.done {
		return false, fmt.Errorf("advancer for %q already released", a.entry.plan.ID)
	}
	a.kb.mu.Lock()
	defer a.kb.mu.Unlock()

	plan := a.entry.plan
	if plan.Finished {
		return false, nil
	}
	if plan.NextWaypoint() >= 0 {
		return false, fmt.Errorf("%w: %q", ErrFlightPlanIncomplete, plan.ID)
	}
	plan.Finished = true
	a.kb.updateMetricsLocked()
	return true, nil
}

// Snapshot returns a copy of the plan as it currently stands.
func (a *Advancer) Snapshot() model.FlightPlan {
	snap, _ := a.kb.SnapshotFlightPlan(a.entry.plan.ID)
	return snap
}
