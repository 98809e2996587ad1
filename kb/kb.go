package kb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brunoga/deep"
	"github.com/google/uuid"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

var (
	// ErrOperatorExists indicates an operator with the same ID is already stored.
	ErrOperatorExists = errors.New("operator already exists")
	// ErrOperatorNotFound indicates a requested operator was not found.
	ErrOperatorNotFound = errors.New("operator not found")
	// ErrDroneExists indicates a drone with the same ID is already stored.
	ErrDroneExists = errors.New("drone already exists")
	// ErrDroneNotFound indicates a requested drone was not found.
	ErrDroneNotFound = errors.New("drone not found")
	// ErrFlightPlanNotFound indicates a requested flight plan was not found.
	ErrFlightPlanNotFound = errors.New("flight plan not found")
	// ErrAuthorizationFailed wraps any failure to append a new flight plan.
	ErrAuthorizationFailed = errors.New("flight plan authorization failed")
	// ErrInvalidFlightPlan indicates a flight plan failed validation.
	ErrInvalidFlightPlan = errors.New("invalid flight plan")
	// ErrWaypointOutOfOrder indicates an attempt to reach a waypoint before its predecessors.
	ErrWaypointOutOfOrder = errors.New("waypoint reached out of order")
	// ErrFlightPlanFinished indicates the flight plan no longer accepts progress.
	ErrFlightPlanFinished = errors.New("flight plan already finished")
	// ErrFlightPlanIncomplete indicates a finish attempt while waypoints remain.
	ErrFlightPlanIncomplete = errors.New("flight plan has unreached waypoints")
)

// MetricsRecorder receives count updates for stored entities.
type MetricsRecorder interface {
	SetFleetCounts(operators, drones, flightPlans, activeFlightPlans int)
}

// Option customises KnowledgeBase construction.
type Option func(*KnowledgeBase)

// WithMetricsRecorder attaches an optional recorder for entity counts.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(kb *KnowledgeBase) {
		kb.metrics = m
	}
}

// WithIDGenerator overrides how flight plan IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(kb *KnowledgeBase) {
		if fn != nil {
			kb.newID = fn
		}
	}
}

// WithClock overrides the time source used for registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(kb *KnowledgeBase) {
		if now != nil {
			kb.now = now
		}
	}
}

// KnowledgeBase is an in-memory, thread-safe store for operators, drones and
// flight plans. Its lifecycle is one simulation run; nothing is persisted.
type KnowledgeBase struct {
	mu sync.RWMutex

	operators     map[string]*model.Operator
	operatorOrder []string
	drones        map[string]*model.Drone
	droneOrder    []string
	plans         map[string]*planEntry
	planOrder     []string

	metrics MetricsRecorder
	newID   func() string
	now     func() time.Time
}

// planEntry pairs a stored plan with the lock that serialises its writers.
type planEntry struct {
	advance sync.Mutex
	plan    *model.FlightPlan
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(kb)
		}
	}
	kb.resetLocked()
	return kb
}

// Reset drops every stored entity. It is meant for initialization and test
// boundaries only.
func (kb *KnowledgeBase) Reset() {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.resetLocked()
}

func (kb *KnowledgeBase) resetLocked() {
	kb.operators = make(map[string]*model.Operator)
	kb.operatorOrder = nil
	kb.drones = make(map[string]*model.Drone)
	kb.droneOrder = nil
	kb.plans = make(map[string]*planEntry)
	kb.planOrder = nil
	kb.updateMetricsLocked()
}

// AddOperator stores a new operator. It returns an error if the ID already exists.
func (kb *KnowledgeBase) AddOperator(op *model.Operator) error {
	if op == nil || op.ID == "" {
		return fmt.Errorf("operator ID is required")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.operators[op.ID]; exists {
		return fmt.Errorf("%w: %q", ErrOperatorExists, op.ID)
	}
	if op.RegisteredAt.IsZero() {
		op.RegisteredAt = kb.now().UTC()
	}
	kb.operators[op.ID] = op
	kb.operatorOrder = append(kb.operatorOrder, op.ID)
	kb.updateMetricsLocked()
	return nil
}

// GetOperator returns the operator with the given ID.
func (kb *KnowledgeBase) GetOperator(id string) (*model.Operator, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	op, ok := kb.operators[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOperatorNotFound, id)
	}
	return op, nil
}

// ListOperators returns operators in registration order.
func (kb *KnowledgeBase) ListOperators() []*model.Operator {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.Operator, 0, len(kb.operatorOrder))
	for _, id := range kb.operatorOrder {
		res = append(res, kb.operators[id])
	}
	return res
}

// AddDrone appends a drone. The owning operator, when set, must exist.
func (kb *KnowledgeBase) AddDrone(d *model.Drone) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("drone ID is required")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.drones[d.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDroneExists, d.ID)
	}
	if d.OperatorID != "" {
		if _, ok := kb.operators[d.OperatorID]; !ok {
			return fmt.Errorf("%w: %q referenced by drone %q", ErrOperatorNotFound, d.OperatorID, d.ID)
		}
	}
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = kb.now().UTC()
	}
	kb.drones[d.ID] = d
	kb.droneOrder = append(kb.droneOrder, d.ID)
	kb.updateMetricsLocked()
	return nil
}

// GetDrone returns the drone with the given ID.
func (kb *KnowledgeBase) GetDrone(id string) (*model.Drone, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	d, ok := kb.drones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDroneNotFound, id)
	}
	return d, nil
}

// ListDrones returns drones in registration order.
func (kb *KnowledgeBase) ListDrones() []*model.Drone {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.Drone, 0, len(kb.droneOrder))
	for _, id := range kb.droneOrder {
		res = append(res, kb.drones[id])
	}
	return res
}

// DroneCount returns the number of stored drones.
func (kb *KnowledgeBase) DroneCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.drones)
}

// AuthorizeFlightPlan creates a flight plan with every waypoint unreached and
// appends it to the store. The returned pointer is the stored value, so later
// progress made by the telemetry loop is visible through it. Readers never
// observe a partially built record: the plan is fully constructed before it
// is published under the write lock.
func (kb *KnowledgeBase) AuthorizeFlightPlan(droneID string, route []model.Position, start, end time.Time, zones []model.ZoneType) (*model.FlightPlan, error) {
	if droneID == "" {
		return nil, fmt.Errorf("%w: %w: drone ID is required", ErrAuthorizationFailed, ErrInvalidFlightPlan)
	}
	if len(route) == 0 {
		return nil, fmt.Errorf("%w: %w: route is empty", ErrAuthorizationFailed, ErrInvalidFlightPlan)
	}

	waypoints := make([]model.Waypoint, len(route))
	for i, p := range route {
		waypoints[i] = model.Waypoint{Position: p}
	}
	plan := &model.FlightPlan{
		ID:        kb.newID(),
		DroneID:   droneID,
		Waypoints: waypoints,
		StartTime: start,
		EndTime:   end,
		Zones:     append([]model.ZoneType(nil), zones...),
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if _, exists := kb.plans[plan.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate flight plan ID %q", ErrAuthorizationFailed, plan.ID)
	}
	kb.plans[plan.ID] = &planEntry{plan: plan}
	kb.planOrder = append(kb.planOrder, plan.ID)
	kb.updateMetricsLocked()
	return plan, nil
}

// FlightPlan returns the stored flight plan. Its progress flags are written
// by the telemetry loop, so concurrent readers should prefer SnapshotFlightPlan.
func (kb *KnowledgeBase) FlightPlan(id string) (*model.FlightPlan, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, id)
	}
	return e.plan, nil
}

// SnapshotFlightPlan returns a deep copy of the flight plan that is safe to
// read while the plan keeps advancing.
func (kb *KnowledgeBase) SnapshotFlightPlan(id string) (model.FlightPlan, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.plans[id]
	if !ok {
		return model.FlightPlan{}, fmt.Errorf("%w: %q", ErrFlightPlanNotFound, id)
	}
	return deep.MustCopy(*e.plan), nil
}

// ListFlightPlans returns deep copies of every flight plan in authorization order.
func (kb *KnowledgeBase) ListFlightPlans() []model.FlightPlan {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.FlightPlan, 0, len(kb.planOrder))
	for _, id := range kb.planOrder {
		res = append(res, deep.MustCopy(*kb.plans[id].plan))
	}
	return res
}

// ActiveFlightPlanIDs returns IDs of unfinished plans in authorization order.
func (kb *KnowledgeBase) ActiveFlightPlanIDs() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var ids []string
	for _, id := range kb.planOrder {
		if !kb.plans[id].plan.Finished {
			ids = append(ids, id)
		}
	}
	return ids
}

func (kb *KnowledgeBase) updateMetricsLocked() {
	if kb.metrics == nil {
		return
	}
	active := 0
	for _, e := range kb.plans {
		if !e.plan.Finished {
			active++
		}
	}
	kb.metrics.SetFleetCounts(len(kb.operators), len(kb.drones), len(kb.plans), active)
}
