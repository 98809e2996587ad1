package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

// SimulationCollector exposes simulator metrics. It satisfies the recorder
// interfaces of the flight plan store, the preauthorization workflow and the
// telemetry fanout.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	Decisions       *prometheus.CounterVec
	PlansAuthorized prometheus.Counter
	Emissions       *prometheus.CounterVec
	TickDuration    *prometheus.HistogramVec
	TicksSkipped    *prometheus.CounterVec

	Operators   prometheus.Gauge
	Drones      prometheus.Gauge
	FlightPlans prometheus.Gauge
	ActivePlans prometheus.Gauge
	SimTime     prometheus.Gauge
}

// NewSimulationCollector registers simulator metrics against reg.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightsim_preauth_decisions_total",
		Help: "Preauthorization decisions, labeled by status.",
	}, []string{"status"}), "flightsim_preauth_decisions_total")
	if err != nil {
		return nil, err
	}
	authorized, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightsim_flight_plans_authorized_total",
		Help: "Flight plans written to the store after approval.",
	}), "flightsim_flight_plans_authorized_total")
	if err != nil {
		return nil, err
	}
	emissions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightsim_telemetry_emissions_total",
		Help: "Telemetry deliveries to the ledger, labeled by kind and result.",
	}, []string{"kind", "result"}), "flightsim_telemetry_emissions_total")
	if err != nil {
		return nil, err
	}
	ticks, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightsim_tick_duration_seconds",
		Help:    "Duration of scheduler loop ticks.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"loop"}), "flightsim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	skipped, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightsim_ticks_skipped_total",
		Help: "Ticks dropped because the previous run of the loop was still in flight.",
	}, []string{"loop"}), "flightsim_ticks_skipped_total")
	if err != nil {
		return nil, err
	}

	gauges := make([]prometheus.Gauge, 5)
	for i, g := range []struct{ name, help string }{
		{"flightsim_operators", "Current number of registered operators."},
		{"flightsim_drones", "Current number of registered drones."},
		{"flightsim_flight_plans", "Current number of stored flight plans."},
		{"flightsim_flight_plans_active", "Current number of unfinished flight plans."},
		{"flightsim_sim_time_seconds", "Simulation clock as a Unix timestamp, updated whenever it moves on."},
	} {
		gauges[i], err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
	}

	return &SimulationCollector{
		gatherer:        gatherer,
		Decisions:       decisions,
		PlansAuthorized: authorized,
		Emissions:       emissions,
		TickDuration:    ticks,
		TicksSkipped:    skipped,
		Operators:       gauges[0],
		Drones:          gauges[1],
		FlightPlans:     gauges[2],
		ActivePlans:     gauges[3],
		SimTime:         gauges[4],
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveDecision counts a preauthorization decision.
func (c *SimulationCollector) ObserveDecision(status model.DecisionStatus) {
	if c == nil || c.Decisions == nil {
		return
	}
	c.Decisions.WithLabelValues(string(status)).Inc()
}

// IncPlansAuthorized counts a flight plan written to the store.
func (c *SimulationCollector) IncPlansAuthorized() {
	if c == nil || c.PlansAuthorized == nil {
		return
	}
	c.PlansAuthorized.Inc()
}

// ObserveEmission counts a telemetry delivery.
func (c *SimulationCollector) ObserveEmission(kind string, err error) {
	if c == nil || c.Emissions == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Emissions.WithLabelValues(kind, result).Inc()
}

// ObserveTick records how long one run of a scheduler loop took.
func (c *SimulationCollector) ObserveTick(loop string, d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.WithLabelValues(loop).Observe(d.Seconds())
}

// IncTickSkipped counts a dropped tick.
func (c *SimulationCollector) IncTickSkipped(loop string) {
	if c == nil || c.TicksSkipped == nil {
		return
	}
	c.TicksSkipped.WithLabelValues(loop).Inc()
}

// SetFleetCounts lets the flight plan store drive the gauges from its mutators.
func (c *SimulationCollector) SetFleetCounts(operators, drones, flightPlans, activeFlightPlans int) {
	if c == nil {
		return
	}
	for _, g := range []struct {
		gauge prometheus.Gauge
		value int
	}{
		{c.Operators, operators},
		{c.Drones, drones},
		{c.FlightPlans, flightPlans},
		{c.ActivePlans, activeFlightPlans},
	} {
		if g.gauge != nil {
			g.gauge.Set(float64(g.value))
		}
	}
}

// SetSimTime records the simulation clock. Register it with
// TimeController.AddListener.
func (c *SimulationCollector) SetSimTime(now time.Time) {
	if c == nil || c.SimTime == nil {
		return
	}
	c.SimTime.Set(float64(now.UnixNano()) / 1e9)
}
