package sim

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config controls the scheduler's pacing and traffic mix.
type Config struct {
	AuthInterval      time.Duration
	TelemetryInterval time.Duration
	StepDelay         time.Duration

	// MaxSteps caps how many waypoints one plan advances per telemetry tick.
	MaxSteps int
	// ViolationEvery makes every Nth step of a tick report off-route.
	ViolationEvery int

	AttemptsPerTick int
	// ValidAttempts is how many of each tick's attempts use valid routes.
	ValidAttempts int
	MaxDrones     int

	// PlanLead and PlanDuration set a new plan's authorized window
	// relative to the time it was requested.
	PlanLead     time.Duration
	PlanDuration time.Duration

	OperatorID   string
	OperatorName string

	// Seed fixes the random source. Zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns the stock pacing: a one-minute authorization tick
// and a ten-second telemetry tick.
func DefaultConfig() Config {
	return Config{
		AuthInterval:      time.Minute,
		TelemetryInterval: 10 * time.Second,
		StepDelay:         time.Second,
		MaxSteps:          40,
		ViolationEvery:    30,
		AttemptsPerTick:   3,
		ValidAttempts:     2,
		MaxDrones:         3,
		PlanLead:          5 * time.Minute,
		PlanDuration:      30 * time.Minute,
		OperatorID:        "flightsim-operator",
		OperatorName:      "Flight Simulator Operator",
	}
}

// ConfigFromEnv overlays SIM_* environment variables on DefaultConfig.
// Malformed values are reported rather than ignored.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var errs []error
	durations := map[string]*time.Duration{
		"SIM_AUTH_INTERVAL":      &cfg.AuthInterval,
		"SIM_TELEMETRY_INTERVAL": &cfg.TelemetryInterval,
		"SIM_STEP_DELAY":         &cfg.StepDelay,
		"SIM_PLAN_LEAD":          &cfg.PlanLead,
		"SIM_PLAN_DURATION":      &cfg.PlanDuration,
	}
	for key, dst := range durations {
		if raw := os.Getenv(key); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = d
		}
	}
	ints := map[string]*int{
		"SIM_MAX_STEPS":         &cfg.MaxSteps,
		"SIM_VIOLATION_EVERY":   &cfg.ViolationEvery,
		"SIM_ATTEMPTS_PER_TICK": &cfg.AttemptsPerTick,
		"SIM_VALID_ATTEMPTS":    &cfg.ValidAttempts,
		"SIM_MAX_DRONES":        &cfg.MaxDrones,
	}
	for key, dst := range ints {
		if raw := os.Getenv(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = n
		}
	}
	if raw := os.Getenv("SIM_SEED"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIM_SEED: %w", err))
		} else {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("SIM_OPERATOR_ID"); v != "" {
		cfg.OperatorID = v
	}
	if v := os.Getenv("SIM_OPERATOR_NAME"); v != "" {
		cfg.OperatorName = v
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the scheduler cannot run with.
func (c Config) Validate() error {
	switch {
	case c.AuthInterval <= 0 || c.TelemetryInterval <= 0:
		return errors.New("tick intervals must be positive")
	case c.StepDelay < 0:
		return errors.New("step delay must not be negative")
	case c.MaxSteps <= 0:
		return errors.New("max steps must be positive")
	case c.ViolationEvery <= 0:
		return errors.New("violation cadence must be positive")
	case c.AttemptsPerTick < 0 || c.ValidAttempts < 0:
		return errors.New("attempt counts must not be negative")
	case c.MaxDrones <= 0:
		return errors.New("max drones must be positive")
	case c.OperatorID == "":
		return errors.New("operator id is required")
	}
	return nil
}
