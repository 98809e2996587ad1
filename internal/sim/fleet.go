package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/internal/rand"
	"github.com/signalsfoundry/flightplan-simulator/kb"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

// EnsureFleet makes sure one operator and up to MaxDrones drones exist.
// Once they do it makes no calls at all. Drones minted before a failure
// stay registered.
func (s *Scheduler) EnsureFleet(ctx context.Context) error {
	if !s.lockFleet(ctx) {
		return ctx.Err()
	}
	defer s.unlockFleet()

	if len(s.store.ListOperators()) > 0 && s.store.DroneCount() >= s.cfg.MaxDrones {
		return nil
	}

	op, err := s.ensureOperator(ctx)
	if err != nil {
		return err
	}

	minted := 0
	for s.store.DroneCount() < s.cfg.MaxDrones {
		d, err := s.mintDrone(ctx, op.ID)
		if err != nil {
			return err
		}
		minted++
		s.log.Info(ctx, "drone registered",
			logging.String("drone_id", d.ID),
			logging.String("class", string(d.Class)),
			logging.Any("permitted_zones", d.PermittedZones),
		)
	}

	if minted > 0 {
		rep, err := s.fleet.OperatorReputation(ctx, op.ID)
		if err != nil {
			s.log.Warn(ctx, "operator reputation lookup failed", logging.String("operator_id", op.ID), logging.Err(err))
		} else {
			s.log.Info(ctx, "fleet ready",
				logging.String("operator_id", op.ID),
				logging.Int("drones", s.store.DroneCount()),
				logging.Float64("reputation", rep.Score),
			)
		}
	}
	return nil
}

// ensureOperator returns the stored operator, registering it first if this
// process has not seen it yet. A failed "already registered" lookup is
// logged and does not stop registration.
func (s *Scheduler) ensureOperator(ctx context.Context) (*model.Operator, error) {
	if ops := s.store.ListOperators(); len(ops) > 0 {
		return ops[0], nil
	}

	op := model.Operator{
		ID:           s.cfg.OperatorID,
		Name:         s.cfg.OperatorName,
		Email:        "ops@" + strings.ReplaceAll(s.cfg.OperatorID, " ", "-") + ".example",
		Jurisdiction: "US",
	}
	existing, err := s.fleet.OperatorInfo(ctx, op.ID)
	switch {
	case err == nil:
		s.log.Info(ctx, "operator already registered with ledger", logging.String("operator_id", op.ID))
		if existing.ID != "" {
			op = existing
		}
	case errors.Is(err, ledger.ErrOperatorNotFound):
		if err := s.fleet.RegisterOperator(ctx, op); err != nil {
			return nil, fmt.Errorf("register operator %q: %w", op.ID, err)
		}
	default:
		s.log.Warn(ctx, "operator lookup failed; registering anyway", logging.String("operator_id", op.ID), logging.Err(err))
		if err := s.fleet.RegisterOperator(ctx, op); err != nil {
			return nil, fmt.Errorf("register operator %q: %w", op.ID, err)
		}
	}

	if err := s.store.AddOperator(&op); err != nil && !errors.Is(err, kb.ErrOperatorExists) {
		return nil, err
	}
	return s.store.GetOperator(op.ID)
}

func (s *Scheduler) mintDrone(ctx context.Context, operatorID string) (*model.Drone, error) {
	class, _ := rand.Sample(s.rng, model.AllDroneClasses)
	zones := model.ClassZones(class)
	serial := "SN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	certs := []string{digest(serial, "airworthiness"), digest(serial, "radio")}

	res, err := s.fleet.MintDrone(ctx, ledger.DroneRegistration{
		Class:           class,
		PermittedZones:  zones,
		OwnerHistory:    []string{operatorID},
		SerialNumber:    serial,
		CertHashes:      certs,
		MaintenanceHash: digest(serial, "maintenance"),
		Status:          model.DroneActive,
	})
	if err != nil {
		return nil, err
	}

	d := &model.Drone{
		ID:              res.DroneID,
		SerialNumber:    serial,
		Class:           class,
		PermittedZones:  zones,
		Status:          model.DroneActive,
		OperatorID:      operatorID,
		CertHashes:      certs,
		MaintenanceHash: digest(serial, "maintenance"),
	}
	if err := s.store.AddDrone(d); err != nil {
		return nil, err
	}
	return d, nil
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "/")))
	return hex.EncodeToString(sum[:])
}
