// SPDX-License-Identifier: MIT

// Package carfsm implements the door/motion operation loop that owns a
// car's control block and advances it through Closed, Opening, Open,
// Closing and Between.
package carfsm

import (
	"context"
	"errors"
	"time"

	"github.com/kempy-elevator/fabric/internal/controlblock"
	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/kempy-elevator/fabric/internal/metrics"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"github.com/rs/zerolog"
)

// Machine drives one car's door/motion state machine against its control
// block, one tick at a time. Every tick acts under the block's lock, then
// releases it across any pacing sleep.
type Machine struct {
	Block   *controlblock.Block
	Delay   time.Duration
	CarName string
	Logger  zerolog.Logger
}

// New constructs a Machine with a component-scoped logger.
func New(block *controlblock.Block, delay time.Duration, carName string) *Machine {
	return &Machine{
		Block:   block,
		Delay:   delay,
		CarName: carName,
		Logger: xlog.Derive(func(c *zerolog.Context) {
			*c = c.Str("component", "operation").Str(xlog.FieldCarName, carName)
		}),
	}
}

// Run drives the state machine until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, err := m.Block.Snapshot()
		if err != nil {
			return err
		}
		metrics.SetControlBlockVersion(m.CarName, rec.Version)

		switch rec.Status {
		case controlblock.Closed:
			err = m.tickClosed(ctx, rec)
		case controlblock.Between:
			err = m.moveOneFloor(ctx)
		case controlblock.Opening:
			err = m.tickOpening(ctx)
		case controlblock.Open:
			err = m.tickOpen(ctx, rec.IndividualServiceMode || rec.EmergencyMode)
		case controlblock.Closing:
			err = m.tickClosing(ctx)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
	}
}

func (m *Machine) transition(from, to controlblock.Status) {
	m.Logger.Info().
		Str(xlog.FieldOldState, from.String()).
		Str(xlog.FieldNewState, to.String()).
		Msg("state transition")
	metrics.RecordTransition(m.CarName, to.String())
}

// autoMotion reports whether the Closed state should start moving toward
// destination_floor on its own. Emergency mode halts all automatic motion:
// the car remains at current_floor until it clears. Individual service
// mode does not gate this transition — in service mode, only the internal
// CLI's up/down ops ever populate destination_floor in the first place, so
// the same Closed->Between path used for controller-issued moves also
// carries service-mode moves, one floor at a time.
func autoMotion(rec controlblock.Record) bool {
	return !rec.EmergencyMode && rec.DestinationFloor != rec.CurrentFloor
}

func (m *Machine) tickClosed(ctx context.Context, rec controlblock.Record) error {
	switch {
	case rec.OpenButton:
		return m.Block.Mutate(func(r *controlblock.Record) error {
			m.transition(r.Status, controlblock.Opening)
			r.Status = controlblock.Opening
			r.OpenButton = false
			return nil
		})
	case autoMotion(rec):
		return m.Block.Mutate(func(r *controlblock.Record) error {
			m.transition(r.Status, controlblock.Between)
			r.Status = controlblock.Between
			return nil
		})
	default:
		// Idle: block until something changes the decision, rather than
		// busy-polling at the pacing delay (which may be large).
		_, err := m.Block.WaitFor(ctx, func(r controlblock.Record) bool {
			return r.OpenButton || autoMotion(r)
		})
		return err
	}
}

// moveOneFloor implements the Between step: release the lock, wait one
// delay, re-acquire, move one floor toward destination_floor. Arrival
// transitions to Opening; otherwise the car returns to Closed to continue
// motion on the next tick.
func (m *Machine) moveOneFloor(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Delay):
	}

	return m.Block.Mutate(func(r *controlblock.Record) error {
		dir := floor.Up
		if int(r.DestinationFloor) < int(r.CurrentFloor) {
			dir = floor.Down
		}
		next, err := floor.Step(int(r.CurrentFloor), dir, r.Range())
		if err != nil {
			// Destination became unreachable (shouldn't happen: writers
			// validate range before setting destination_floor); hold in
			// place rather than corrupt current_floor.
			r.Status = controlblock.Closed
			return nil
		}
		r.CurrentFloor = int32(next)
		if r.CurrentFloor == r.DestinationFloor {
			m.transition(controlblock.Between, controlblock.Opening)
			r.Status = controlblock.Opening
		} else {
			m.transition(controlblock.Between, controlblock.Closed)
			r.Status = controlblock.Closed
		}
		return nil
	})
}

func (m *Machine) tickOpening(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Delay):
	}
	return m.Block.Mutate(func(r *controlblock.Record) error {
		m.transition(controlblock.Opening, controlblock.Open)
		r.Status = controlblock.Open
		return nil
	})
}

// tickOpen implements the Open state's button tie-break and, outside
// individual service mode and emergency mode, the auto-close timeout.
// Emergency mode only halts motion (spec §4.4); it still honours door
// button presses so passengers can let themselves out, but it must not
// auto-close on a bystander who hasn't pressed anything.
func (m *Machine) tickOpen(ctx context.Context, holdOpen bool) error {
	waitCtx := ctx
	var cancel context.CancelFunc
	if !holdOpen {
		waitCtx, cancel = context.WithTimeout(ctx, m.Delay)
		defer cancel()
	}

	rec, err := m.Block.WaitFor(waitCtx, func(r controlblock.Record) bool {
		return r.CloseButton || r.OpenButton
	})

	switch {
	case err == nil:
		// Open wins a simultaneous press: clear both buttons and keep
		// holding the door open.
		if rec.OpenButton {
			return m.Block.Mutate(func(r *controlblock.Record) error {
				r.OpenButton = false
				r.CloseButton = false
				return nil
			})
		}
		return m.Block.Mutate(func(r *controlblock.Record) error {
			m.transition(controlblock.Open, controlblock.Closing)
			r.Status = controlblock.Closing
			r.CloseButton = false
			return nil
		})

	case errors.Is(err, context.DeadlineExceeded) && !holdOpen:
		return m.Block.Mutate(func(r *controlblock.Record) error {
			if r.DoorObstruction || r.Overload {
				return nil // stays Open; re-evaluated next tick
			}
			m.transition(controlblock.Open, controlblock.Closing)
			r.Status = controlblock.Closing
			return nil
		})

	default:
		return err
	}
}

// tickClosing implements the Closing state: obstruction (and, by the same
// "overload inhibits Closing" rule, overload) immediately re-opens the
// door; otherwise it finishes closing after one delay.
func (m *Machine) tickClosing(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.Delay)
	defer cancel()

	rec, err := m.Block.WaitFor(waitCtx, func(r controlblock.Record) bool {
		return r.OpenButton || r.DoorObstruction || r.Overload
	})

	switch {
	case err == nil:
		return m.Block.Mutate(func(r *controlblock.Record) error {
			m.transition(controlblock.Closing, controlblock.Opening)
			r.Status = controlblock.Opening
			r.OpenButton = false
			return nil
		})

	case errors.Is(err, context.DeadlineExceeded):
		return m.Block.Mutate(func(r *controlblock.Record) error {
			if r.DoorObstruction || r.Overload {
				m.transition(controlblock.Closing, controlblock.Opening)
				r.Status = controlblock.Opening
				return nil
			}
			m.transition(controlblock.Closing, controlblock.Closed)
			r.Status = controlblock.Closed
			return nil
		})

	default:
		return err
	}
}
