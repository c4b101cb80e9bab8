// pantilt-tracker - point pan/tilt units at faces seen by a depth camera
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package receiver applies angle commands arriving at an actuator host
// to the servos of the addressed unit.
package receiver

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
	"github.com/TheCacophonyProject/pantilt-tracker/loglimiter"
	"github.com/TheCacophonyProject/pantilt-tracker/servo"
	"github.com/TheCacophonyProject/pantilt-tracker/units"
)

// ErrStale is returned for commands older than the last one applied to
// the same unit.
var ErrStale = errors.New("stale command")

// A sequence number this far below the last applied one means the
// tracker restarted rather than a message arriving late.
const restartGap = 1000

const logInterval = 10 * time.Second

// Stats counts what happened to received commands.
type Stats struct {
	Applied   int
	Malformed int
	Unknown   int
	Stale     int
	Failed    int
}

// Receiver applies commands to the servos of registered units. Handle
// may be called from any goroutine; commands are applied one at a time.
type Receiver struct {
	mu       sync.Mutex
	registry *units.Registry
	drivers  map[int]servo.Driver
	prefix   string
	lastSeq  map[string]uint64
	stats    Stats
	limiter  *loglimiter.LogLimiter
}

// New returns a Receiver driving the given boards. Every board used by
// a registered unit must have a driver.
func New(registry *units.Registry, drivers map[int]servo.Driver, topicPrefix string) (*Receiver, error) {
	for _, board := range registry.Boards() {
		if drivers[board] == nil {
			return nil, fmt.Errorf("no driver for board %d", board)
		}
	}
	return &Receiver{
		registry: registry,
		drivers:  drivers,
		prefix:   topicPrefix,
		lastSeq:  make(map[string]uint64),
		limiter:  loglimiter.New(logInterval),
	}, nil
}

// OnMessage is the transport callback. Dropped commands are logged at
// most once per logInterval for each kind of drop.
func (r *Receiver) OnMessage(topic string, payload []byte) {
	err := r.Handle(topic, payload)
	if err == nil {
		return
	}
	var notFound *units.NotFoundError
	switch {
	case errors.As(err, &notFound):
		r.limiter.PrintfKey("unknown", "warning: dropping command: %v", err)
	case errors.Is(err, command.ErrMalformed):
		r.limiter.PrintfKey("malformed", "dropping command on %s: %v", topic, err)
	case errors.Is(err, ErrStale):
		r.limiter.PrintfKey("stale", "dropping command on %s: %v", topic, err)
	default:
		log.Printf("failed to apply command on %s: %v", topic, err)
	}
}

// Handle decodes and applies one command.
func (r *Receiver) Handle(topic string, payload []byte) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			r.stats.Failed++
			err = fmt.Errorf("panic applying command: %v", p)
		}
	}()

	cmd, err := command.Decode(payload)
	if err != nil {
		r.stats.Malformed++
		return err
	}
	if label, ok := command.UnitFromTopic(r.prefix, topic); !ok || label != cmd.Unit {
		r.stats.Malformed++
		return fmt.Errorf("%w: unit %q does not match topic %s", command.ErrMalformed, cmd.Unit, topic)
	}

	unit, err := r.registry.Lookup(cmd.Unit)
	if err != nil {
		r.stats.Unknown++
		return err
	}

	if last, seen := r.lastSeq[unit.Name]; seen && cmd.Seq <= last && last-cmd.Seq <= restartGap {
		r.stats.Stale++
		return fmt.Errorf("%w: seq %d after %d", ErrStale, cmd.Seq, last)
	}

	if err := r.move(unit, cmd.Pan, cmd.Tilt); err != nil {
		r.stats.Failed++
		return err
	}
	r.lastSeq[unit.Name] = cmd.Seq
	r.stats.Applied++
	return nil
}

// Home drives every unit to its home angles.
func (r *Receiver) Home() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, unit := range r.registry.Units() {
		if err := r.move(unit, unit.Pan.Home, unit.Tilt.Home); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the command counts so far.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Receiver) move(unit units.Unit, pan, tilt float64) error {
	driver := r.drivers[unit.Board]
	if err := r.drive(driver, unit.Name, "pan", unit.Pan, pan); err != nil {
		return err
	}
	return r.drive(driver, unit.Name, "tilt", unit.Tilt, tilt)
}

func (r *Receiver) drive(driver servo.Driver, name, axisName string, axis units.Axis, angle float64) error {
	clamped, clipped := geometry.Clamp(angle, axis.Min, axis.Max)
	if clipped {
		r.limiter.PrintfKey("clip:"+name+":"+axisName,
			"%s: %s %.1f clamped to %.1f", name, axisName, angle, clamped)
	}
	width := servo.PulseWidth(clamped, servo.Calibration{MinPulse: axis.MinPulse, MaxPulse: axis.MaxPulse})
	if err := driver.SetPulse(axis.Channel, width); err != nil {
		return fmt.Errorf("%s: setting %s on channel %d: %w", name, axisName, axis.Channel, err)
	}
	return nil
}
