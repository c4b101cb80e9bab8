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


package receiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/TheCacophonyProject/pantilt-tracker/units"
)

// Exercise is a sweep that shows whether every unit is wired and
// calibrated as configured.
type Exercise struct {
	// Amplitude is how far each axis swings either side of straight
	// ahead, in degrees.
	Amplitude float64
	// Step is the largest change of either axis in one move.
	Step float64
	// Delay is the pause after each move.
	Delay  time.Duration
	Cycles int
}

func (ex Exercise) validate() error {
	switch {
	case !(ex.Amplitude >= 0) || ex.Amplitude > units.Travel:
		return fmt.Errorf("exercise amplitude %v outside [0, %d]", ex.Amplitude, units.Travel)
	case !(ex.Step > 0):
		return fmt.Errorf("exercise step %v must be positive", ex.Step)
	case ex.Delay < 0:
		return errors.New("exercise delay must not be negative")
	case ex.Cycles < 1:
		return fmt.Errorf("exercise needs at least one cycle, got %d", ex.Cycles)
	}
	return nil
}

// Exercise points every unit straight ahead, then sweeps each one
// diagonally from pan -Amplitude/tilt +Amplitude to pan +Amplitude/tilt
// -Amplitude and back to straight ahead, Cycles times, and finally sends
// it home. Angles are clamped and calibrated the same way as commands.
func (r *Receiver) Exercise(ctx context.Context, ex Exercise) error {
	if err := ex.validate(); err != nil {
		return err
	}
	log.Printf("exercising %d units, amplitude %v, %d cycles", r.registry.Len(), ex.Amplitude, ex.Cycles)

	a := ex.Amplitude
	waypoints := make([][2]float64, 0, 3*ex.Cycles)
	for i := 0; i < ex.Cycles; i++ {
		waypoints = append(waypoints, [2]float64{-a, a}, [2]float64{a, -a}, [2]float64{0, 0})
	}

	err := r.exercise(ctx, ex, waypoints)
	if homeErr := r.Home(); homeErr != nil {
		return errors.Join(err, homeErr)
	}
	return err
}

func (r *Receiver) exercise(ctx context.Context, ex Exercise, waypoints [][2]float64) error {
	var pan, tilt float64
	if err := r.offsetAll(ctx, ex.Delay, pan, tilt); err != nil {
		return err
	}
	for _, to := range waypoints {
		steps := int(math.Ceil(math.Max(math.Abs(to[0]-pan), math.Abs(to[1]-tilt)) / ex.Step))
		for i := 1; i <= steps; i++ {
			f := float64(i) / float64(steps)
			if err := r.offsetAll(ctx, ex.Delay, pan+f*(to[0]-pan), tilt+f*(to[1]-tilt)); err != nil {
				return err
			}
		}
		pan, tilt = to[0], to[1]
	}
	return nil
}

// offsetAll moves every unit to the given angles from straight ahead and
// waits for delay.
func (r *Receiver) offsetAll(ctx context.Context, delay time.Duration, pan, tilt float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	for _, unit := range r.registry.Units() {
		if err := r.move(unit, unit.Pan.Native(pan), unit.Tilt.Native(tilt)); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()

	if delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
