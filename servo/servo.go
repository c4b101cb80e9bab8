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

// Package servo drives hobby servos through the PWM boards found on
// actuator hosts.
package servo

import (
	"fmt"
	"log"
	"time"
)

// Travel is the angular range covered between the minimum and maximum
// pulse widths.
const Travel = 180.0

// PWMFrequency is the servo refresh rate used by every board.
const PWMFrequency = 50

// Driver asserts pulse widths on the channels of one board.
type Driver interface {
	SetPulse(channel int, width time.Duration) error
	Close() error
}

// Calibration maps angles onto pulse widths.
type Calibration struct {
	MinPulse time.Duration
	MaxPulse time.Duration
}

// PulseWidth converts a native angle in [0, Travel] to a pulse width.
// Angles outside that range are clamped.
func PulseWidth(angle float64, cal Calibration) time.Duration {
	if angle < 0 {
		angle = 0
	} else if angle > Travel {
		angle = Travel
	}
	span := float64(cal.MaxPulse - cal.MinPulse)
	return cal.MinPulse + time.Duration(angle*span/Travel)
}

// dutyCycle is the fraction of a PWM period a pulse occupies.
func dutyCycle(width time.Duration) float64 {
	return width.Seconds() * PWMFrequency
}

// LogDriver only logs the pulses it's asked for. Useful for running an
// actuator host without servo hardware attached.
type LogDriver struct {
	Board int
}

func (d *LogDriver) SetPulse(channel int, width time.Duration) error {
	log.Printf("board %d channel %d: pulse %v", d.Board, channel, width)
	return nil
}

func (d *LogDriver) Close() error {
	return nil
}

func checkChannel(channel, channels int) error {
	if channel < 0 || channel >= channels {
		return fmt.Errorf("channel %d out of range [0, %d)", channel, channels)
	}
	return nil
}
