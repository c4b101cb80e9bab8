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

// Package units holds the static description of every pan/tilt unit:
// where it is mounted relative to the camera and which board channels
// drive it. Both the tracker and actuator hosts load the same registry.
package units

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"

	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
)

const (
	// Travel is the native angle range of a servo, in degrees.
	Travel = 180

	defaultMaxAngle = Travel
	defaultOffset   = 90
	defaultMinPulse = 500 * time.Microsecond
	defaultMaxPulse = 2500 * time.Microsecond
)

// UnitConfig is a unit as it appears in the configuration file.
type UnitConfig struct {
	Name        string     `yaml:"name"`
	Position    []float64  `yaml:"position"`
	Orientation []float64  `yaml:"orientation"`
	Board       int        `yaml:"board"`
	Pan         AxisConfig `yaml:"pan"`
	Tilt        AxisConfig `yaml:"tilt"`
}

// AxisConfig describes one servo of a unit. Zero values are replaced by
// defaults: limits [0, 180] (each bound on its own), offset 90, home at
// the offset and pulses from 500us to 2500us.
type AxisConfig struct {
	Channel  int           `yaml:"channel"`
	Min      float64       `yaml:"min"`
	Max      float64       `yaml:"max"`
	Offset   *float64      `yaml:"offset"`
	Reverse  bool          `yaml:"reverse"`
	Home     *float64      `yaml:"home"`
	MinPulse time.Duration `yaml:"min-pulse"`
	MaxPulse time.Duration `yaml:"max-pulse"`
}

// Unit is a validated unit. It is never modified after Load.
type Unit struct {
	Name  string
	Pose  geometry.Pose
	Board int
	Pan   Axis
	Tilt  Axis
}

// Axis is a validated servo description.
type Axis struct {
	geometry.AxisMapping
	Channel  int
	Home     float64
	MinPulse time.Duration
	MaxPulse time.Duration
}

func (conf *AxisConfig) axis() Axis {
	a := Axis{
		AxisMapping: geometry.AxisMapping{
			Min:     conf.Min,
			Max:     conf.Max,
			Offset:  defaultOffset,
			Reverse: conf.Reverse,
		},
		Channel:  conf.Channel,
		MinPulse: conf.MinPulse,
		MaxPulse: conf.MaxPulse,
	}
	if conf.Max == 0 {
		a.Max = defaultMaxAngle
	}
	if conf.Offset != nil {
		a.Offset = *conf.Offset
	}
	a.Home = a.Offset
	if conf.Home != nil {
		a.Home = *conf.Home
	}
	if a.MinPulse == 0 {
		a.MinPulse = defaultMinPulse
	}
	if a.MaxPulse == 0 {
		a.MaxPulse = defaultMaxPulse
	}
	return a
}

func (a *Axis) validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{{"min", a.Min}, {"max", a.Max}, {"offset", a.Offset}, {"home", a.Home}} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%s has invalid value %v", v.name, v.value)
		}
	}
	if a.Channel < 0 {
		return fmt.Errorf("channel %d is negative", a.Channel)
	}
	if a.Min >= a.Max {
		return fmt.Errorf("min angle %v should be less than max angle %v", a.Min, a.Max)
	}
	if a.Min < 0 || a.Max > Travel {
		return fmt.Errorf("limits [%v, %v] outside servo range [0, %d]", a.Min, a.Max, Travel)
	}
	if a.Home < a.Min || a.Home > a.Max {
		return fmt.Errorf("home %v outside limits [%v, %v]", a.Home, a.Min, a.Max)
	}
	if a.MinPulse <= 0 || a.MinPulse >= a.MaxPulse {
		return fmt.Errorf("min-pulse %v should be positive and less than max-pulse %v", a.MinPulse, a.MaxPulse)
	}
	return nil
}

// ParsePose builds a pose from a position (m) and roll/pitch/yaw
// orientation (degrees). Either may be empty, meaning zero.
func ParsePose(position, orientation []float64) (geometry.Pose, error) {
	var p, o [3]float64
	if err := copy3(&p, position, "position"); err != nil {
		return geometry.Pose{}, err
	}
	if err := copy3(&o, orientation, "orientation"); err != nil {
		return geometry.Pose{}, err
	}
	return geometry.NewPose(
		r3.Vector{X: p[0], Y: p[1], Z: p[2]},
		geometry.Orientation{Roll: o[0], Pitch: o[1], Yaw: o[2]},
	), nil
}

func copy3(dst *[3]float64, src []float64, field string) error {
	if len(src) == 0 {
		return nil
	}
	if len(src) != 3 {
		return fmt.Errorf("%s should have 3 values, got %d", field, len(src))
	}
	for i, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s has invalid value %v", field, v)
		}
		dst[i] = v
	}
	return nil
}

func (conf *UnitConfig) unit() (Unit, error) {
	if conf.Name == "" {
		return Unit{}, &ConfigError{Reason: "unit name is empty"}
	}
	pose, err := ParsePose(conf.Position, conf.Orientation)
	if err != nil {
		return Unit{}, &ConfigError{Unit: conf.Name, Reason: err.Error()}
	}
	if conf.Board < 0 {
		return Unit{}, &ConfigError{Unit: conf.Name, Reason: fmt.Sprintf("board %d is negative", conf.Board)}
	}
	u := Unit{
		Name:  conf.Name,
		Pose:  pose,
		Board: conf.Board,
		Pan:   conf.Pan.axis(),
		Tilt:  conf.Tilt.axis(),
	}
	if err := u.Pan.validate(); err != nil {
		return Unit{}, &ConfigError{Unit: conf.Name, Reason: "pan: " + err.Error()}
	}
	if err := u.Tilt.validate(); err != nil {
		return Unit{}, &ConfigError{Unit: conf.Name, Reason: "tilt: " + err.Error()}
	}
	return u, nil
}
