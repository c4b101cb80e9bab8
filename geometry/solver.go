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

package geometry

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

// DegenerateDistance is the horizontal distance (m) below which the pan
// angle is undefined and the previous pan angle is held.
const DegenerateDistance = 1e-6

// ErrLimitExceeded is matched by every *LimitError.
var ErrLimitExceeded = errors.New("angle outside actuator limits")

// AxisMapping maps a solved angle onto one servo's native degree range.
type AxisMapping struct {
	Min     float64
	Max     float64
	Offset  float64 // native angle when the solved angle is zero
	Reverse bool
}

// Native converts a solved angle (0 = straight ahead / level) into the
// servo's native range, without clamping.
func (a AxisMapping) Native(solved float64) float64 {
	if a.Reverse {
		return a.Offset - solved
	}
	return a.Offset + solved
}

// Clamp limits a native angle to the axis range.
func (a AxisMapping) Clamp(native float64) (float64, bool) {
	return Clamp(native, a.Min, a.Max)
}

// Clamp limits angle to [min, max] and reports whether it had to. It is
// idempotent.
func Clamp(angle, min, max float64) (float64, bool) {
	if angle < min {
		return min, true
	}
	if angle > max {
		return max, true
	}
	return angle, false
}

// Solution is the result of aiming one unit at one point. Pan and Tilt
// are native servo angles, already clamped.
type Solution struct {
	Pan         float64
	Tilt        float64
	PanClipped  bool
	TiltClipped bool
	// Degenerate is set when the point had no horizontal offset from the
	// unit and Pan is the held previous value.
	Degenerate bool

	rawPan  float64
	rawTilt float64
}

// Err returns a *LimitError when either axis was clipped, otherwise nil.
func (s Solution) Err() error {
	if !s.PanClipped && !s.TiltClipped {
		return nil
	}
	return &LimitError{
		PanClipped:  s.PanClipped,
		TiltClipped: s.TiltClipped,
		Pan:         s.rawPan,
		Tilt:        s.rawTilt,
	}
}

// LimitError reports a target that is outside a unit's reach. Pan and
// Tilt hold the unclamped native angles.
type LimitError struct {
	PanClipped  bool
	TiltClipped bool
	Pan         float64
	Tilt        float64
}

func (e *LimitError) Error() string {
	var parts []string
	if e.PanClipped {
		parts = append(parts, fmt.Sprintf("pan %.1f", e.Pan))
	}
	if e.TiltClipped {
		parts = append(parts, fmt.Sprintf("tilt %.1f", e.Tilt))
	}
	return ErrLimitExceeded.Error() + ": " + strings.Join(parts, ", ")
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Solve computes the pan and tilt needed to point along local, a target
// expressed in the unit's local frame. lastPan is the unit's previous
// native pan angle, held when the horizontal distance is degenerate.
func Solve(local r3.Vector, pan, tilt AxisMapping, lastPan float64) Solution {
	var s Solution

	panAngle, tiltAngle, ok := AngleTo(local)
	if ok {
		s.rawPan = pan.Native(panAngle)
	} else {
		s.Degenerate = true
		s.rawPan = lastPan
	}
	s.rawTilt = tilt.Native(tiltAngle)

	s.Pan, s.PanClipped = pan.Clamp(s.rawPan)
	s.Tilt, s.TiltClipped = tilt.Clamp(s.rawTilt)
	return s
}

// AngleTo returns the raw pan and tilt (degrees, 0 = straight ahead and
// level) from the origin to point. ok is false when the pan is undefined.
func AngleTo(point r3.Vector) (pan, tilt float64, ok bool) {
	horizontal := math.Hypot(point.X, point.Y)
	tilt = Degrees(math.Atan2(point.Z, horizontal))
	if horizontal < DegenerateDistance {
		return 0, tilt, false
	}
	return Degrees(math.Atan2(point.X, point.Y)), tilt, true
}
