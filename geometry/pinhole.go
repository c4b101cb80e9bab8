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

	"github.com/golang/geo/r3"
)

// Intrinsics are the pinhole parameters of the color stream that
// detection boxes are expressed in. Depth is assumed aligned to it.
type Intrinsics struct {
	Width  int
	Height int
	Fx     float64
	Fy     float64
	Ppx    float64
	Ppy    float64
}

func (in Intrinsics) Validate() error {
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", in.Width, in.Height)
	}
	if !(in.Fx > 0) || !(in.Fy > 0) {
		return errors.New("focal lengths must be positive")
	}
	return nil
}

// Unproject converts pixel (u, v) with a depth in meters along the
// optical axis into a point in the camera frame. The optical frame has
// y pointing down and z forward. The camera frame has y forward and z
// up.
func (in Intrinsics) Unproject(u, v, depth float64) r3.Vector {
	x := (u - in.Ppx) / in.Fx * depth
	y := (v - in.Ppy) / in.Fy * depth
	return r3.Vector{X: x, Y: depth, Z: -y}
}

// ValidDepth reports whether a depth reading can be unprojected.
func ValidDepth(depth float64) bool {
	return depth > 0 && !math.IsInf(depth, 0)
}
