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

package tracking

import (
	"math"
	"time"

	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
)

// Detection is a face found in a color frame.
type Detection struct {
	// Box is x1, y1, x2, y2 in pixels of the color frame.
	Box        [4]float64
	Confidence float64
	// Depth is the distance in meters along the optical axis at the
	// center of the box.
	Depth float64
}

// Center returns the pixel at the center of the box.
func (d Detection) Center() (u, v float64) {
	return (d.Box[0] + d.Box[2]) / 2, (d.Box[1] + d.Box[3]) / 2
}

func (d Detection) Area() float64 {
	return math.Abs((d.Box[2] - d.Box[0]) * (d.Box[3] - d.Box[1]))
}

func (d Detection) qualifies(threshold float64) bool {
	return d.Confidence >= threshold && geometry.ValidDepth(d.Depth)
}

// Best returns the qualifying detection with the highest confidence.
// Ties go to the larger box and then to the earlier detection.
func Best(detections []Detection, threshold float64) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range detections {
		if !d.qualifies(threshold) {
			continue
		}
		if !found ||
			d.Confidence > best.Confidence ||
			d.Confidence == best.Confidence && d.Area() > best.Area() {
			best = d
			found = true
		}
	}
	return best, found
}

// Frame is one aligned color and depth capture.
type Frame struct {
	Number     int
	Time       time.Time
	Intrinsics geometry.Intrinsics
	// Detections is filled in by front ends that run the detector
	// before handing frames over.
	Detections []Detection
}

// Camera supplies frames in capture order. NextFrame blocks until a
// frame is available. Close must be safe to call more than once and
// must unblock NextFrame.
type Camera interface {
	NextFrame() (Frame, error)
	Close() error
}

// Detector finds faces in a frame.
type Detector interface {
	Detect(frame Frame) ([]Detection, error)
}
