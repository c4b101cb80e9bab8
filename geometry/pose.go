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

// Package geometry converts target points between the camera frame and
// the local frame of each pan/tilt unit, and solves the pan and tilt
// angles needed to aim a unit at a point.
//
// Frames use x right, y forward and z up, in meters. A unit looking
// "straight ahead" points along its local +y axis.
//
// Rotations are built as R = Rz(yaw) * Ry(pitch) * Rx(roll): roll about
// the parent x axis is applied first, then pitch about the parent y
// axis, then yaw about the parent z axis. This is the same rotation as
// intrinsic yaw, pitch, roll (Z-Y'-X'').
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Orientation holds roll, pitch and yaw in degrees.
type Orientation struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Wrapped returns the orientation with each angle in (-180, 180].
func (o Orientation) Wrapped() Orientation {
	return Orientation{
		Roll:  WrapDegrees(o.Roll),
		Pitch: WrapDegrees(o.Pitch),
		Yaw:   WrapDegrees(o.Yaw),
	}
}

// Matrix returns the rotation matrix for the orientation.
func (o Orientation) Matrix() *mat.Dense {
	o = o.Wrapped()
	sr, cr := math.Sincos(Radians(o.Roll))
	sp, cp := math.Sincos(Radians(o.Pitch))
	sy, cy := math.Sincos(Radians(o.Yaw))

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var r mat.Dense
	r.Product(rz, ry, rx)
	return &r
}

// Pose is a position and orientation relative to a parent frame.
type Pose struct {
	Position    r3.Vector
	Orientation Orientation

	rot *mat.Dense
}

// NewPose returns a Pose with its orientation wrapped and its rotation
// matrix precomputed. The returned Pose is safe for concurrent use.
func NewPose(position r3.Vector, orientation Orientation) Pose {
	orientation = orientation.Wrapped()
	return Pose{
		Position:    position,
		Orientation: orientation,
		rot:         orientation.Matrix(),
	}
}

// IdentityPose is the pose of a frame that coincides with its parent.
func IdentityPose() Pose {
	return NewPose(r3.Vector{}, Orientation{})
}

func (p Pose) rotation() mat.Matrix {
	if p.rot != nil {
		return p.rot
	}
	return p.Orientation.Matrix()
}

// ToLocal expresses a point given in the parent frame in the pose's own
// frame: translate by the negative position, then rotate by the inverse
// orientation.
func (p Pose) ToLocal(point r3.Vector) r3.Vector {
	return mulVec(p.rotation().T(), point.Sub(p.Position))
}

// ToParent is the inverse of ToLocal: rotate by the orientation, then
// translate by the position.
func (p Pose) ToParent(local r3.Vector) r3.Vector {
	return mulVec(p.rotation(), local).Add(p.Position)
}

// rotate applies only the pose's rotation to v.
func (p Pose) rotate(v r3.Vector) r3.Vector {
	return mulVec(p.rotation(), v)
}

// unrotate applies only the inverse of the pose's rotation to v.
func (p Pose) unrotate(v r3.Vector) r3.Vector {
	return mulVec(p.rotation().T(), v)
}

func mulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// WrapDegrees maps an angle into (-180, 180].
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w <= -180 {
		w += 360
	} else if w > 180 {
		w -= 360
	}
	return w
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
