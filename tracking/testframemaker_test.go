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
	"context"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
)

var testIntrinsics = geometry.Intrinsics{
	Width:  640,
	Height: 480,
	Fx:     600,
	Fy:     600,
	Ppx:    320,
	Ppy:    240,
}

// TestFrameMaker feeds scripted frames through a Loop.
type TestFrameMaker struct {
	loop        *Loop
	frameNumber int
	Confidence  float64
	BoxSize     float64
	Errs        []error
}

func MakeTestFrameMaker(loop *Loop) *TestFrameMaker {
	return &TestFrameMaker{
		loop:       loop,
		Confidence: 0.9,
		BoxSize:    40,
	}
}

// FaceAt returns a detection that unprojects to the camera frame point p.
func (tfm *TestFrameMaker) FaceAt(p r3.Vector) Detection {
	u := testIntrinsics.Ppx + p.X/p.Y*testIntrinsics.Fx
	v := testIntrinsics.Ppy - p.Z/p.Y*testIntrinsics.Fy
	half := tfm.BoxSize / 2
	return Detection{
		Box:        [4]float64{u - half, v - half, u + half, v + half},
		Confidence: tfm.Confidence,
		Depth:      p.Y,
	}
}

func (tfm *TestFrameMaker) AddFaceFrames(frames int, p r3.Vector) *TestFrameMaker {
	for i := 0; i < frames; i++ {
		tfm.PlayFrame(tfm.FaceAt(p))
	}
	return tfm
}

func (tfm *TestFrameMaker) AddEmptyFrames(frames int) *TestFrameMaker {
	for i := 0; i < frames; i++ {
		tfm.PlayFrame()
	}
	return tfm
}

func (tfm *TestFrameMaker) PlayFrame(detections ...Detection) error {
	tfm.frameNumber++
	err := tfm.loop.Process(context.Background(), tfm.makeFrame(detections), detections)
	tfm.Errs = append(tfm.Errs, err)
	return err
}

func (tfm *TestFrameMaker) makeFrame(detections []Detection) Frame {
	return Frame{
		Number:     tfm.frameNumber,
		Time:       testTime,
		Intrinsics: testIntrinsics,
		Detections: detections,
	}
}

type dispatchedFrame struct {
	Home bool
	Cmds []command.AngleCommand
}

// TestDispatcher records frames handed to it.
type TestDispatcher struct {
	mu       sync.Mutex
	frames   []dispatchedFrame
	err      error
	failures int
}

func (td *TestDispatcher) Dispatch(ctx context.Context, cmds []command.AngleCommand) error {
	return td.record(false, cmds)
}

func (td *TestDispatcher) DispatchHome(ctx context.Context, cmds []command.AngleCommand) error {
	return td.record(true, cmds)
}

func (td *TestDispatcher) record(home bool, cmds []command.AngleCommand) error {
	td.mu.Lock()
	defer td.mu.Unlock()
	td.frames = append(td.frames, dispatchedFrame{home, append([]command.AngleCommand(nil), cmds...)})
	if td.err != nil {
		td.failures++
	} else {
		td.failures = 0
	}
	return td.err
}

func (td *TestDispatcher) Failures() int {
	td.mu.Lock()
	defer td.mu.Unlock()
	return td.failures
}

func (td *TestDispatcher) Frames() []dispatchedFrame {
	td.mu.Lock()
	defer td.mu.Unlock()
	return append([]dispatchedFrame(nil), td.frames...)
}

func (td *TestDispatcher) Last() dispatchedFrame {
	frames := td.Frames()
	return frames[len(frames)-1]
}
