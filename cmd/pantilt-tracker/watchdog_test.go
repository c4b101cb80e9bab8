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

package main

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheCacophonyProject/pantilt-tracker/tracking"
)

type countingCamera struct {
	frames int
	closed bool
}

func (c *countingCamera) NextFrame() (tracking.Frame, error) {
	if c.frames == 0 {
		return tracking.Frame{}, io.EOF
	}
	c.frames--
	return tracking.Frame{}, nil
}

func (c *countingCamera) Close() error {
	c.closed = true
	return nil
}

func TestWatchdogNotifiesEveryNFrames(t *testing.T) {
	inner := &countingCamera{frames: framesPerSdNotify*2 + 10}
	camera := newWatchdogCamera(inner)
	notifies := 0
	camera.notify = func() { notifies++ }

	var err error
	for err == nil {
		_, err = camera.NextFrame()
	}
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, 2, notifies)

	camera.Close()
	assert.True(t, inner.closed)
}
