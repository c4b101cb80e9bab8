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
	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/pantilt-tracker/tracking"
)

// framesPerSdNotify is about five seconds of a 30 fps camera.
const framesPerSdNotify = 150

// watchdogCamera tells systemd the tracker is alive while frames keep
// arriving.
type watchdogCamera struct {
	tracking.Camera
	notify      func()
	notifyCount int
}

func newWatchdogCamera(camera tracking.Camera) *watchdogCamera {
	return &watchdogCamera{
		Camera: camera,
		notify: func() { daemon.SdNotify(false, "WATCHDOG=1") },
	}
}

func (c *watchdogCamera) NextFrame() (tracking.Frame, error) {
	frame, err := c.Camera.NextFrame()
	if err != nil {
		return frame, err
	}
	if c.notifyCount++; c.notifyCount >= framesPerSdNotify {
		c.notify()
		c.notifyCount = 0
	}
	return frame, nil
}
