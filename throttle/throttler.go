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

package throttle

import (
	"log"
	"time"

	"github.com/juju/ratelimit"
)

// New returns a Throttler for conf, or nil if throttling is disabled.
// A nil Throttler allows everything.
func New(conf Config, listener ThrottledEventListener) *Throttler {
	return NewWithClock(conf, listener, new(realClock))
}

func NewWithClock(conf Config, listener ThrottledEventListener, clock ratelimit.Clock) *Throttler {
	if !conf.ApplyThrottling {
		return nil
	}
	if listener == nil {
		listener = new(nullListener)
	}
	return &Throttler{
		bucket:   ratelimit.NewBucketWithRateAndClock(conf.MaxRate, conf.Burst, clock),
		listener: listener,
		clock:    clock,
		cooldown: conf.Cooldown,
	}
}

// Throttler caps the rate at which frames of commands are published.
// When a fast camera and a slow link or controller meet, the extra
// frames only queue up behind each other. Dropping them keeps the
// servos following the latest position.
type Throttler struct {
	bucket        *ratelimit.Bucket
	listener      ThrottledEventListener
	clock         ratelimit.Clock
	cooldown      time.Duration
	throttled     bool
	lastEvent     time.Time
	droppedFrames int
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

// Allow takes a token for one frame and reports whether the frame may
// be sent.
func (throttler *Throttler) Allow() bool {
	if throttler == nil {
		return true
	}

	if throttler.bucket.TakeAvailable(1) > 0 {
		if throttler.throttled {
			log.Printf("throttling stopped after dropping %d frames", throttler.droppedFrames)
			throttler.throttled = false
			throttler.droppedFrames = 0
		}
		return true
	}

	throttler.droppedFrames++
	if !throttler.throttled {
		throttler.throttled = true
		log.Print("publishing throttled")
		now := throttler.clock.Now()
		if throttler.lastEvent.IsZero() || now.Sub(throttler.lastEvent) >= throttler.cooldown {
			throttler.lastEvent = now
			throttler.listener.WhenThrottled()
		}
	}
	return false
}

// Throttled reports whether frames are currently being dropped.
func (throttler *Throttler) Throttled() bool {
	return throttler != nil && throttler.throttled
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Now implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
