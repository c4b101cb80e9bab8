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
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
)

const (
	maxRate = 10
	burst   = 20
)

func newTestConfig() Config {
	return Config{
		ApplyThrottling: true,
		MaxRate:         maxRate,
		Burst:           burst,
		Cooldown:        time.Minute,
	}
}

func newTestThrottler() (*Throttler, *throttleListener, *testClock) {
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	listener := new(throttleListener)
	return NewWithClock(newTestConfig(), listener, clock), listener, clock
}

type throttleListener struct {
	events int
}

func (tc *throttleListener) WhenThrottled() {
	tc.events++
}

func allowFrames(throttler *Throttler, frames int) int {
	allowed := 0
	for i := 0; i < frames; i++ {
		if throttler.Allow() {
			allowed++
		}
	}
	return allowed
}

func TestDisabledThrottlerAllowsEverything(t *testing.T) {
	conf := newTestConfig()
	conf.ApplyThrottling = false
	throttler := New(conf, nil)
	assert.Nil(t, throttler)
	assert.Equal(t, 1000, allowFrames(throttler, 1000))
	assert.False(t, throttler.Throttled())
}

func TestOnlyAllowsUntilBucketIsEmpty(t *testing.T) {
	throttler, listener, _ := newTestThrottler()

	assert.Equal(t, burst, allowFrames(throttler, burst+5))
	assert.True(t, throttler.Throttled())
	assert.Equal(t, 1, listener.events)
}

func TestRefillsAtMaxRate(t *testing.T) {
	throttler, _, clock := newTestThrottler()

	allowFrames(throttler, burst+1)
	clock.Sleep(time.Second)
	assert.Equal(t, maxRate, allowFrames(throttler, burst))

	// A long pause only refills up to the burst size.
	clock.Sleep(time.Hour)
	assert.Equal(t, burst, allowFrames(throttler, burst*2))
}

func TestThrottlingStopsWhenTokensReturn(t *testing.T) {
	throttler, _, clock := newTestThrottler()

	allowFrames(throttler, burst+1)
	assert.True(t, throttler.Throttled())

	clock.Sleep(time.Second / maxRate)
	assert.True(t, throttler.Allow())
	assert.False(t, throttler.Throttled())
}

func TestNotifiesOncePerCooldown(t *testing.T) {
	throttler, listener, clock := newTestThrottler()

	allowFrames(throttler, burst+1)
	assert.Equal(t, 1, listener.events)

	// Throttled again soon after; no new event.
	clock.Sleep(time.Second)
	allowFrames(throttler, burst)
	assert.Equal(t, 1, listener.events)

	clock.Sleep(time.Minute)
	allowFrames(throttler, burst*2)
	assert.Equal(t, 2, listener.events)
}

func TestValidate(t *testing.T) {
	conf := DefaultConfig()
	assert.NoError(t, conf.Validate())

	conf.ApplyThrottling = true
	assert.NoError(t, conf.Validate())

	conf.MaxRate = 0
	assert.EqualError(t, conf.Validate(), "throttle max-rate must be positive")

	conf.MaxRate = 1
	conf.Burst = 0
	assert.EqualError(t, conf.Validate(), "throttle burst must be at least 1")
}

var _ ratelimit.Clock = new(realClock)
var _ ratelimit.Clock = new(testClock)

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

// Now implements Clock.Now by calling time.Now.
func (c *testClock) Now() time.Time {
	return c.now
}

// Now implements Clock.Sleep by calling time.Sleep.
func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}
