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

package loglimiter

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		entries:  make(map[string]*entry),
	}
}

// LogLimiter will suppress log messages if a message with the same key
// was logged within some time interval. Each key is limited
// independently so per-unit messages don't hide each other.
type LogLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	nowFunc  func() time.Time
	entries  map[string]*entry
}

type entry struct {
	last       time.Time
	suppressed int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

// Print uses the message itself as the key.
func (limiter *LogLimiter) Print(s string) {
	limiter.PrintKey(s, s)
}

// PrintfKey formats and logs a message, limited by key rather than by
// the message text. Useful when the message carries changing values.
func (limiter *LogLimiter) PrintfKey(key, format string, v ...interface{}) {
	limiter.PrintKey(key, fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) PrintKey(key, s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFunc()
	e, ok := limiter.entries[key]
	if ok && now.Sub(e.last) < limiter.interval {
		e.suppressed++
		return
	}
	if !ok {
		e = new(entry)
		limiter.entries[key] = e
	}

	if e.suppressed > 0 {
		log.Printf("%s (%d similar suppressed)", s, e.suppressed)
	} else {
		log.Print(s)
	}
	e.last = now
	e.suppressed = 0
}
