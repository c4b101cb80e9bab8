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
	"errors"
	"time"
)

type Config struct {
	ApplyThrottling bool `yaml:"apply-throttling"`

	// MaxRate is the sustained number of frames per second let through.
	MaxRate float64 `yaml:"max-rate"`

	// Burst is how many frames can be sent back to back before MaxRate
	// applies.
	Burst int64 `yaml:"burst"`

	// Cooldown is how long the bucket refills after throttling starts
	// before the throttled event can fire again.
	Cooldown time.Duration `yaml:"cooldown"`
}

func DefaultConfig() Config {
	return Config{
		ApplyThrottling: false,
		MaxRate:         15,
		Burst:           30,
		Cooldown:        time.Minute,
	}
}

func (conf *Config) Validate() error {
	if !conf.ApplyThrottling {
		return nil
	}
	if conf.MaxRate <= 0 {
		return errors.New("throttle max-rate must be positive")
	}
	if conf.Burst < 1 {
		return errors.New("throttle burst must be at least 1")
	}
	return nil
}
