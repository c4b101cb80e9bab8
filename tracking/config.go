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
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/window"

	"github.com/TheCacophonyProject/pantilt-tracker/location"
)

type Config struct {
	ConfidenceThreshold float64 `yaml:"confidence-threshold"`
	IdleFrames          int     `yaml:"idle-frames"`
	HomeOnIdle          bool    `yaml:"home-on-idle"`

	// Times of day (or offsets from sunrise and sunset) between which
	// faces are tracked. Both empty means always.
	WindowStart string `yaml:"window-start"`
	WindowEnd   string `yaml:"window-end"`
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		IdleFrames:          15,
		HomeOnIdle:          true,
	}
}

func (conf *Config) Validate() error {
	if conf.ConfidenceThreshold < 0 || conf.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence-threshold %v outside [0, 1]", conf.ConfidenceThreshold)
	}
	if conf.IdleFrames < 1 {
		return errors.New("idle-frames must be at least 1")
	}
	if (conf.WindowStart == "") != (conf.WindowEnd == "") {
		return errors.New("window-start and window-end must be set together")
	}
	return nil
}

// ActiveWindow reports whether tracking is currently allowed.
type ActiveWindow interface {
	Active() bool
}

type alwaysActive struct{}

func (alwaysActive) Active() bool { return true }

// NewWindow returns the operating window described by conf. Sunrise
// and sunset relative times use the location.
func NewWindow(conf Config, loc location.LocationConfig) (ActiveWindow, error) {
	if conf.WindowStart == "" && conf.WindowEnd == "" {
		return alwaysActive{}, nil
	}
	lat, lon := loc.Coordinates()
	w, err := window.New(conf.WindowStart, conf.WindowEnd, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("invalid tracking window: %v", err)
	}
	if w.NoWindow {
		return alwaysActive{}, nil
	}
	return w, nil
}
