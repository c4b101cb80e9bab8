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

package servo

import (
	"errors"
	"fmt"

	"periph.io/x/periph/host"
)

const (
	DriverPCA9685   = "pca9685"
	DriverPiBlaster = "pi-blaster"
	DriverMaestro   = "maestro"
	DriverLog       = "log"
)

// BoardConfig describes one servo board on the actuator host.
type BoardConfig struct {
	ID     int    `yaml:"id"`
	Driver string `yaml:"driver"`

	// PCA9685
	I2CBus string `yaml:"i2c-bus"`

	// pi-blaster FIFO or Maestro serial port.
	Device string `yaml:"device"`

	// Maestro
	Baud         int  `yaml:"baud"`
	DeviceNumber byte `yaml:"device-number"`
	Compact      bool `yaml:"compact"`
}

// DefaultBoardConfig is used for units whose board has no explicit
// configuration.
func DefaultBoardConfig(id int) BoardConfig {
	return BoardConfig{
		ID:           id,
		Driver:       DriverPCA9685,
		Baud:         9600,
		DeviceNumber: 12,
		Compact:      true,
	}
}

func (c BoardConfig) Validate() error {
	if c.ID < 0 {
		return fmt.Errorf("invalid board id %d", c.ID)
	}
	switch c.Driver {
	case DriverPCA9685:
		// The address pins only allow 0x40 to 0x7F.
		if c.ID > 0x3F {
			return fmt.Errorf("board %d: pca9685 board id must be at most 63", c.ID)
		}
	case DriverMaestro:
		if c.Device == "" {
			return fmt.Errorf("board %d: maestro requires a serial device", c.ID)
		}
	case DriverPiBlaster, DriverLog:
	case "":
		return fmt.Errorf("board %d: no driver set", c.ID)
	default:
		return fmt.Errorf("board %d: unknown driver %q", c.ID, c.Driver)
	}
	return nil
}

var hostInitialised bool

// Open returns a driver for the board.
func Open(c BoardConfig) (Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Driver {
	case DriverPCA9685:
		if err := initHost(); err != nil {
			return nil, err
		}
		return OpenPCA9685(c.I2CBus, c.ID)
	case DriverPiBlaster:
		return OpenPiBlaster(c.Device)
	case DriverMaestro:
		return OpenMaestro(c.Device, c.Baud, c.DeviceNumber, c.Compact)
	case DriverLog:
		return &LogDriver{Board: c.ID}, nil
	}
	return nil, errors.New("unreachable")
}

func initHost() error {
	if hostInitialised {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host initialisation: %v", err)
	}
	hostInitialised = true
	return nil
}
