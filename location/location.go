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

package location

import (
	"errors"
	"fmt"

	goconfig "github.com/TheCacophonyProject/go-config"
)

// DefaultDeviceConfigDir holds the device wide cacophony config, where
// the management interface records the device location.
const DefaultDeviceConfigDir = goconfig.DefaultConfigDir

const (
	maxLatitude  = 90
	maxLongitude = 180

	//Christchurch
	defaultLatitude  = -43.5321
	defaultLongitude = 172.6362
)

// LocationConfig places the rig so tracking windows can be given
// relative to sunrise and sunset.
type LocationConfig struct {
	Latitude  float32 `yaml:"latitude"`
	Longitude float32 `yaml:"longitude"`
}

func DefaultLocationConfig() LocationConfig {
	return LocationConfig{
		Latitude:  defaultLatitude,
		Longitude: defaultLongitude,
	}
}

func (conf *LocationConfig) IsLocationEmpty() bool {
	return conf.Latitude == 0 && conf.Longitude == 0
}

// Coordinates returns latitude and longitude in degrees for sunrise and
// sunset calculations.
func (conf *LocationConfig) Coordinates() (lat, lon float64) {
	return float64(conf.Latitude), float64(conf.Longitude)
}

func (conf *LocationConfig) Validate() error {
	if conf.Latitude < -maxLatitude || conf.Latitude > maxLatitude {
		return errors.New("latitude outside of normal range")
	}
	if conf.Longitude < -maxLongitude || conf.Longitude > maxLongitude {
		return errors.New("longitude outside of normal range")
	}
	return nil
}

// ReadDeviceLocation returns the location stored in the device config
// directory. A location that was never set is an error so the caller
// can fall back to its own.
func ReadDeviceLocation(configDir string) (LocationConfig, error) {
	conf, err := goconfig.New(configDir)
	if err != nil {
		return LocationConfig{}, err
	}
	return deviceLocation(conf)
}

type unmarshaler interface {
	Unmarshal(key string, raw interface{}) error
}

func deviceLocation(conf unmarshaler) (LocationConfig, error) {
	windowLocation := goconfig.DefaultWindowLocation()
	if err := conf.Unmarshal(goconfig.LocationKey, &windowLocation); err != nil {
		return LocationConfig{}, fmt.Errorf("reading device location: %v", err)
	}
	loc := LocationConfig{
		Latitude:  float32(windowLocation.Latitude),
		Longitude: float32(windowLocation.Longitude),
	}
	if loc.IsLocationEmpty() {
		return LocationConfig{}, errors.New("device location not set")
	}
	if err := loc.Validate(); err != nil {
		return LocationConfig{}, err
	}
	return loc, nil
}
