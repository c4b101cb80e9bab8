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

// Package config reads the YAML document shared by the tracker and the
// actuator hosts.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/pantilt-tracker/dispatch"
	"github.com/TheCacophonyProject/pantilt-tracker/framesource"
	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
	"github.com/TheCacophonyProject/pantilt-tracker/location"
	"github.com/TheCacophonyProject/pantilt-tracker/mqtt"
	"github.com/TheCacophonyProject/pantilt-tracker/servo"
	"github.com/TheCacophonyProject/pantilt-tracker/tracking"
	"github.com/TheCacophonyProject/pantilt-tracker/units"
)

const (
	DefaultConfigFile = "/etc/pantilt.yaml"

	// DefaultEnvFile may hold PANTILT_MQTT_USERNAME and
	// PANTILT_MQTT_PASSWORD so they stay out of the shared YAML file.
	DefaultEnvFile = "/etc/pantilt.env"
)

type Config struct {
	framesource.Config `yaml:",inline"`

	Camera   CameraConfig            `yaml:"camera"`
	Units    []units.UnitConfig      `yaml:"units"`
	Tracker  tracking.Config         `yaml:"tracker"`
	Dispatch dispatch.Config         `yaml:"dispatch"`
	MQTT     mqtt.Config             `yaml:"mqtt"`
	Actuator ActuatorConfig          `yaml:"actuator"`
	Location location.LocationConfig `yaml:"location"`
}

// CameraConfig is the pose of the camera in the rig frame. Unit poses
// are relative to the rig; empty means the rig frame is the camera frame.
type CameraConfig struct {
	Position    []float64 `yaml:"position"`
	Orientation []float64 `yaml:"orientation"`
}

// ActuatorConfig is only used on the host driving the servos.
type ActuatorConfig struct {
	Boards      []servo.BoardConfig `yaml:"boards"`
	HomeOnStart bool                `yaml:"home-on-start"`
	HomeOnExit  bool                `yaml:"home-on-exit"`
}

func (conf *ActuatorConfig) Validate() error {
	seen := make(map[int]bool)
	for _, b := range conf.Boards {
		if err := b.Validate(); err != nil {
			return err
		}
		if seen[b.ID] {
			return fmt.Errorf("board %d configured more than once", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

var defaultConfig = Config{
	Config:   framesource.DefaultConfig(),
	Tracker:  tracking.DefaultConfig(),
	Dispatch: dispatch.DefaultConfig(),
	MQTT:     mqtt.DefaultConfig(),
	Actuator: ActuatorConfig{
		HomeOnStart: true,
		HomeOnExit:  true,
	},
	Location: location.DefaultLocationConfig(),
}

// DefaultConfig returns the configuration used for everything the file
// leaves out. It has no units so it does not validate by itself.
func DefaultConfig() Config {
	return defaultConfig
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := DefaultConfig()
	if err := yaml.UnmarshalStrict(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (conf *Config) Validate() error {
	if err := conf.Config.Validate(); err != nil {
		return err
	}
	if _, err := conf.CameraPose(); err != nil {
		return fmt.Errorf("camera: %v", err)
	}
	if _, err := conf.Registry(); err != nil {
		return err
	}
	if err := conf.Tracker.Validate(); err != nil {
		return err
	}
	if _, err := tracking.NewWindow(conf.Tracker, conf.Location); err != nil {
		return err
	}
	if err := conf.Dispatch.Validate(); err != nil {
		return err
	}
	if err := conf.MQTT.Validate(); err != nil {
		return err
	}
	if err := conf.Actuator.Validate(); err != nil {
		return err
	}
	return conf.Location.Validate()
}

// LoadEnvFile adds the variables in filename to the environment without
// overriding ones already set. A missing file is not an error.
func LoadEnvFile(filename string) error {
	err := godotenv.Load(filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SetMQTTCredentials overrides the credentials from the file with any
// that are not empty.
func (conf *Config) SetMQTTCredentials(username, password string) {
	if username != "" {
		conf.MQTT.Username = username
	}
	if password != "" {
		conf.MQTT.Password = password
	}
}

// Registry loads the configured units.
func (conf *Config) Registry() (*units.Registry, error) {
	return units.Load(conf.Units)
}

func (conf *Config) CameraPose() (geometry.Pose, error) {
	return units.ParsePose(conf.Camera.Position, conf.Camera.Orientation)
}

// Boards returns the board configs for the given ids, in the same
// order. Boards missing from the actuator section get the default
// driver.
func (conf *Config) Boards(ids []int) []servo.BoardConfig {
	byID := make(map[int]servo.BoardConfig, len(conf.Actuator.Boards))
	for _, b := range conf.Actuator.Boards {
		byID[b.ID] = b
	}
	out := make([]servo.BoardConfig, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if !ok {
			b = servo.DefaultBoardConfig(id)
		}
		out = append(out, b)
	}
	return out
}
