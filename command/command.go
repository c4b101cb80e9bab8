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

// Package command defines the angle command sent from the tracker to
// the actuator and its encoding on the wire.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrMalformed is matched by every decode failure.
var ErrMalformed = errors.New("malformed command")

// AngleCommand asks one unit to move to native pan and tilt angles.
type AngleCommand struct {
	Unit string    `json:"unit"`
	Pan  float64   `json:"pan"`
	Tilt float64   `json:"tilt"`
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
}

func (c AngleCommand) String() string {
	return fmt.Sprintf("%s pan=%.1f tilt=%.1f seq=%d", c.Unit, c.Pan, c.Tilt, c.Seq)
}

const unitsLevel = "units"

// Topic returns the topic commands for unit are published on.
func Topic(prefix, unit string) string {
	return prefix + "/" + unitsLevel + "/" + unit
}

// SubscribeTopic matches the commands for every unit.
func SubscribeTopic(prefix string) string {
	return prefix + "/" + unitsLevel + "/+"
}

// UnitFromTopic extracts the unit label from a command topic.
func UnitFromTopic(prefix, topic string) (string, bool) {
	unit := strings.TrimPrefix(topic, prefix+"/"+unitsLevel+"/")
	if unit == topic || unit == "" || strings.Contains(unit, "/") {
		return "", false
	}
	return unit, true
}

// Encode serialises a command for the wire.
func Encode(c AngleCommand) ([]byte, error) {
	return json.Marshal(c)
}

// wireCommand uses pointers so missing fields can be told apart from zeros.
type wireCommand struct {
	Unit *string    `json:"unit"`
	Pan  *float64   `json:"pan"`
	Tilt *float64   `json:"tilt"`
	Seq  *uint64    `json:"seq"`
	Time *time.Time `json:"time"`
}

// Decode parses a command from the wire. Every failure wraps ErrMalformed.
func Decode(payload []byte) (AngleCommand, error) {
	var w wireCommand
	if err := json.Unmarshal(payload, &w); err != nil {
		return AngleCommand{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case w.Unit == nil || *w.Unit == "":
		return AngleCommand{}, fmt.Errorf("%w: missing unit", ErrMalformed)
	case w.Pan == nil:
		return AngleCommand{}, fmt.Errorf("%w: missing pan", ErrMalformed)
	case w.Tilt == nil:
		return AngleCommand{}, fmt.Errorf("%w: missing tilt", ErrMalformed)
	case w.Seq == nil:
		return AngleCommand{}, fmt.Errorf("%w: missing seq", ErrMalformed)
	}
	if !finite(*w.Pan) || !finite(*w.Tilt) {
		return AngleCommand{}, fmt.Errorf("%w: angles must be finite", ErrMalformed)
	}

	c := AngleCommand{
		Unit: *w.Unit,
		Pan:  *w.Pan,
		Tilt: *w.Tilt,
		Seq:  *w.Seq,
	}
	if w.Time != nil {
		c.Time = *w.Time
	}
	return c, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FingerprintTopic carries the tracker's units fingerprint as a retained
// message. It is not matched by SubscribeTopic.
func FingerprintTopic(prefix string) string {
	return prefix + "/units-fingerprint"
}
