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

package units

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// ConfigError reports an invalid unit definition.
type ConfigError struct {
	Unit   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Unit == "" {
		return "invalid unit config: " + e.Reason
	}
	return fmt.Sprintf("invalid unit config for %q: %s", e.Unit, e.Reason)
}

// NotFoundError is returned by Lookup for unknown unit names.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unit %q not found", e.Name)
}

// Registry holds every unit. It is read-only after Load and safe for
// concurrent use.
type Registry struct {
	units  []Unit
	byName map[string]int
}

type channelKey struct {
	board   int
	channel int
}

// Load validates the unit configs and builds a registry. Unit order is
// preserved.
func Load(configs []UnitConfig) (*Registry, error) {
	if len(configs) == 0 {
		return nil, &ConfigError{Reason: "no units configured"}
	}

	r := &Registry{
		units:  make([]Unit, 0, len(configs)),
		byName: make(map[string]int, len(configs)),
	}
	owners := make(map[channelKey]string)

	for i := range configs {
		u, err := configs[i].unit()
		if err != nil {
			return nil, err
		}
		if _, dup := r.byName[u.Name]; dup {
			return nil, &ConfigError{Unit: u.Name, Reason: "duplicate unit name"}
		}

		for _, ch := range []struct {
			axis    string
			channel int
		}{{"pan", u.Pan.Channel}, {"tilt", u.Tilt.Channel}} {
			key := channelKey{u.Board, ch.channel}
			owner := u.Name + " " + ch.axis
			if prev, taken := owners[key]; taken {
				return nil, &ConfigError{
					Unit:   u.Name,
					Reason: fmt.Sprintf("board %d channel %d used by both %s and %s", u.Board, ch.channel, prev, owner),
				}
			}
			owners[key] = owner
		}

		r.byName[u.Name] = len(r.units)
		r.units = append(r.units, u)
	}
	return r, nil
}

// Lookup returns the unit with the given name.
func (r *Registry) Lookup(name string) (Unit, error) {
	i, ok := r.byName[name]
	if !ok {
		return Unit{}, &NotFoundError{Name: name}
	}
	return r.units[i], nil
}

// Units returns all units in configuration order.
func (r *Registry) Units() []Unit {
	out := make([]Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Len returns the number of units.
func (r *Registry) Len() int {
	return len(r.units)
}

// Boards returns the distinct board ids used by the units, sorted.
func (r *Registry) Boards() []int {
	seen := make(map[int]bool)
	var boards []int
	for _, u := range r.units {
		if !seen[u.Board] {
			seen[u.Board] = true
			boards = append(boards, u.Board)
		}
	}
	sort.Ints(boards)
	return boards
}

// Fingerprint identifies the validated unit definitions. Configs that
// resolve to the same units, defaults included, share a fingerprint.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	for _, u := range r.units {
		fmt.Fprintf(h, "%s board=%d position=%v orientation=%+v\n",
			u.Name, u.Board, u.Pose.Position, u.Pose.Orientation)
		for _, a := range []Axis{u.Pan, u.Tilt} {
			fmt.Fprintf(h, "channel=%d limits=[%v,%v] offset=%v reverse=%v home=%v pulses=[%v,%v]\n",
				a.Channel, a.Min, a.Max, a.Offset, a.Reverse, a.Home, a.MinPulse, a.MaxPulse)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
