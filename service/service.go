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

// Package service exposes the tracking loop on the system D-Bus so
// other processes can query its state and send the units home.
package service

import (
	"errors"
	"log"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/pantilt-tracker/tracking"
)

const (
	DbusName = "org.cacophony.pantilttracker"
	DbusPath = "/org/cacophony/pantilttracker"

	// StateChangedSignal carries the new state name.
	StateChangedSignal = DbusName + ".StateChanged"
)

// Tracker is the part of the tracking loop the service uses.
type Tracker interface {
	State() tracking.State
	Stats() tracking.Stats
	ForceHome()
}

type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Service owns the bus name. It implements tracking.StateListener by
// emitting StateChanged signals.
type Service struct {
	bus emitter
}

// Start claims the D-Bus name and exports the tracker's methods.
func Start(tracker Tracker) (*Service, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(DbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	m := &methods{tracker: tracker}
	if err := conn.Export(m, DbusPath, DbusName); err != nil {
		return nil, err
	}
	if err := conn.Export(genIntrospectable(m), DbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}
	return &Service{bus: conn}, nil
}

func (s *Service) StateChanged(state tracking.State) {
	if err := s.bus.Emit(DbusPath, StateChangedSignal, state.String()); err != nil {
		log.Printf("failed to emit state change: %v", err)
	}
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    DbusName,
			Methods: introspect.Methods(v),
			Signals: []introspect.Signal{{
				Name: "StateChanged",
				Args: []introspect.Arg{{Name: "state", Type: "s"}},
			}},
		}},
	}
	return introspect.NewIntrospectable(node)
}

// methods is the object exported on the bus.
type methods struct {
	tracker Tracker
}

// State returns "idle" or "tracking".
func (m *methods) State() (string, *dbus.Error) {
	return m.tracker.State().String(), nil
}

// Home sends every unit home before the next frame.
func (m *methods) Home() *dbus.Error {
	m.tracker.ForceHome()
	return nil
}

// Stats returns the loop's frame counters.
func (m *methods) Stats() (map[string]int64, *dbus.Error) {
	s := m.tracker.Stats()
	return map[string]int64{
		"frames":             int64(s.Frames),
		"tracked":            int64(s.Tracked),
		"homed":              int64(s.Homed),
		"clipped":            int64(s.Clipped),
		"degenerate":         int64(s.Degenerate),
		"transport-failures": int64(s.TransportFailures),
	}, nil
}
