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

// Package trackerctl is the client side of the pantilt-tracker D-Bus
// service.
package trackerctl

import "github.com/godbus/dbus"

const (
	dbusPath   = "/org/cacophony/pantilttracker"
	dbusDest   = "org.cacophony.pantilttracker"
	methodBase = "org.cacophony.pantilttracker"
)

func getDbusObj() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusDest, dbusPath)
	return obj, nil
}

// State returns "idle" or "tracking".
func State() (string, error) {
	obj, err := getDbusObj()
	if err != nil {
		return "", err
	}
	var state string
	err = obj.Call(methodBase+".State", 0).Store(&state)
	return state, err
}

// Home sends every unit to its home position.
func Home() error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".Home", 0).Store()
}

// Stats returns the tracker's frame counters by name.
func Stats() (map[string]int64, error) {
	obj, err := getDbusObj()
	if err != nil {
		return nil, err
	}
	var stats map[string]int64
	err = obj.Call(methodBase+".Stats", 0).Store(&stats)
	return stats, err
}
