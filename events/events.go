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

// Package events records notable tracker conditions with the
// org.cacophony.Events service so they are reported with the device's
// other events.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/godbus/dbus"
)

const (
	ThrottledType     = "pantiltThrottled"
	TransportDownType = "pantiltTransportDown"
)

// QueueFunc queues an event with its JSON details and time.
type QueueFunc func(details []byte, ts time.Time) error

// Recorder implements throttle.ThrottledEventListener and
// dispatch.TransportDownListener.
type Recorder struct {
	queue QueueFunc
	now   func() time.Time
}

func NewRecorder() *Recorder {
	return NewRecorderWithQueue(queueOnSystemBus)
}

func NewRecorderWithQueue(queue QueueFunc) *Recorder {
	return &Recorder{queue: queue, now: time.Now}
}

func (r *Recorder) WhenThrottled() {
	r.record(ThrottledType, nil)
}

func (r *Recorder) WhenTransportDown(err error) {
	r.record(TransportDownType, map[string]interface{}{"error": err.Error()})
}

func (r *Recorder) record(eventType string, extra map[string]interface{}) {
	description := map[string]interface{}{"type": eventType}
	if extra != nil {
		description["details"] = extra
	}
	detailsJSON, err := json.Marshal(map[string]interface{}{"description": description})
	if err != nil {
		log.Printf("Could not record %s event: %s", eventType, err)
		return
	}
	if err := r.queue(detailsJSON, r.now()); err != nil {
		log.Printf("Could not record %s event: %s", eventType, err)
	}
}

func queueOnSystemBus(details []byte, ts time.Time) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object("org.cacophony.Events", "/org/cacophony/Events")
	return obj.Call("org.cacophony.Events.Queue", 0, details, ts.UnixNano()).Err
}
