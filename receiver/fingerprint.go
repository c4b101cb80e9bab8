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


package receiver

import (
	"log"
	"strings"
	"sync"
)

// FingerprintCheck compares the units fingerprint published by the
// tracker with the one of the units loaded on this host. A mismatch
// means the two hosts were given different unit definitions.
type FingerprintCheck struct {
	local string

	mu   sync.Mutex
	last string
}

func NewFingerprintCheck(local string) *FingerprintCheck {
	return &FingerprintCheck{local: local}
}

// OnMessage is the transport callback for the fingerprint topic. Only
// changes are logged since the retained message is resent on every
// reconnect.
func (f *FingerprintCheck) OnMessage(topic string, payload []byte) {
	remote := strings.TrimSpace(string(payload))
	if remote == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if remote == f.last {
		return
	}
	f.last = remote
	if remote == f.local {
		log.Printf("tracker units match (fingerprint %s)", remote)
		return
	}
	log.Printf("warning: tracker units fingerprint %s does not match %s, both hosts need the same units config",
		remote, f.local)
}
