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
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	maestroSetTarget = 0x84
	maestroChannels  = 24

	// Maestro targets are in quarter microseconds.
	maestroTargetUnit = 250 * time.Nanosecond
)

// Maestro drives a Pololu Maestro servo controller over its USB serial
// port.
type Maestro struct {
	mu      sync.Mutex
	port    io.WriteCloser
	device  byte
	compact bool
}

// OpenMaestro opens the serial port of a Maestro. With compact set the
// single device protocol is used, otherwise commands are addressed to
// device.
func OpenMaestro(path string, baud int, device byte, compact bool) (*Maestro, error) {
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return &Maestro{port: port, device: device, compact: compact}, nil
}

func (m *Maestro) SetPulse(channel int, width time.Duration) error {
	if err := checkChannel(channel, maestroChannels); err != nil {
		return err
	}
	target := uint16(width / maestroTargetUnit)

	var cmd []byte
	if m.compact {
		cmd = []byte{maestroSetTarget}
	} else {
		cmd = []byte{0xaa, m.device, maestroSetTarget & 0x7f}
	}
	cmd = append(cmd, byte(channel), byte(target&0x7f), byte((target>>7)&0x7f))

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.port.Write(cmd)
	return err
}

func (m *Maestro) Close() error {
	return m.port.Close()
}
