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
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultPiBlasterPath is the FIFO the pi-blaster daemon reads from.
const DefaultPiBlasterPath = "/dev/pi-blaster"

// PiBlaster drives servos on Raspberry Pi GPIO pins through the
// pi-blaster daemon. Channels are GPIO numbers.
type PiBlaster struct {
	mu   sync.Mutex
	file *os.File
}

func OpenPiBlaster(path string) (*PiBlaster, error) {
	if path == "" {
		path = DefaultPiBlasterPath
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, err
	}
	return &PiBlaster{file: f}, nil
}

func (p *PiBlaster) SetPulse(channel int, width time.Duration) error {
	if channel < 0 {
		return fmt.Errorf("invalid pin %d", channel)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.file, "%d=%f\n", channel, dutyCycle(width))
	return err
}

func (p *PiBlaster) Close() error {
	return p.file.Close()
}
