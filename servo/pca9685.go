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
	"math"
	"sync"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
)

const (
	pca9685BaseAddress = 0x40
	pca9685Channels    = 16
	pca9685Oscillator  = 25000000
	pca9685Resolution  = 4096

	regMode1    = 0x00
	regMode2    = 0x01
	regLED0On   = 0x06
	regPrescale = 0xFE

	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80
	mode2OutDrv  = 0x04
)

// tx is the part of an I2C device the PCA9685 driver needs.
type tx interface {
	Tx(w, r []byte) error
}

// PCA9685 drives a 16 channel PCA9685 PWM board over I2C.
type PCA9685 struct {
	mu     sync.Mutex
	dev    tx
	closer func() error
}

// OpenPCA9685 opens the named I2C bus ("" for the first available) and
// sets up the PCA9685 for board. Boards are addressed from 0x40 upwards.
func OpenPCA9685(busName string, board int) (*PCA9685, error) {
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus: %v", err)
	}
	dev := &i2c.Dev{Bus: bus, Addr: uint16(pca9685BaseAddress + board)}
	p, err := newPCA9685(dev, bus.Close)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("pca9685 at %#x: %v", dev.Addr, err)
	}
	return p, nil
}

func newPCA9685(dev tx, closer func() error) (*PCA9685, error) {
	p := &PCA9685{dev: dev, closer: closer}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PCA9685) init() error {
	if err := p.write(regMode2, mode2OutDrv); err != nil {
		return err
	}
	// The prescaler can only be set while the oscillator sleeps.
	if err := p.write(regMode1, mode1Sleep); err != nil {
		return err
	}
	if err := p.write(regPrescale, prescale(PWMFrequency)); err != nil {
		return err
	}
	if err := p.write(regMode1, 0); err != nil {
		return err
	}
	time.Sleep(500 * time.Microsecond)
	return p.write(regMode1, mode1Restart|mode1AutoInc)
}

func prescale(freq float64) byte {
	return byte(math.Round(pca9685Oscillator/(pca9685Resolution*freq)) - 1)
}

// ticks converts a pulse width to a count of the 4096 step PWM period.
func ticks(width time.Duration) uint16 {
	t := math.Round(dutyCycle(width) * pca9685Resolution)
	if t >= pca9685Resolution {
		t = pca9685Resolution - 1
	} else if t < 0 {
		t = 0
	}
	return uint16(t)
}

func (p *PCA9685) SetPulse(channel int, width time.Duration) error {
	if err := checkChannel(channel, pca9685Channels); err != nil {
		return err
	}
	off := ticks(width)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Tx([]byte{
		byte(regLED0On + 4*channel),
		0, 0, // on at tick 0
		byte(off), byte(off >> 8),
	}, nil)
}

func (p *PCA9685) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(regMode1, mode1Sleep)
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

func (p *PCA9685) write(reg, value byte) error {
	return p.dev.Tx([]byte{reg, value}, nil)
}
