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

// Package dispatch publishes the angle commands of each processed frame,
// one message per unit, and decides when transport failures become fatal.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/throttle"
)

// ErrTransportDown is wrapped by the error returned once too many
// consecutive frames failed to publish.
var ErrTransportDown = errors.New("transport down")

// Publisher sends one payload on a topic. Implementations must honour
// ctx cancellation.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// TransportError reports the units whose commands failed to publish in
// a frame. It is not fatal.
type TransportError struct {
	Units []string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publishing to %s failed: %v", strings.Join(e.Units, ", "), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TransportDownListener is told when failures become fatal.
type TransportDownListener interface {
	WhenTransportDown(err error)
}

type Config struct {
	PublishTimeout time.Duration   `yaml:"publish-timeout"`
	MaxFailures    int             `yaml:"max-failures"`
	Throttle       throttle.Config `yaml:"throttle"`
}

func DefaultConfig() Config {
	return Config{
		PublishTimeout: 100 * time.Millisecond,
		MaxFailures:    50,
		Throttle:       throttle.DefaultConfig(),
	}
}

func (conf *Config) Validate() error {
	if conf.PublishTimeout <= 0 {
		return errors.New("publish-timeout must be positive")
	}
	if conf.MaxFailures < 0 {
		return errors.New("max-failures can't be negative")
	}
	return conf.Throttle.Validate()
}

// Stats counts dispatched frames.
type Stats struct {
	Sent      int
	Failed    int
	Throttled int
}

// Dispatcher publishes frames of commands. It is used from a single
// goroutine.
type Dispatcher struct {
	publisher   Publisher
	prefix      string
	timeout     time.Duration
	maxFailures int
	throttler   *throttle.Throttler
	listener    TransportDownListener
	failures    int
	stats       Stats
}

// New returns a Dispatcher publishing under topicPrefix. throttler may
// be nil to send every frame.
func New(publisher Publisher, topicPrefix string, conf Config, throttler *throttle.Throttler) *Dispatcher {
	return &Dispatcher{
		publisher:   publisher,
		prefix:      topicPrefix,
		timeout:     conf.PublishTimeout,
		maxFailures: conf.MaxFailures,
		throttler:   throttler,
	}
}

func (d *Dispatcher) SetListener(listener TransportDownListener) {
	d.listener = listener
}

// Dispatch publishes the commands of one frame. Frames over the
// throttle rate are dropped silently. A frame where any publish fails
// returns a *TransportError, unless the failure count reached the
// configured maximum in which case the error wraps ErrTransportDown.
func (d *Dispatcher) Dispatch(ctx context.Context, cmds []command.AngleCommand) error {
	if len(cmds) == 0 {
		return nil
	}
	if !d.throttler.Allow() {
		d.stats.Throttled++
		return nil
	}
	return d.send(ctx, cmds)
}

// DispatchHome publishes commands that must not be dropped by the
// throttle, such as returning to the home position.
func (d *Dispatcher) DispatchHome(ctx context.Context, cmds []command.AngleCommand) error {
	if len(cmds) == 0 {
		return nil
	}
	return d.send(ctx, cmds)
}

// Failures returns the current count of consecutive failed frames.
func (d *Dispatcher) Failures() int {
	return d.failures
}

func (d *Dispatcher) Stats() Stats {
	return d.stats
}

func (d *Dispatcher) send(ctx context.Context, cmds []command.AngleCommand) error {
	var failedUnits []string
	var lastErr error
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.publish(ctx, cmd); err != nil {
			failedUnits = append(failedUnits, cmd.Unit)
			lastErr = err
		}
	}
	if lastErr == nil {
		d.failures = 0
		d.stats.Sent++
		return nil
	}
	if ctx.Err() != nil {
		// Shutting down rather than a transport problem.
		return ctx.Err()
	}

	d.failures++
	d.stats.Failed++
	sort.Strings(failedUnits)
	terr := &TransportError{Units: failedUnits, Err: lastErr}
	if d.maxFailures > 0 && d.failures >= d.maxFailures {
		err := fmt.Errorf("%w: %d consecutive frames failed, last: %v", ErrTransportDown, d.failures, terr)
		if d.listener != nil {
			d.listener.WhenTransportDown(err)
		}
		return err
	}
	return terr
}

func (d *Dispatcher) publish(ctx context.Context, cmd command.AngleCommand) error {
	payload, err := command.Encode(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.publisher.Publish(ctx, command.Topic(d.prefix, cmd.Unit), payload)
}
