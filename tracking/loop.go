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

// Package tracking turns faces seen by the camera into angle commands
// for every registered pan/tilt unit.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/dispatch"
	"github.com/TheCacophonyProject/pantilt-tracker/geometry"
	"github.com/TheCacophonyProject/pantilt-tracker/loglimiter"
	"github.com/TheCacophonyProject/pantilt-tracker/units"
)

const (
	minLogInterval = 10 * time.Second

	frameLogIntervalFirstMin = 15 * time.Second
	frameLogInterval         = 5 * time.Minute
)

// State of the tracking loop.
type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Dispatcher sends the commands produced for a frame.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmds []command.AngleCommand) error
	DispatchHome(ctx context.Context, cmds []command.AngleCommand) error
	// Failures is the number of consecutive frames that failed to send.
	Failures() int
}

type StateListener interface {
	StateChanged(state State)
}

// Stats counts what the loop has done.
type Stats struct {
	Frames            int
	Tracked           int
	Homed             int
	Clipped           int
	Degenerate        int
	TransportFailures int
}

func New(
	conf Config,
	registry *units.Registry,
	cameraPose geometry.Pose,
	dispatcher Dispatcher,
	win ActiveWindow,
) *Loop {
	if win == nil {
		win = alwaysActive{}
	}
	l := &Loop{
		conf:       conf,
		registry:   registry,
		cameraPose: cameraPose,
		dispatcher: dispatcher,
		window:     win,
		log:        loglimiter.New(minLogInterval),
		now:        time.Now,
		lastPan:    make(map[string]float64),
	}
	for _, unit := range registry.Units() {
		l.lastPan[unit.Name] = unit.Pan.Home
	}
	return l
}

// Loop runs the per frame pipeline: pick the best detection, unproject
// it, solve angles for every unit and dispatch them. Frames must be
// processed from one goroutine; State and ForceHome may be called from
// any.
type Loop struct {
	conf       Config
	registry   *units.Registry
	cameraPose geometry.Pose
	dispatcher Dispatcher
	window     ActiveWindow
	listener   StateListener
	log        *loglimiter.LogLimiter
	now        func() time.Time

	homeRequested atomic.Bool

	mu      sync.Mutex
	state   State
	missed  int
	lastPan map[string]float64
	seq     uint64
	stats   Stats
}

func (l *Loop) SetListener(listener StateListener) {
	l.listener = listener
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// ForceHome sends every unit home in place of the next frame. Tracking
// resumes with a qualifying detection in the frame after that.
func (l *Loop) ForceHome() {
	l.homeRequested.Store(true)
}

// Run processes frames until ctx is cancelled, the camera fails or the
// transport is declared down. The camera is closed on return.
// Cancellation returns nil.
func (l *Loop) Run(ctx context.Context, camera Camera, detector Detector) error {
	defer camera.Close()
	stop := context.AfterFunc(ctx, func() { camera.Close() })
	defer stop()

	start := l.now()
	nextLog := start.Add(frameLogIntervalFirstMin)
	frames := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := camera.NextFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := l.cameraLost(ctx); err != nil {
				return err
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		detections, err := detector.Detect(frame)
		if err != nil {
			l.log.Printf("detection failed: %v", err)
			detections = nil
		}

		if err := l.Process(ctx, frame, detections); err != nil {
			return err
		}

		frames++
		if now := l.now(); !now.Before(nextLog) {
			log.Printf("%d frames for this connection", frames)
			if now.Sub(start) < time.Minute {
				nextLog = now.Add(frameLogIntervalFirstMin)
			} else {
				nextLog = now.Add(frameLogInterval)
			}
		}
	}
}

// Process runs one frame through the loop. Only fatal errors are
// returned.
func (l *Loop) Process(ctx context.Context, frame Frame, detections []Detection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Frames++

	if l.homeRequested.Swap(false) {
		log.Print("going home on request")
		// Detections in this frame are ignored.
		return l.enterIdle(ctx, true)
	}

	if !l.window.Active() {
		detections = nil
	}

	best, ok := Best(detections, l.conf.ConfidenceThreshold)
	if !ok {
		return l.noTarget(ctx)
	}

	l.missed = 0
	if l.state == Idle {
		l.setState(Tracking)
	}

	u, v := best.Center()
	target := l.cameraPose.ToParent(frame.Intrinsics.Unproject(u, v, best.Depth))
	l.stats.Tracked++
	return l.send(ctx, l.aim(target, frame.Time), false)
}

func (l *Loop) noTarget(ctx context.Context) error {
	if l.state != Tracking {
		return nil
	}
	// Hold the last position until enough frames are missed.
	l.missed++
	if l.missed < l.conf.IdleFrames {
		return nil
	}
	return l.enterIdle(ctx, l.conf.HomeOnIdle)
}

func (l *Loop) cameraLost(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Tracking {
		return nil
	}
	log.Print("camera lost while tracking")
	return l.enterIdle(ctx, l.conf.HomeOnIdle)
}

func (l *Loop) enterIdle(ctx context.Context, home bool) error {
	l.missed = 0
	if l.state != Idle {
		l.setState(Idle)
	}
	if !home {
		return nil
	}

	all := l.registry.Units()
	cmds := make([]command.AngleCommand, 0, len(all))
	t := l.now()
	for _, unit := range all {
		l.lastPan[unit.Name] = unit.Pan.Home
		cmds = append(cmds, command.AngleCommand{
			Unit: unit.Name,
			Pan:  unit.Pan.Home,
			Tilt: unit.Tilt.Home,
			Time: t,
		})
	}
	l.stats.Homed++
	return l.send(ctx, cmds, true)
}

// aim solves the angles every unit needs to point at target, given in
// the rig frame.
func (l *Loop) aim(target r3.Vector, t time.Time) []command.AngleCommand {
	if t.IsZero() {
		t = l.now()
	}
	all := l.registry.Units()
	cmds := make([]command.AngleCommand, 0, len(all))
	for _, unit := range all {
		sol := geometry.Solve(
			unit.Pose.ToLocal(target),
			unit.Pan.AxisMapping,
			unit.Tilt.AxisMapping,
			l.lastPan[unit.Name],
		)
		if sol.Degenerate {
			l.stats.Degenerate++
		}
		if err := sol.Err(); err != nil {
			l.stats.Clipped++
			l.log.PrintfKey("limit:"+unit.Name, "%s: %v", unit.Name, err)
		}
		l.lastPan[unit.Name] = sol.Pan
		cmds = append(cmds, command.AngleCommand{
			Unit: unit.Name,
			Pan:  sol.Pan,
			Tilt: sol.Tilt,
			Time: t,
		})
	}
	return cmds
}

func (l *Loop) send(ctx context.Context, cmds []command.AngleCommand, home bool) error {
	if l.seq == 0 {
		// Starting from the clock keeps sequence numbers increasing
		// across tracker restarts.
		l.seq = uint64(l.now().UnixMilli())
	}
	l.seq++
	for i := range cmds {
		cmds[i].Seq = l.seq
	}

	var err error
	if home {
		err = l.dispatcher.DispatchHome(ctx, cmds)
	} else {
		err = l.dispatcher.Dispatch(ctx, cmds)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatch.ErrTransportDown):
		return err
	case ctx.Err() != nil:
		return nil
	}
	l.stats.TransportFailures++
	// At most max-failures of these are logged per outage.
	log.Printf("transport failure (%d consecutive): %v", l.dispatcher.Failures(), err)
	return nil
}

func (l *Loop) setState(state State) {
	log.Printf("state: %s -> %s", l.state, state)
	l.state = state
	if l.listener != nil {
		l.listener.StateChanged(state)
	}
}
