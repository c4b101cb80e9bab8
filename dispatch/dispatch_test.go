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

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/throttle"
)

type message struct {
	Topic   string
	Payload string
}

type fakePublisher struct {
	messages []message
	failFor  map[string]error
	block    bool
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := p.failFor[topic]; err != nil {
		return err
	}
	p.messages = append(p.messages, message{topic, string(payload)})
	return nil
}

type downListener struct {
	errs []error
}

func (l *downListener) WhenTransportDown(err error) {
	l.errs = append(l.errs, err)
}

var (
	frameTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	errBroken = errors.New("broken pipe")
)

func frame(seq uint64) []command.AngleCommand {
	return []command.AngleCommand{
		{Unit: "PanTilt1", Pan: 90, Tilt: 90, Seq: seq, Time: frameTime},
		{Unit: "PanTilt2", Pan: 45.5, Tilt: 100, Seq: seq, Time: frameTime},
	}
}

func testConfig(maxFailures int) Config {
	conf := DefaultConfig()
	conf.MaxFailures = maxFailures
	return conf
}

func TestDispatchPublishesOneMessagePerUnit(t *testing.T) {
	pub := new(fakePublisher)
	d := New(pub, "pantilt", testConfig(5), nil)

	require.NoError(t, d.Dispatch(context.Background(), frame(7)))
	require.Len(t, pub.messages, 2)
	assert.Equal(t, "pantilt/units/PanTilt1", pub.messages[0].Topic)
	assert.JSONEq(t, `{"unit":"PanTilt1","pan":90,"tilt":90,"seq":7,"time":"2024-03-01T10:00:00Z"}`, pub.messages[0].Payload)
	assert.Equal(t, "pantilt/units/PanTilt2", pub.messages[1].Topic)
	assert.JSONEq(t, `{"unit":"PanTilt2","pan":45.5,"tilt":100,"seq":7,"time":"2024-03-01T10:00:00Z"}`, pub.messages[1].Payload)
	assert.Equal(t, Stats{Sent: 1}, d.Stats())
}

func TestEmptyFrameSendsNothing(t *testing.T) {
	pub := new(fakePublisher)
	d := New(pub, "pantilt", testConfig(5), nil)
	require.NoError(t, d.Dispatch(context.Background(), nil))
	assert.Empty(t, pub.messages)
	assert.Equal(t, Stats{}, d.Stats())
}

func TestFailuresAreNonFatalUntilThreshold(t *testing.T) {
	pub := &fakePublisher{failFor: map[string]error{"pantilt/units/PanTilt2": errBroken}}
	listener := new(downListener)
	d := New(pub, "pantilt", testConfig(5), nil)
	d.SetListener(listener)

	for i := uint64(1); i <= 4; i++ {
		err := d.Dispatch(context.Background(), frame(i))
		var terr *TransportError
		require.True(t, errors.As(err, &terr), "frame %d: %v", i, err)
		assert.Equal(t, []string{"PanTilt2"}, terr.Units)
		assert.True(t, errors.Is(err, errBroken))
		assert.False(t, errors.Is(err, ErrTransportDown))
	}
	assert.Empty(t, listener.errs)

	// The units that could be reached still got their commands.
	assert.Len(t, pub.messages, 4)

	err := d.Dispatch(context.Background(), frame(5))
	assert.True(t, errors.Is(err, ErrTransportDown))
	assert.Equal(t, 5, d.Failures())
	require.Len(t, listener.errs, 1)
	assert.Equal(t, err, listener.errs[0])
}

func TestSuccessResetsFailureCount(t *testing.T) {
	pub := &fakePublisher{failFor: map[string]error{"pantilt/units/PanTilt1": errBroken}}
	d := New(pub, "pantilt", testConfig(5), nil)

	for i := uint64(1); i <= 3; i++ {
		assert.Error(t, d.Dispatch(context.Background(), frame(i)))
	}
	assert.Equal(t, 3, d.Failures())

	pub.failFor = nil
	require.NoError(t, d.Dispatch(context.Background(), frame(4)))
	assert.Equal(t, 0, d.Failures())

	pub.failFor = map[string]error{"pantilt/units/PanTilt1": errBroken}
	for i := uint64(5); i <= 8; i++ {
		err := d.Dispatch(context.Background(), frame(i))
		assert.False(t, errors.Is(err, ErrTransportDown))
	}
	assert.Equal(t, Stats{Sent: 1, Failed: 7}, d.Stats())
}

func TestZeroMaxFailuresNeverFatal(t *testing.T) {
	pub := &fakePublisher{failFor: map[string]error{"pantilt/units/PanTilt1": errBroken}}
	d := New(pub, "pantilt", testConfig(0), nil)

	for i := uint64(1); i <= 100; i++ {
		err := d.Dispatch(context.Background(), frame(i))
		assert.False(t, errors.Is(err, ErrTransportDown))
	}
}

func TestPublishTimeout(t *testing.T) {
	pub := &fakePublisher{block: true}
	conf := testConfig(5)
	conf.PublishTimeout = 5 * time.Millisecond
	d := New(pub, "pantilt", conf, nil)

	start := time.Now()
	err := d.Dispatch(context.Background(), frame(1))
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, []string{"PanTilt1", "PanTilt2"}, terr.Units)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCancelledContextIsNotAFailure(t *testing.T) {
	pub := &fakePublisher{block: true}
	d := New(pub, "pantilt", testConfig(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Dispatch(ctx, frame(1))
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 0, d.Failures())
}

func TestThrottledFramesAreDroppedNotFailed(t *testing.T) {
	pub := new(fakePublisher)
	throttler := throttle.New(throttle.Config{
		ApplyThrottling: true,
		MaxRate:         0.001,
		Burst:           2,
		Cooldown:        time.Minute,
	}, nil)
	d := New(pub, "pantilt", testConfig(1), throttler)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, d.Dispatch(context.Background(), frame(i)))
	}
	assert.Len(t, pub.messages, 4)
	assert.Equal(t, Stats{Sent: 2, Throttled: 3}, d.Stats())
	assert.Equal(t, 0, d.Failures())

	// Going home is never throttled.
	require.NoError(t, d.DispatchHome(context.Background(), frame(6)))
	assert.Len(t, pub.messages, 6)
}

func TestValidate(t *testing.T) {
	conf := DefaultConfig()
	assert.NoError(t, conf.Validate())

	conf.PublishTimeout = 0
	assert.EqualError(t, conf.Validate(), "publish-timeout must be positive")

	conf = DefaultConfig()
	conf.MaxFailures = -1
	assert.EqualError(t, conf.Validate(), "max-failures can't be negative")
}
