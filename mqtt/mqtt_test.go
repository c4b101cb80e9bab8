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

package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

// fakeClient implements the parts of paho.Client used by Client.
type fakeClient struct {
	paho.Client
	mu        sync.Mutex
	connected bool
	publishes []string
	handlers  map[string]paho.MessageHandler
	token     *fakeToken

	connectToken *fakeToken
	disconnected bool
}

func (f *fakeClient) Connect() paho.Token { return f.connectToken }

func (f *fakeClient) Disconnect(quiesce uint) { f.disconnected = true }

func (f *fakeClient) IsConnectionOpen() bool { return f.connected }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := topic + " " + string(payload.([]byte))
	if retained {
		msg += " (retained)"
	}
	f.publishes = append(f.publishes, msg)
	if f.token != nil {
		return f.token
	}
	return newToken(nil, true)
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]paho.MessageHandler)
	}
	f.handlers[topic] = callback
	return newToken(nil, true)
}

func (f *fakeClient) deliver(sub, topic, payload string) {
	f.mu.Lock()
	h := f.handlers[sub]
	f.mu.Unlock()
	h(f, &fakeMessage{topic: topic, payload: []byte(payload)})
}

func newTestClient() (*Client, *fakeClient) {
	fake := &fakeClient{connected: true}
	return &Client{
		client:   fake,
		subs:     make(map[string]Handler),
		retained: make(map[string][]byte),
	}, fake
}

func TestPublish(t *testing.T) {
	c, fake := newTestClient()
	require.NoError(t, c.Publish(context.Background(), "pantilt/units/a", []byte(`{}`)))
	assert.Equal(t, []string{"pantilt/units/a {}"}, fake.publishes)
}

func TestPublishNotConnected(t *testing.T) {
	c, fake := newTestClient()
	fake.connected = false
	assert.EqualError(t, c.Publish(context.Background(), "pantilt/units/a", nil), "not connected")
	assert.Empty(t, fake.publishes)
}

func TestPublishError(t *testing.T) {
	c, fake := newTestClient()
	fake.token = newToken(errors.New("broker said no"), true)
	assert.EqualError(t, c.Publish(context.Background(), "t", []byte("x")), "broker said no")
}

func TestPublishHonoursContext(t *testing.T) {
	c, fake := newTestClient()
	fake.token = newToken(nil, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, c.Publish(ctx, "t", []byte("x")))
}

func TestSubscribeAndResubscribe(t *testing.T) {
	c, fake := newTestClient()

	var got []string
	require.NoError(t, c.Subscribe("pantilt/units/+", func(topic string, payload []byte) {
		got = append(got, topic+" "+string(payload))
	}))
	fake.deliver("pantilt/units/+", "pantilt/units/a", "one")

	// A reconnect replaces the broker side subscription.
	fake.handlers = nil
	c.onConnect(fake)
	fake.deliver("pantilt/units/+", "pantilt/units/b", "two")

	assert.Equal(t, []string{"pantilt/units/a one", "pantilt/units/b two"}, got)
}

// useFakePaho makes Connect build fake in place of a real paho client and
// returns where the options it was given are stored.
func useFakePaho(t *testing.T, fake *fakeClient) **paho.ClientOptions {
	opts := new(*paho.ClientOptions)
	newPahoClient = func(o *paho.ClientOptions) paho.Client {
		*opts = o
		return fake
	}
	t.Cleanup(func() { newPahoClient = paho.NewClient })
	return opts
}

func TestConnectToUnreachableBroker(t *testing.T) {
	fake := &fakeClient{connectToken: newToken(nil, false)}
	opts := useFakePaho(t, fake)

	conf := DefaultConfig()
	conf.ConnectTimeout = 10 * time.Millisecond
	conf.RetryInterval = 3 * time.Second
	c, err := Connect(conf, "actuator")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, fake.disconnected)
	require.NotNil(t, *opts)
	assert.True(t, (*opts).ConnectRetry)
	assert.Equal(t, 3*time.Second, (*opts).ConnectRetryInterval)
	assert.True(t, (*opts).AutoReconnect)

	// Until the broker is reached publishes fail and subscriptions wait.
	assert.EqualError(t, c.Publish(context.Background(), "pantilt/units/a", []byte("x")), "not connected")
	var got []string
	require.NoError(t, c.Subscribe("pantilt/units/+", func(topic string, payload []byte) {
		got = append(got, topic)
	}))
	require.NoError(t, c.PublishRetained("pantilt/fingerprint", []byte("abc")))
	assert.Empty(t, fake.handlers)
	assert.Empty(t, fake.publishes)

	fake.connected = true
	c.onConnect(fake)
	fake.deliver("pantilt/units/+", "pantilt/units/a", "{}")
	assert.Equal(t, []string{"pantilt/units/a"}, got)
	assert.Equal(t, []string{"pantilt/fingerprint abc (retained)"}, fake.publishes)
}

func TestConnectRejected(t *testing.T) {
	fake := &fakeClient{connectToken: newToken(errors.New("not authorised"), true)}
	useFakePaho(t, fake)

	c, err := Connect(DefaultConfig(), "tracker")
	assert.Nil(t, c)
	assert.EqualError(t, err, "connecting to tcp://localhost:1883: not authorised")
	assert.True(t, fake.disconnected)
}

func TestPublishRetainedRepublishedOnReconnect(t *testing.T) {
	c, fake := newTestClient()
	require.NoError(t, c.PublishRetained("pantilt/fingerprint", []byte("abc")))
	c.onConnect(fake)
	assert.Equal(t, []string{
		"pantilt/fingerprint abc (retained)",
		"pantilt/fingerprint abc (retained)",
	}, fake.publishes)
}

func TestClientID(t *testing.T) {
	conf := DefaultConfig()
	id := ClientID(conf, "tracker")
	assert.True(t, strings.HasPrefix(id, "pantilt-tracker-"))
	assert.NotEqual(t, id, ClientID(conf, "tracker"))

	conf.ClientID = "fixed"
	assert.Equal(t, "fixed", ClientID(conf, "tracker"))
}

func TestValidate(t *testing.T) {
	conf := DefaultConfig()
	assert.NoError(t, conf.Validate())

	conf.QoS = 3
	assert.EqualError(t, conf.Validate(), "invalid mqtt qos 3")

	conf = DefaultConfig()
	conf.TopicPrefix = "pantilt/#"
	assert.EqualError(t, conf.Validate(), `invalid mqtt topic-prefix "pantilt/#"`)

	conf = DefaultConfig()
	conf.Broker = ""
	assert.EqualError(t, conf.Validate(), "mqtt broker not set")

	conf = DefaultConfig()
	conf.RetryInterval = 0
	assert.EqualError(t, conf.Validate(), "mqtt retry-interval must be positive")
}
