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

// Package mqtt connects the tracker and actuator hosts through an MQTT
// broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client-id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic-prefix"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect-timeout"`
	KeepAlive      time.Duration `yaml:"keep-alive"`

	// RetryInterval is how often an unreachable broker is retried.
	RetryInterval time.Duration `yaml:"retry-interval"`
}

func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		TopicPrefix:    "pantilt",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
		RetryInterval:  10 * time.Second,
	}
}

func (conf *Config) Validate() error {
	if conf.Broker == "" {
		return errors.New("mqtt broker not set")
	}
	if conf.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", conf.QoS)
	}
	if conf.TopicPrefix == "" || strings.ContainsAny(conf.TopicPrefix, "+#") {
		return fmt.Errorf("invalid mqtt topic-prefix %q", conf.TopicPrefix)
	}
	if conf.ConnectTimeout <= 0 {
		return errors.New("mqtt connect-timeout must be positive")
	}
	if conf.RetryInterval <= 0 {
		return errors.New("mqtt retry-interval must be positive")
	}
	return nil
}

// Handler receives the topic and payload of each message.
type Handler func(topic string, payload []byte)

// Client publishes and subscribes through a broker. Subscriptions are
// restored whenever the connection is re-established.
type Client struct {
	client paho.Client
	qos    byte

	mu       sync.Mutex
	subs     map[string]Handler
	retained map[string][]byte
}

// ClientID returns conf.ClientID or a unique id for role.
func ClientID(conf Config, role string) string {
	if conf.ClientID != "" {
		return conf.ClientID
	}
	return "pantilt-" + role + "-" + uuid.New().String()
}

var newPahoClient = paho.NewClient

// Connect starts connecting to the configured broker. An unreachable
// broker is not an error: the connection is retried in the background,
// Publish fails with "not connected" meanwhile and subscriptions are
// made once it is up.
func Connect(conf Config, role string) (*Client, error) {
	c := &Client{
		qos:      conf.QoS,
		subs:     make(map[string]Handler),
		retained: make(map[string][]byte),
	}

	opts := paho.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(ClientID(conf, role)).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetKeepAlive(conf.KeepAlive).
		SetConnectTimeout(conf.ConnectTimeout).
		SetConnectRetry(true).
		SetConnectRetryInterval(conf.RetryInterval).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
		})
	c.client = newPahoClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(conf.ConnectTimeout) {
		log.Printf("mqtt broker %s not reachable yet, retrying every %v", conf.Broker, conf.RetryInterval)
		return c, nil
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connecting to %s: %v", conf.Broker, err)
	}
	return c, nil
}

func (c *Client) onConnect(client paho.Client) {
	log.Print("mqtt connected")
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, handler := range c.subs {
		if err := c.subscribe(topic, handler); err != nil {
			log.Printf("resubscribing to %s: %v", topic, err)
		}
	}
	for topic, payload := range c.retained {
		if err := c.publishRetained(topic, payload); err != nil {
			log.Printf("publishing %s: %v", topic, err)
		}
	}
}

// Publish sends payload on topic, giving up when ctx is done.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return errors.New("not connected")
	}
	return wait(ctx, c.client.Publish(topic, c.qos, false, payload))
}

// Subscribe calls handler for each message matching topic. While the
// broker is unreachable the subscription is only recorded.
func (c *Client) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = handler
	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, handler)
}

// PublishRetained sets the retained message on topic, now if connected
// and again after every reconnect.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retained[topic] = payload
	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.publishRetained(topic, payload)
}

func (c *Client) publishRetained(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return wait(ctx, c.client.Publish(topic, c.qos, true, payload))
}

func (c *Client) subscribe(topic string, handler Handler) error {
	token := c.client.Subscribe(topic, c.qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return wait(ctx, token)
}

func (c *Client) Close() {
	c.client.Disconnect(250)
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
