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

// Package framesource receives frames and detections from the camera
// front end over a unix socket.
package framesource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/TheCacophonyProject/pantilt-tracker/headers"
	"github.com/TheCacophonyProject/pantilt-tracker/loglimiter"
	"github.com/TheCacophonyProject/pantilt-tracker/tracking"
)

const readBufferSize = 64 * 1024

type Config struct {
	FrameInput   string        `yaml:"frame-input"`
	FrameTimeout time.Duration `yaml:"frame-timeout"`
}

func DefaultConfig() Config {
	return Config{
		FrameInput:   "/var/run/pantilt-frames",
		FrameTimeout: 5 * time.Second,
	}
}

func (conf *Config) Validate() error {
	if conf.FrameInput == "" {
		return errors.New("frame-input not set")
	}
	if conf.FrameTimeout <= 0 {
		return errors.New("frame-timeout must be positive")
	}
	return nil
}

// Accept waits for the next front end connection on the configured
// socket. Only one connection is served at a time.
func Accept(ctx context.Context, conf Config) (*Conn, error) {
	os.Remove(conf.FrameInput)
	listener, err := net.Listen("unixpacket", conf.FrameInput)
	if err != nil {
		return nil, err
	}
	// Prevent concurrent connections.
	defer listener.Close()
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	log.Print("waiting for camera connection")
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("socket accept failed: %v", err)
	}
	c, err := NewConn(conn, conf.FrameTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

type wireDetection struct {
	Box        []float64 `json:"box"`
	Confidence float64   `json:"confidence"`
	Depth      float64   `json:"depth"`
}

type wireFrame struct {
	Frame      int             `json:"frame"`
	Time       time.Time       `json:"time"`
	Detections []wireDetection `json:"detections"`
}

// Conn reads one front end connection. It implements tracking.Camera
// and tracking.Detector; detection happens in the front end so the
// detections arrive with each frame.
type Conn struct {
	conn      net.Conn
	decoder   *json.Decoder
	header    *headers.HeaderInfo
	timeout   time.Duration
	log       *loglimiter.LogLimiter
	closeOnce sync.Once
	closeErr  error
}

// NewConn reads the header from conn. Frame reads taking longer than
// timeout fail.
func NewConn(conn net.Conn, timeout time.Duration) (*Conn, error) {
	reader := bufio.NewReaderSize(conn, readBufferSize)
	conn.SetReadDeadline(time.Now().Add(timeout))
	header, err := headers.ReadHeaderInfo(reader)
	if err != nil {
		return nil, fmt.Errorf("reading header: %v", err)
	}
	if err := header.Intrinsics().Validate(); err != nil {
		return nil, fmt.Errorf("bad camera header: %v", err)
	}
	log.Printf("connection from %s %s (%dx%d@%dfps)",
		header.Brand(), header.Model(), header.ResX(), header.ResY(), header.FPS())

	return &Conn{
		conn:    conn,
		decoder: json.NewDecoder(reader),
		header:  header,
		timeout: timeout,
		log:     loglimiter.New(time.Minute),
	}, nil
}

func (c *Conn) Header() *headers.HeaderInfo {
	return c.header
}

func (c *Conn) NextFrame() (tracking.Frame, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	var w wireFrame
	if err := c.decoder.Decode(&w); err != nil {
		return tracking.Frame{}, err
	}

	frame := tracking.Frame{
		Number:     w.Frame,
		Time:       w.Time,
		Intrinsics: c.header.Intrinsics(),
		Detections: make([]tracking.Detection, 0, len(w.Detections)),
	}
	for _, d := range w.Detections {
		if len(d.Box) != 4 {
			c.log.Printf("dropping detection with %d box values", len(d.Box))
			continue
		}
		frame.Detections = append(frame.Detections, tracking.Detection{
			Box:        [4]float64{d.Box[0], d.Box[1], d.Box[2], d.Box[3]},
			Confidence: d.Confidence,
			Depth:      d.Depth,
		})
	}
	return frame, nil
}

// Detect returns the detections the front end sent with the frame.
func (c *Conn) Detect(frame tracking.Frame) ([]tracking.Detection, error) {
	return frame.Detections, nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
