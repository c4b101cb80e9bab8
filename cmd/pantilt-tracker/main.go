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

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/config"
	"github.com/TheCacophonyProject/pantilt-tracker/dispatch"
	"github.com/TheCacophonyProject/pantilt-tracker/events"
	"github.com/TheCacophonyProject/pantilt-tracker/framesource"
	"github.com/TheCacophonyProject/pantilt-tracker/location"
	"github.com/TheCacophonyProject/pantilt-tracker/mqtt"
	"github.com/TheCacophonyProject/pantilt-tracker/service"
	"github.com/TheCacophonyProject/pantilt-tracker/throttle"
	"github.com/TheCacophonyProject/pantilt-tracker/tracking"
)

const acceptRetryDelay = time.Second

var version = "<not set>"

type Args struct {
	ConfigFile   string `arg:"-c,--config" help:"path to configuration file"`
	ConfigDir    string `arg:"--device-config-dir" help:"device config directory to read the location from"`
	Timestamps   bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	DryRun       bool   `arg:"-n,--dry-run" help:"log commands instead of publishing them"`
	MQTTUsername string `arg:"--mqtt-username,env:PANTILT_MQTT_USERNAME" help:"overrides mqtt username in the config"`
	MQTTPassword string `arg:"--mqtt-password,env:PANTILT_MQTT_PASSWORD" help:"overrides mqtt password in the config"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	if err := config.LoadEnvFile(config.DefaultEnvFile); err != nil {
		log.Printf("failed to load %s: %v", config.DefaultEnvFile, err)
	}
	var args Args
	args.ConfigFile = config.DefaultConfigFile
	args.ConfigDir = location.DefaultDeviceConfigDir
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()

	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := config.ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	conf.SetMQTTCredentials(args.MQTTUsername, args.MQTTPassword)
	if loc, err := location.ReadDeviceLocation(args.ConfigDir); err != nil {
		log.Printf("using location from %s: %v", args.ConfigFile, err)
	} else {
		conf.Location = loc
	}
	logConfig(conf)

	registry, err := conf.Registry()
	if err != nil {
		return err
	}
	cameraPose, err := conf.CameraPose()
	if err != nil {
		return err
	}
	win, err := tracking.NewWindow(conf.Tracker, conf.Location)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher dispatch.Publisher = dispatch.LogPublisher{}
	if args.DryRun {
		log.Print("dry run, commands will only be logged")
	} else {
		log.Printf("connecting to %s", conf.MQTT.Broker)
		client, err := mqtt.Connect(conf.MQTT, "tracker")
		if err != nil {
			return err
		}
		defer client.Close()
		publisher = client

		fingerprint := registry.Fingerprint()
		log.Printf("units fingerprint %s", fingerprint)
		if err := client.PublishRetained(command.FingerprintTopic(conf.MQTT.TopicPrefix), []byte(fingerprint)); err != nil {
			log.Printf("publishing units fingerprint: %v", err)
		}
	}

	eventRecorder := events.NewRecorder()
	throttler := throttle.New(conf.Dispatch.Throttle, eventRecorder)
	dispatcher := dispatch.New(publisher, conf.MQTT.TopicPrefix, conf.Dispatch, throttler)
	dispatcher.SetListener(eventRecorder)

	loop := tracking.New(conf.Tracker, registry, cameraPose, dispatcher, win)

	log.Println("starting d-bus service")
	svc, err := service.Start(loop)
	if err != nil {
		return err
	}
	loop.SetListener(svc)

	for {
		conn, err := framesource.Accept(ctx, conf.Config)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Print(err)
			select {
			case <-ctx.Done():
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		log.Printf("tracking with camera serial %s", conn.Header().Serial())
		err = loop.Run(ctx, newWatchdogCamera(conn), conn)
		if errors.Is(err, dispatch.ErrTransportDown) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
		log.Printf("camera connection ended with: %v", err)
	}

	stats := dispatcher.Stats()
	log.Printf("stopping, %d frames sent, %d failed, %d throttled", stats.Sent, stats.Failed, stats.Throttled)
	return nil
}

func logConfig(conf *config.Config) {
	log.Printf("frame input: %s", conf.FrameInput)
	log.Printf("camera: position %v orientation %v", conf.Camera.Position, conf.Camera.Orientation)
	for _, u := range conf.Units {
		log.Printf("unit %s: board %d pan channel %d tilt channel %d", u.Name, u.Board, u.Pan.Channel, u.Tilt.Channel)
	}
	log.Printf("tracker: %+v", conf.Tracker)
	log.Printf("dispatch: publish timeout %v, max failures %d", conf.Dispatch.PublishTimeout, conf.Dispatch.MaxFailures)
	log.Printf("throttle: %+v", conf.Dispatch.Throttle)
	log.Printf("mqtt: %s prefix %q qos %d", conf.MQTT.Broker, conf.MQTT.TopicPrefix, conf.MQTT.QoS)
	if conf.Tracker.WindowStart != "" {
		log.Printf("tracking window: %s to %s", conf.Tracker.WindowStart, conf.Tracker.WindowEnd)
		log.Printf("location: %v, %v", conf.Location.Latitude, conf.Location.Longitude)
	}
}
