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
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/pantilt-tracker/command"
	"github.com/TheCacophonyProject/pantilt-tracker/config"
	"github.com/TheCacophonyProject/pantilt-tracker/mqtt"
	"github.com/TheCacophonyProject/pantilt-tracker/receiver"
	"github.com/TheCacophonyProject/pantilt-tracker/servo"
	"github.com/TheCacophonyProject/pantilt-tracker/units"
)

const (
	sdNotifyInterval = 5 * time.Second
	statsLogInterval = 5 * time.Minute

	exerciseStep  = 1.0
	exerciseDelay = 20 * time.Millisecond
)

var version = "<not set>"

type Args struct {
	ConfigFile   string  `arg:"-c,--config" help:"path to configuration file"`
	Timestamps   bool    `arg:"-t,--timestamps" help:"include timestamps in log output"`
	DryRun       bool    `arg:"-n,--dry-run" help:"log pulse widths instead of driving the servo boards"`
	Exercise     bool    `arg:"--exercise" help:"sweep every unit about straight ahead, send it home and exit"`
	Amplitude    float64 `arg:"--exercise-amplitude" help:"degrees either side of straight ahead to sweep"`
	Cycles       int     `arg:"--exercise-cycles" help:"number of sweeps"`
	MQTTUsername string  `arg:"--mqtt-username,env:PANTILT_MQTT_USERNAME" help:"overrides mqtt username in the config"`
	MQTTPassword string  `arg:"--mqtt-password,env:PANTILT_MQTT_PASSWORD" help:"overrides mqtt password in the config"`
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
	args.Amplitude = 30
	args.Cycles = 2
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

	log.Printf("version: %s", version)
	conf, err := config.ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	conf.SetMQTTCredentials(args.MQTTUsername, args.MQTTPassword)

	registry, err := conf.Registry()
	if err != nil {
		return err
	}
	logConfig(conf, registry)

	drivers, err := openBoards(conf, registry, args.DryRun)
	defer closeBoards(drivers)
	if err != nil {
		return err
	}

	rcv, err := receiver.New(registry, drivers, conf.MQTT.TopicPrefix)
	if err != nil {
		return err
	}
	if conf.Actuator.HomeOnStart {
		log.Print("moving units home")
		if err := rcv.Home(); err != nil {
			log.Printf("homing failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.Exercise {
		return rcv.Exercise(ctx, receiver.Exercise{
			Amplitude: args.Amplitude,
			Step:      exerciseStep,
			Delay:     exerciseDelay,
			Cycles:    args.Cycles,
		})
	}

	// An unreachable broker is retried in the background. The units stay
	// where they are until commands arrive.
	log.Printf("connecting to %s", conf.MQTT.Broker)
	client, err := mqtt.Connect(conf.MQTT, "actuator")
	if err != nil {
		return err
	}
	topic := command.SubscribeTopic(conf.MQTT.TopicPrefix)
	if err := client.Subscribe(topic, rcv.OnMessage); err != nil {
		client.Close()
		return err
	}
	log.Printf("listening for commands on %s", topic)

	fingerprints := receiver.NewFingerprintCheck(registry.Fingerprint())
	if err := client.Subscribe(command.FingerprintTopic(conf.MQTT.TopicPrefix), fingerprints.OnMessage); err != nil {
		log.Printf("checking tracker units: %v", err)
	}

	run(ctx, rcv)

	client.Close()
	if conf.Actuator.HomeOnExit {
		log.Print("moving units home")
		if err := rcv.Home(); err != nil {
			log.Printf("homing failed: %v", err)
		}
	}
	return nil
}

// run keeps the systemd watchdog fed until ctx is done.
func run(ctx context.Context, rcv *receiver.Receiver) {
	notify := time.NewTicker(sdNotifyInterval)
	defer notify.Stop()
	statsLog := time.NewTicker(statsLogInterval)
	defer statsLog.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Print("stopping")
			return
		case <-notify.C:
			daemon.SdNotify(false, "WATCHDOG=1")
		case <-statsLog.C:
			logStats(rcv.Stats())
		}
	}
}

func openBoards(conf *config.Config, registry *units.Registry, dryRun bool) (map[int]servo.Driver, error) {
	drivers := make(map[int]servo.Driver)
	for _, board := range conf.Boards(registry.Boards()) {
		if dryRun {
			board.Driver = servo.DriverLog
		}
		log.Printf("opening board %d (%s)", board.ID, board.Driver)
		driver, err := servo.Open(board)
		if err != nil {
			return drivers, err
		}
		drivers[board.ID] = driver
	}
	return drivers, nil
}

func closeBoards(drivers map[int]servo.Driver) {
	for id, driver := range drivers {
		if err := driver.Close(); err != nil {
			log.Printf("closing board %d: %v", id, err)
		}
	}
}

func logStats(s receiver.Stats) {
	log.Printf("commands applied: %d, malformed: %d, unknown unit: %d, stale: %d, failed: %d",
		s.Applied, s.Malformed, s.Unknown, s.Stale, s.Failed)
}

func logConfig(conf *config.Config, registry *units.Registry) {
	log.Printf("%d units on boards %v", registry.Len(), registry.Boards())
	for _, u := range registry.Units() {
		log.Printf("unit %s: board %d pan channel %d [%v, %v] tilt channel %d [%v, %v]",
			u.Name, u.Board,
			u.Pan.Channel, u.Pan.Min, u.Pan.Max,
			u.Tilt.Channel, u.Tilt.Min, u.Tilt.Max)
	}
	log.Printf("mqtt: %s prefix %q qos %d", conf.MQTT.Broker, conf.MQTT.TopicPrefix, conf.MQTT.QoS)
	log.Printf("home on start: %v, home on exit: %v", conf.Actuator.HomeOnStart, conf.Actuator.HomeOnExit)
}
