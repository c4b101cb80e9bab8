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
	"fmt"
	"log"
	"sort"

	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/pantilt-tracker/trackerctl"
)

var version = "<not set>"

type StateCmd struct{}
type HomeCmd struct{}
type StatsCmd struct{}

type Args struct {
	State *StateCmd `arg:"subcommand:state" help:"print whether the tracker is idle or tracking"`
	Home  *HomeCmd  `arg:"subcommand:home" help:"send every unit to its home position"`
	Stats *StatsCmd `arg:"subcommand:stats" help:"print the tracker's frame counters"`
}

func (Args) Version() string {
	return version
}

func main() {
	log.SetFlags(0)
	var args Args
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing command")
	}
	if err := runMain(args); err != nil {
		log.Fatal(err)
	}
}

func runMain(args Args) error {
	switch {
	case args.State != nil:
		state, err := trackerctl.State()
		if err != nil {
			return err
		}
		fmt.Println(state)
	case args.Home != nil:
		return trackerctl.Home()
	case args.Stats != nil:
		stats, err := trackerctl.Stats()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %d\n", name, stats[name])
		}
	}
	return nil
}
