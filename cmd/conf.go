// Configuration Specification and Management
//
// Copyright (c) 2023, 2024  Philip Kaludercic
//
// This file is part of go-pig.
//
// go-pig is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// go-pig is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with go-pig. If not, see
// <http://www.gnu.org/licenses/>

package cmd

import (
	"flag"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	pig "go-pig"

	"github.com/BurntSushi/toml"
)

const defconf = "go-pig.toml"

func init() {
	def := &defaultConfig

	flag.StringVar(&def.Database.File, "db", def.Database.File,
		"File to use for the database")

	flag.UintVar(&def.Game.Timeout, "timeout", def.Game.Timeout,
		"Decision call budget in milliseconds")
	flag.Uint64Var(&def.Game.Memory, "memory", def.Game.Memory,
		"Memory budget in megabytes, shared by all participants")
	flag.UintVar(&def.Game.Workers, "workers", def.Game.Workers,
		"Number of concurrent game workers")
	flag.BoolVar(&def.Game.Elimination, "elimination", def.Game.Elimination,
		"Sideline participants that fail to overtake the leader")

	flag.BoolVar(&def.Web.Enabled, "www", def.Web.Enabled,
		"Enable the web interface")
	flag.UintVar(&def.Web.Port, "wwwport", def.Web.Port,
		"Port to use for the HTTP server")
	flag.BoolVar(&def.Web.WebSocket, "websocket", def.Web.WebSocket,
		"Enable live progress over WebSocket connections")
	flag.StringVar(&def.Web.Bots, "bots", def.Web.Bots,
		"Directory to store uploaded strategy modules in")

	flag.BoolVar(&debug, "debug", debug, "Enable debug output")
	flag.BoolVar(&silent, "silent", silent, "Disable log output")
	flag.BoolVar(&dump, "dump-config", dump, "Dump configuration to standard output")
	flag.StringVar(&cfile, "conf", cfile, "Path to configuration file")
}

type DatabaseConf struct {
	File string `toml:"file"`
}

type GameConf struct {
	// Soft wall-clock budget for one decision call, in
	// milliseconds.  Overruns count as execution faults.
	Timeout uint `toml:"timeout"`
	// Memory budget in megabytes, split evenly across the
	// participants of a simulation.
	Memory uint64 `toml:"memory"`
	// Number of games run in parallel
	Workers uint `toml:"workers"`
	// Endgame variant: a participant that fails to overtake the
	// leader during a final round is sidelined for the rest of
	// the game.
	Elimination bool `toml:"elimination"`
}

type WebConf struct {
	Enabled   bool   `toml:"enabled"`
	Port      uint   `toml:"port"`
	WebSocket bool   `toml:"websocket"`
	Bots      string `toml:"bots"`
}

// Internal representation
type Conf struct {
	Database DatabaseConf `toml:"database"`
	Game     GameConf     `toml:"game"`
	Web      WebConf      `toml:"web"`
}

// Configuration object used by default
var defaultConfig = Conf{
	Database: DatabaseConf{
		File: "go-pig.db",
	},
	Game: GameConf{
		Timeout:     100,
		Memory:      200,
		Workers:     uint(runtime.NumCPU()),
		Elimination: false,
	},
	Web: WebConf{
		Enabled:   true,
		WebSocket: true,
		Port:      8080,
		Bots:      "bots",
	},
}

var (
	debug  = false
	silent = false
	dump   = false
	cfile  = defconf
)

// MoveTimeout returns the decision call budget as a duration.
func (c *Conf) MoveTimeout() time.Duration {
	return time.Duration(c.Game.Timeout) * time.Millisecond
}

// MemoryLimit returns the per-participant memory ceiling in bytes
// for a simulation with n participants.
func (c *Conf) MemoryLimit(n int) uint64 {
	if n <= 0 {
		panic("Memory budget for an empty simulation")
	}
	return c.Game.Memory * 1024 * 1024 / uint64(n)
}

// Open a configuration file and return it
func LoadConf() (c *Conf) {
	c = &defaultConfig
	file, err := os.Open(cfile)
	if err != nil {
		if !os.IsNotExist(err) || cfile != defconf {
			log.Fatal(err)
		}
	} else {
		defer file.Close()
		_, err := toml.NewDecoder(file).Decode(c)
		if err != nil {
			log.Fatal(cfile, ": ", err)
		}
	}

	switch {
	case debug:
		pig.EnableDebug()
		log.Default().SetFlags(log.LstdFlags | log.Lshortfile)
		pig.Debug.Println("Debug logging has been enabled")
	case silent:
		log.Default().SetOutput(io.Discard)
	}

	// Dump the configuration onto the disk if requested
	if dump {
		err = c.Dump(os.Stdout)
		if err != nil {
			log.Fatalln("Failed to dump default configuration:", err)
		}
		os.Exit(0)
	}

	return c
}

// Serialise the configuration into a writer
func (c *Conf) Dump(wr io.Writer) error {
	return toml.NewEncoder(wr).Encode(c)
}
