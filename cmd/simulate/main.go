// Entry point
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

// The simulate command runs a one-shot simulation between strategy
// modules given on the command line, without a database or a web
// interface, and prints a summary to standard output.  Built-in
// reference strategies can be mixed in as opponents.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	pig "go-pig"
	"go-pig/bot"
	"go-pig/cmd"
	"go-pig/sched"
	"go-pig/sched/isol"
)

func main() {
	var builtin []pig.Agent
	games := flag.Uint("n", sched.MaxGames, "Number of games to simulate")
	flag.Func("hold", "Add a built-in hold-at-`N` opponent (repeatable)",
		func(v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return err
			}
			builtin = append(builtin, bot.MakeHold(uint32(n)))
			return nil
		})
	flag.Func("random", "Add a built-in random opponent rolling with probability `P`",
		func(v string) error {
			p, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			builtin = append(builtin, bot.MakeRandom(p, time.Now().UnixNano()))
			return nil
		})

	flag.Parse()
	conf := cmd.LoadConf()
	st := cmd.MakeState()

	total := flag.NArg() + len(builtin)
	if total < 2 {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags...] module.wasm...\nFlags:\n",
			os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	var (
		limit = conf.MemoryLimit(total)
		srcs  []sched.Source
	)
	for _, path := range flag.Args() {
		u := &pig.User{
			Id:   uuid.NewString(),
			Name: filepath.Base(path),
			Path: path,
		}
		m, err := isol.Load(st.Context, u, limit, conf.MoveTimeout())
		if err != nil {
			log.Fatal(err)
		}
		srcs = append(srcs, sched.MakeWasm(m))
	}
	for _, a := range builtin {
		a.User().Id = uuid.NewString()
		srcs = append(srcs, sched.MakeNative(a))
	}

	j, err := sched.Simulate(st, conf, srcs, uint32(*games))
	if err != nil {
		log.Fatal(err)
	}

	for !j.Done() {
		time.Sleep(time.Second)
		done := j.Completed()
		fmt.Printf("\rProgress: %d/%d games (%d%%)",
			done, j.Games, 100*uint64(done)/uint64(j.Games))
	}
	fmt.Println()

	if j.Status() == pig.Failed {
		log.Fatalln("Simulation failed:", j.Reason())
	}

	played := j.Completed()
	if played == 0 {
		played = 1
	}
	fmt.Printf("Final statistics after %d games:\n", j.Completed())
	for i, res := range j.Results() {
		note := ""
		if res.Disqualified {
			note = " [disqualified]"
		}
		fmt.Printf("%d. %s: %d wins (%.1f%%), %d total ($%.2f avg/game), %d bytes peak%s\n",
			i+1, j.Users[i], res.Wins,
			float64(res.Wins)/float64(played)*100,
			res.Money, res.Average(played), res.Peak, note)
	}
}
