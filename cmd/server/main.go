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

package main

import (
	"flag"
	"fmt"
	"os"

	"go-pig/cmd"
	"go-pig/db"
	"go-pig/sched"
	"go-pig/web"
)

func main() {
	flag.Parse()
	if flag.NArg() != 0 {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Too many arguments passed to %s.\nUsage:\n",
			os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	conf := cmd.LoadConf()
	st := cmd.MakeState()

	// Enable the database
	db.Register(st, conf)

	// Accept simulation jobs
	sched.Register(st)

	// Enable the web interface
	web.Register(st, conf)

	// Launch the server
	st.Start(conf)
}
