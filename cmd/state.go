// Shared State
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
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	pig "go-pig"
)

type Manager interface {
	fmt.Stringer
	Start(*State, *Conf)
	Shutdown()
}

// The Scheduler accepts simulation jobs and runs them one at a time.
type Scheduler interface {
	Manager

	Submit([]*pig.User, uint32) (*pig.Job, error)
	Job(id string) *pig.Job
}

type Database interface {
	Manager

	// Access interface
	QueryBots(context.Context, chan<- *pig.User)
	QueryBot(context.Context, string) *pig.User
	QueryBotHash(context.Context, string) *pig.User
	QueryJob(context.Context, string) *pig.Job
	QueryJobs(context.Context, chan<- *pig.Job)

	// Store interface
	SaveBot(context.Context, *pig.User) error
	SaveJob(context.Context, *pig.Job)
	UpdateJob(context.Context, *pig.Job)
	UpdateProgress(context.Context, *pig.Job)
	SaveResults(context.Context, *pig.Job)
}

type State struct {
	Context context.Context
	Kill    context.CancelFunc
	Running bool

	Scheduler Scheduler
	Database  Database
	Managers  []Manager
}

func MakeState() *State {
	ctx, kill := context.WithCancel(context.Background())
	return &State{
		Context: ctx,
		Kill:    kill,
	}
}

func (st *State) Register(m Manager) {
	if st.Running {
		panic(fmt.Sprintf("Late register: %#v", m))
	}

	switch s := m.(type) {
	case Database:
		st.Database = s
	case Scheduler:
		st.Scheduler = s
	}

	st.Managers = append(st.Managers, m)
}

func (st *State) Start(c *Conf) {
	// Start the services
	for _, m := range st.Managers {
		pig.Debug.Printf("Starting %s", m)
		go m.Start(st, c)
	}
	st.Running = true

	// Catch an interrupt request...
	intr := make(chan os.Signal, 1)
	signal.Notify(intr, os.Interrupt)
	select {
	case <-intr:
		log.Println("Caught interrupt")
		st.Kill()
	case <-st.Context.Done():
		log.Println("Requested shutdown")
	}

	done := make(chan struct{})
	go func() {
		// ...and request all managers to shut down.
		pig.Debug.Println("Waiting for managers to shutdown...")
		for i := len(st.Managers) - 1; i >= 0; i-- {
			m := st.Managers[i]
			pig.Debug.Printf("Shutting %s down", m)
			m.Shutdown()
		}
		done <- struct{}{}
	}()

	select {
	case <-intr:
		log.Println("Forced shutdown")
	case <-done:
		log.Println("Shutting down regularly")
	}
}
