// Simulation Queue
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

// Package sched implements the simulation orchestrator: a single
// global job queue feeding a bounded pool of game workers.  Exactly
// one job executes at a time process-wide; everything submitted
// while it runs waits its turn in submission order.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pig "go-pig"
	"go-pig/cmd"
	"go-pig/sched/isol"

	"github.com/google/uuid"
)

// MaxGames bounds the size of a single simulation job.
const MaxGames = 1_000_000

// Validation errors, surfaced synchronously on submission and never
// retried.
var (
	ErrTooFewPlayers = errors.New("a simulation needs at least two participants")
	ErrGameCount     = errors.New("the number of games must lie between 1 and 1000000")
	ErrBacklog       = errors.New("too many simulations are waiting")
	ErrNotRunning    = errors.New("the scheduler is not accepting simulations")
)

// A Source supplies the per-worker agents of one participant and
// carries its simulation-scoped accounting.  Strategy modules
// (isol.Module) are the production implementation; tests substitute
// scripted agents.
type Source interface {
	fmt.Stringer
	User() *pig.User
	Spawn(context.Context) (pig.Agent, error)
	Peak() uint64
	Disqualified() error
	Shutdown() error
}

// wasmSource adapts a compiled strategy module to the Source
// interface, narrowing the instance type to a plain agent.
type wasmSource struct{ *isol.Module }

func (s wasmSource) Spawn(ctx context.Context) (pig.Agent, error) {
	return s.Module.Spawn(ctx)
}

// MakeWasm adapts an already loaded strategy module into a Source.
func MakeWasm(m *isol.Module) Source { return wasmSource{m} }

// A native source hands out an in-process reference strategy.  It
// has no sandbox: it cannot fault and uses no guest memory.
type native struct{ agent pig.Agent }

// MakeNative wraps a built-in strategy as a Source, so that it can
// take part in simulations next to sandboxed modules.
func MakeNative(a pig.Agent) Source { return native{a} }

func (s native) String() string {
	if str, ok := s.agent.(fmt.Stringer); ok {
		return str.String()
	}
	return s.agent.User().String()
}

func (s native) User() *pig.User                          { return s.agent.User() }
func (s native) Spawn(context.Context) (pig.Agent, error) { return s.agent, nil }
func (s native) Peak() uint64                             { return 0 }
func (s native) Disqualified() error                      { return nil }
func (s native) Shutdown() error                          { return nil }

func loadWasm(ctx context.Context, u *pig.User, limit uint64, timeout time.Duration) (Source, error) {
	m, err := isol.Load(ctx, u, limit, timeout)
	if err != nil {
		return nil, err
	}
	return wasmSource{m}, nil
}

type queue struct {
	st   *cmd.State
	conf *cmd.Conf
	load func(context.Context, *pig.User, uint64, time.Duration) (Source, error)

	jobs chan *pig.Job
	shut chan struct{}
	wait sync.WaitGroup

	lock sync.Mutex
	reg  map[string]*pig.Job
}

func (q *queue) String() string { return "Simulation Queue" }

func MakeQueue() cmd.Scheduler {
	return &queue{
		load: loadWasm,
		jobs: make(chan *pig.Job, 64),
		shut: make(chan struct{}),
		reg:  make(map[string]*pig.Job),
	}
}

// Submit validates a simulation request, persists it as pending and
// adds it to the queue.  The returned job may be polled immediately.
func (q *queue) Submit(users []*pig.User, games uint32) (*pig.Job, error) {
	if len(users) < 2 {
		return nil, ErrTooFewPlayers
	}
	if games < 1 || games > MaxGames {
		return nil, ErrGameCount
	}
	q.lock.Lock()
	st := q.st
	q.lock.Unlock()
	if st == nil {
		return nil, ErrNotRunning
	}

	j := &pig.Job{
		Id:    uuid.NewString(),
		Users: users,
		Games: games,
	}

	q.lock.Lock()
	q.reg[j.Id] = j
	q.lock.Unlock()

	if db := st.Database; db != nil {
		db.SaveJob(context.Background(), j)
	}

	select {
	case q.jobs <- j:
		pig.Debug.Println("Queued", j)
		return j, nil
	default:
		q.lock.Lock()
		delete(q.reg, j.Id)
		q.lock.Unlock()
		j.Fail(ErrBacklog.Error(), nil)
		if db := st.Database; db != nil {
			db.UpdateJob(context.Background(), j)
		}
		return nil, ErrBacklog
	}
}

// Job looks up a job this process has accepted.  Historical jobs
// from earlier runs live in the database, not here.
func (q *queue) Job(id string) *pig.Job {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.reg[id]
}

func (q *queue) Start(st *cmd.State, conf *cmd.Conf) {
	q.lock.Lock()
	q.st, q.conf = st, conf
	q.lock.Unlock()
	for {
		select {
		case <-q.shut:
			return
		case j := <-q.jobs:
			q.wait.Add(1)
			q.run(j)
			q.wait.Done()
		}
	}
}

func (q *queue) Shutdown() {
	close(q.shut)
	q.wait.Wait()
}

// Simulate runs a single job over pre-built sources, without going
// through the queue.  It returns as soon as the job is underway; the
// caller observes completion via the job itself.  This is what the
// command line front end uses, where there is nothing else to
// schedule around.
func Simulate(st *cmd.State, conf *cmd.Conf, srcs []Source, games uint32) (*pig.Job, error) {
	if len(srcs) < 2 {
		return nil, ErrTooFewPlayers
	}
	if games < 1 || games > MaxGames {
		return nil, ErrGameCount
	}

	users := make([]*pig.User, len(srcs))
	for i, s := range srcs {
		users[i] = s.User()
	}
	q := &queue{st: st, conf: conf,
		load: func(_ context.Context, u *pig.User, _ uint64, _ time.Duration) (Source, error) {
			for _, s := range srcs {
				if s.User() == u {
					return s, nil
				}
			}
			return nil, errors.New("unknown participant")
		}}
	j := &pig.Job{
		Id:    uuid.NewString(),
		Users: users,
		Games: games,
	}
	go q.run(j)
	return j, nil
}

// Register announces a fresh simulation queue to the shared state.
func Register(st *cmd.State) {
	st.Register(MakeQueue())
}
