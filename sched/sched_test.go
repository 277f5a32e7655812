// Scheduler Tests
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

package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pig "go-pig"
	"go-pig/bot"
	"go-pig/cmd"
)

// A fakeSource stands in for a strategy module.  It hands out
// in-process agents and mirrors the gateway's accounting: the first
// fault sticks and every later decision is refused with it.
type fakeSource struct {
	user  *pig.User
	agent func() pig.Agent
	spawn error

	mu    sync.Mutex
	fault error
}

func (s *fakeSource) String() string  { return s.user.Name }
func (s *fakeSource) User() *pig.User { return s.user }
func (s *fakeSource) Peak() uint64    { return 0 }
func (s *fakeSource) Shutdown() error { return nil }

func (s *fakeSource) Spawn(context.Context) (pig.Agent, error) {
	if s.spawn != nil {
		return nil, s.spawn
	}
	return &fakeAgent{src: s, next: s.agent()}, nil
}

func (s *fakeSource) Disqualified() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

func (s *fakeSource) disqualify(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault == nil {
		s.fault = err
	}
}

type fakeAgent struct {
	src  *fakeSource
	next pig.Agent
}

func (a *fakeAgent) User() *pig.User { return a.src.user }

func (a *fakeAgent) Decide(v *pig.View) (bool, error) {
	if err := a.src.Disqualified(); err != nil {
		return false, err
	}
	roll, err := a.next.Decide(v)
	if err != nil {
		a.src.disqualify(err)
	}
	return roll, err
}

// erratic fails on its first decision.
type erratic struct{}

var errErratic = errors.New("erratic strategy")

func (erratic) User() *pig.User                { return nil }
func (erratic) Decide(*pig.View) (bool, error) { return false, errErratic }

func source(name string, agent func() pig.Agent) *fakeSource {
	return &fakeSource{
		user:  &pig.User{Id: name, Name: name},
		agent: agent,
	}
}

func fakeLoad(srcs ...*fakeSource) func(context.Context, *pig.User, uint64, time.Duration) (Source, error) {
	return func(_ context.Context, u *pig.User, _ uint64, _ time.Duration) (Source, error) {
		for _, s := range srcs {
			if s.user == u {
				return s, nil
			}
		}
		return nil, errors.New("unknown user " + u.Id)
	}
}

func testConf(workers uint) *cmd.Conf {
	return &cmd.Conf{
		Game: cmd.GameConf{
			Timeout: 100,
			Memory:  16,
			Workers: workers,
		},
	}
}

func users(srcs ...*fakeSource) []*pig.User {
	us := make([]*pig.User, len(srcs))
	for i, s := range srcs {
		us[i] = s.user
	}
	return us
}

func TestSubmit(t *testing.T) {
	q := MakeQueue()
	one := []*pig.User{{Id: "a"}}
	two := []*pig.User{{Id: "a"}, {Id: "b"}}

	if _, err := q.Submit(one, 100); !errors.Is(err, ErrTooFewPlayers) {
		t.Errorf("Expected ErrTooFewPlayers, got %v", err)
	}
	if _, err := q.Submit(two, 0); !errors.Is(err, ErrGameCount) {
		t.Errorf("Expected ErrGameCount, got %v", err)
	}
	if _, err := q.Submit(two, MaxGames+1); !errors.Is(err, ErrGameCount) {
		t.Errorf("Expected ErrGameCount, got %v", err)
	}
	if _, err := q.Submit(two, 100); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

// A cautious strategy against one that always overshoots: over a
// thousand games the cautious one must come out ahead, and the
// money in play must balance to zero.
func TestRun(t *testing.T) {
	var (
		hold = source("hold", func() pig.Agent { return bot.MakeHold(20) })
		rush = source("rush", func() pig.Agent { return bot.MakeAlwaysRoll(200) })
		st   = cmd.MakeState()
		q    = &queue{st: st, conf: testConf(4), load: fakeLoad(hold, rush)}
		j    = &pig.Job{Id: "test", Users: users(hold, rush), Games: 1000}
	)
	q.run(j)

	if j.Status() != pig.Completed {
		t.Fatalf("Expected a completed job, got %s (%s)",
			j.Status(), j.Reason())
	}
	if j.Completed() != j.Games {
		t.Errorf("Expected %d games, got %d", j.Games, j.Completed())
	}

	res := j.Results()
	if len(res) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(res))
	}
	if res[0].Wins+res[1].Wins != j.Games {
		t.Errorf("Missing winners: %d + %d != %d",
			res[0].Wins, res[1].Wins, j.Games)
	}
	if res[0].Wins <= res[1].Wins {
		t.Errorf("Expected the cautious strategy to win more: %d vs %d",
			res[0].Wins, res[1].Wins)
	}
	if res[0].Money+res[1].Money != 0 {
		t.Errorf("Money is not zero-sum: %d + %d",
			res[0].Money, res[1].Money)
	}
	if res[0].Disqualified || res[1].Disqualified {
		t.Error("Nobody should have been disqualified")
	}
}

// A participant that faults on its first decision is disqualified
// once and never wins; the two healthy participants keep playing to
// the end.
func TestRunFault(t *testing.T) {
	var (
		bad = source("bad", func() pig.Agent { return erratic{} })
		a   = source("a", func() pig.Agent { return bot.MakeHold(20) })
		b   = source("b", func() pig.Agent { return bot.MakeHold(25) })
		st  = cmd.MakeState()
		q   = &queue{st: st, conf: testConf(2), load: fakeLoad(bad, a, b)}
		j   = &pig.Job{Id: "test", Users: users(bad, a, b), Games: 200}
	)
	q.run(j)

	if j.Status() != pig.Completed {
		t.Fatalf("Expected a completed job, got %s (%s)",
			j.Status(), j.Reason())
	}
	if j.Completed() != j.Games {
		t.Errorf("Expected %d games, got %d", j.Games, j.Completed())
	}

	res := j.Results()
	if !res[0].Disqualified {
		t.Error("Expected the faulty participant to be disqualified")
	}
	if res[0].Wins != 0 {
		t.Errorf("A disqualified participant won %d games", res[0].Wins)
	}
	if !errors.Is(bad.Disqualified(), errErratic) {
		t.Errorf("Unexpected fault: %v", bad.Disqualified())
	}
	if res[1].Disqualified || res[2].Disqualified {
		t.Error("The healthy participants must stay eligible")
	}
}

// With fewer than two participants left the job ends early, but
// still counts as completed.
func TestRunEarlyTermination(t *testing.T) {
	var (
		bad  = source("bad", func() pig.Agent { return erratic{} })
		good = source("good", func() pig.Agent { return bot.MakeHold(20) })
		st   = cmd.MakeState()
		q    = &queue{st: st, conf: testConf(2), load: fakeLoad(bad, good)}
		j    = &pig.Job{Id: "test", Users: users(bad, good), Games: 100000}
	)
	q.run(j)

	if j.Status() != pig.Completed {
		t.Fatalf("Expected a completed job, got %s (%s)",
			j.Status(), j.Reason())
	}
	if j.Completed() >= j.Games {
		t.Error("Expected an early termination")
	}

	res := j.Results()
	if !res[0].Disqualified {
		t.Error("Expected the faulty participant to be disqualified")
	}
	if res[1].Wins != j.Completed() {
		t.Errorf("Expected the survivor to win all %d games, won %d",
			j.Completed(), res[1].Wins)
	}
}

// A participant that cannot be instantiated fails the whole job.
func TestRunBroken(t *testing.T) {
	var (
		good = source("good", func() pig.Agent { return bot.MakeHold(20) })
		bad  = source("bad", nil)
		st   = cmd.MakeState()
		q    = &queue{st: st, conf: testConf(2), load: fakeLoad(good, bad)}
		j    = &pig.Job{Id: "test", Users: users(good, bad), Games: 100}
	)
	bad.spawn = errors.New("spawn failure")
	q.run(j)

	if j.Status() != pig.Failed {
		t.Fatalf("Expected a failed job, got %s", j.Status())
	}
	if j.Reason() == "" {
		t.Error("Expected a failure reason")
	}
}

// Cancelling the server stops a running job short, marking it as
// failed.
func TestRunCancelled(t *testing.T) {
	var (
		a  = source("a", func() pig.Agent { return bot.MakeHold(20) })
		b  = source("b", func() pig.Agent { return bot.MakeHold(25) })
		st = cmd.MakeState()
		q  = &queue{st: st, conf: testConf(2), load: fakeLoad(a, b)}
		j  = &pig.Job{Id: "test", Users: users(a, b), Games: MaxGames}
	)
	st.Kill()
	q.run(j)

	if j.Status() != pig.Failed {
		t.Fatalf("Expected a failed job, got %s", j.Status())
	}
	if j.Reason() != "simulation cancelled" {
		t.Errorf("Unexpected reason: %q", j.Reason())
	}
	if j.Completed() >= j.Games {
		t.Error("Expected the job to be cut short")
	}
}

// The queue accepts jobs only while running and hands them out in
// submission order.
func TestQueue(t *testing.T) {
	var (
		a  = source("a", func() pig.Agent { return bot.MakeHold(20) })
		b  = source("b", func() pig.Agent { return bot.MakeHold(25) })
		st = cmd.MakeState()
	)
	q := MakeQueue().(*queue)
	q.load = fakeLoad(a, b)

	go q.Start(st, testConf(2))
	defer q.Shutdown()

	// Wait for the queue to come up.
	var (
		j   *pig.Job
		err error
	)
	for {
		j, err = q.Submit(users(a, b), 100)
		if !errors.Is(err, ErrNotRunning) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}

	if q.Job(j.Id) != j {
		t.Error("A submitted job must be retrievable")
	}
	if q.Job("no-such-id") != nil {
		t.Error("An unknown id must yield no job")
	}

	// The progress counter never moves backwards.
	var last uint32
	for !j.Done() {
		if done := j.Completed(); done < last {
			t.Fatalf("Progress went backwards: %d after %d",
				done, last)
		} else {
			last = done
		}
		time.Sleep(time.Millisecond)
	}
	if j.Status() != pig.Completed {
		t.Errorf("Expected a completed job, got %s (%s)",
			j.Status(), j.Reason())
	}
}
