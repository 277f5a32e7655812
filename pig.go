// Common Interfaces and constants
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

package pig

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// An Agent decides, at every non-forced decision point, whether its
// participant keeps rolling (true) or holds (false).  Every
// invocation may fail, since the decision might be delegated to
// untrusted foreign code.
type Agent interface {
	Decide(*View) (bool, error)
	User() *User
}

// A User is the metadata record of one strategy module.
type User struct {
	Id      string
	Name    string
	Descr   string
	Hash    string // SHA256 of the module binary
	Path    string // file the module is loaded from
	Created string
}

func (u *User) String() string {
	if u == nil {
		return "?"
	}
	return u.Name
}

// An Event is one dice roll in the game log, attributed to the seat
// that rolled it.
type Event struct {
	Player int
	Roll   Roll
}

// A Player is one seat in a running game.
type Player struct {
	Agent Agent
	Score uint32 // banked score

	// A disqualified player takes no further turns in this game
	// and cannot win.  Fault records what went wrong.
	Disqualified bool
	Fault        error

	// Sidelined is only used by the elimination endgame variant:
	// the player failed to overtake a leader and is out of
	// contention, though its score still counts for payouts.
	Sidelined bool
}

// Eligible reports whether the player may still take turns and win.
func (p *Player) Eligible() bool {
	return !p.Disqualified && !p.Sidelined
}

// A Game is one match between two or more players.  It is owned and
// mutated by a single game runner; nothing here is safe for
// concurrent use.
type Game struct {
	Id      uint64
	Players []*Player
	History []Event
	Winner  int // index into Players, -1 while running or void
}

// Scores returns the banked scores by seat index.
func (g *Game) Scores() []uint32 {
	s := make([]uint32, len(g.Players))
	for i, p := range g.Players {
		s[i] = p.Score
	}
	return s
}

// View renders the read-only state snapshot passed to a strategy.
// The acting player sees its own evolving turn total; everyone else
// is represented by their banked score.
func (g *Game) View(idx int, t *Turn) *View {
	return &View{
		Player:  idx,
		Banked:  t.Start,
		Total:   t.Total,
		Scores:  g.Scores(),
		History: g.History,
	}
}

// A View is the immutable game state exposed to a strategy module.
// Strategies receive a copy; nothing they do to it can influence the
// game.
type View struct {
	Player  int      // own seat index
	Banked  uint32   // own banked score at turn start
	Total   uint32   // banked plus turn points so far
	Scores  []uint32 // all banked scores by seat index
	History []Event  // every roll of the game so far
}

// Possible job states
type Status uint8

const (
	Pending Status = iota
	Running
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		panic(fmt.Sprintf("Illegal status: %d", s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return Pending, nil
	case "running":
		return Running, nil
	case "completed":
		return Completed, nil
	case "failed":
		return Failed, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// A Result aggregates one participant's outcome over a whole
// simulation job.
type Result struct {
	Wins         uint32 `json:"games_won"`
	Money        int64  `json:"total_money"`
	Peak         uint64 `json:"peak_memory_bytes"`
	Disqualified bool   `json:"disqualified"`
}

// Average returns the signed money outcome per game.
func (r Result) Average(games uint32) float64 {
	if games == 0 {
		return 0
	}
	return float64(r.Money) / float64(games)
}

// A Job is one requested simulation: a number of games between a
// fixed set of participants.  The orchestrator owns it; status and
// progress may be polled concurrently from any number of readers.
type Job struct {
	Id    string
	Users []*User
	Games uint32

	completed atomic.Uint32

	lock    sync.Mutex
	status  Status
	reason  string
	results []Result
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (%d games, %d participants)",
		j.Id, j.Games, len(j.Users))
}

// Completed returns the number of finished games.  The counter is
// monotonically non-decreasing.
func (j *Job) Completed() uint32 {
	return j.completed.Load()
}

// Progress records that games have finished.
func (j *Job) Progress(done uint32) {
	j.completed.Store(done)
}

func (j *Job) Status() Status {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.status
}

// Reason returns the human-readable failure reason, if any.
func (j *Job) Reason() string {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.reason
}

// Results returns the per-participant aggregates, or nil while the
// job has not completed.
func (j *Job) Results() []Result {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.results
}

// Begin marks the job as running.
func (j *Job) Begin() {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.status != Pending {
		panic(fmt.Sprintf("Job %s started twice", j.Id))
	}
	j.status = Running
}

// Complete marks the job as completed and installs the final
// aggregates.  The job is immutable from here on.
func (j *Job) Complete(results []Result) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.status = Completed
	j.results = results
}

// Fail marks the job as failed, recording why.  Partial aggregates
// may still be attached so that they remain queryable.
func (j *Job) Fail(reason string, partial []Result) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.status = Failed
	j.reason = reason
	j.results = partial
}

// RestoreJob rebuilds a job from persisted state, for answering
// queries about simulations that no longer run in this process.
func RestoreJob(id string, users []*User, games, completed uint32,
	status Status, reason string, results []Result) *Job {
	j := &Job{
		Id:      id,
		Users:   users,
		Games:   games,
		status:  status,
		reason:  reason,
		results: results,
	}
	j.completed.Store(completed)
	return j
}

// Done reports whether the job has reached a terminal status.
func (j *Job) Done() bool {
	switch j.Status() {
	case Completed, Failed:
		return true
	default:
		return false
	}
}
