// Game Runner
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

// Package game drives single games of Pig from the initial state to
// a terminal ranking.  A runner owns its game exclusively; the only
// thing it shares with the rest of the world are the agents it
// consults, one decision at a time.
package game

import (
	"math/rand"

	pig "go-pig"
)

type Options struct {
	// Sideline participants that fail to overtake the leader
	// during a final round, instead of giving them another
	// chance after the next leader change.
	Elimination bool
}

// turn plays one complete turn for the given seat: a forced opening
// roll, forced re-rolls after doubles, and otherwise one decision
// per standing roll.  A gateway fault counts as a hold and
// disqualifies the player on the spot.
func turn(g *pig.Game, idx int, rng *rand.Rand) {
	p := g.Players[idx]
	t := pig.Begin(p.Score)

	for {
		if !t.Forced() {
			roll, err := p.Agent.Decide(g.View(idx, t))
			if err != nil {
				p.Disqualified = true
				p.Fault = err
				pig.Debug.Printf("Game %d: %s disqualified: %v",
					g.Id, p.Agent.User(), err)
				break
			}
			if t.Resolve(!roll) == pig.Bank {
				break
			}
		}

		r := pig.RollDice(rng)
		g.History = append(g.History, pig.Event{Player: idx, Roll: r})
		if t.Apply(r) != pig.Continue {
			break
		}
	}

	if t.Total < t.Start && t.Total != 0 {
		panic("Turn ended below its starting score")
	}
	p.Score = t.Total
}

// Play drives a game to completion and returns the winner's seat
// index, or -1 if no eligible participant remains.  Seats rotate in
// a fixed order that is shuffled once per game.
//
// The endgame opens the first time an eligible participant banks
// more than 100: every other participant still in contention gets
// exactly one turn to overtake the leader.  Whenever someone does,
// the lead changes hands and a fresh round begins.  The game ends
// when a full round passes the leader by without a challenge.
func Play(g *pig.Game, rng *rand.Rand, opt Options) int {
	n := len(g.Players)
	if n < 2 {
		panic("Not enough players")
	}
	g.Winner = -1

	var (
		order   = rng.Perm(n)
		hadTurn = make([]bool, n)
		endgame bool
		leader  int
		lead    uint32
		slot    int
	)

	for {
		// A game without at least two participants able to
		// act cannot go on.  The sole survivor, if there is
		// one, wins with the standings as they are.
		active, last := 0, -1
		for i, p := range g.Players {
			if p.Eligible() {
				active, last = active+1, i
			}
		}
		switch active {
		case 0:
			return -1
		case 1:
			g.Winner = last
			return last
		}

		idx := order[slot]
		p := g.Players[idx]

		if !p.Eligible() {
			hadTurn[idx] = true
		} else {
			turn(g, idx, rng)

			switch {
			case !endgame && p.Eligible() && p.Score > 100:
				endgame = true
				leader, lead = idx, p.Score
				for i := range hadTurn {
					hadTurn[i] = false
				}
				hadTurn[idx] = true
				pig.Debug.Printf("Game %d: %s leads with %d",
					g.Id, p.Agent.User(), lead)
			case endgame:
				hadTurn[idx] = true
				if p.Eligible() && p.Score > lead {
					// A new leader restarts the
					// round for everyone else.
					leader, lead = idx, p.Score
					for i := range hadTurn {
						hadTurn[i] = false
					}
					hadTurn[idx] = true
				} else if opt.Elimination && p.Eligible() {
					p.Sidelined = true
				}
			}
		}

		if endgame {
			done := true
			for i, p := range g.Players {
				if p.Eligible() && !hadTurn[i] {
					done = false
					break
				}
			}
			if done {
				g.Winner = leader
				return leader
			}
		}

		slot = (slot + 1) % n
	}
}

// Payouts computes the money transfer of a finished game.  Each
// non-winner owes the difference to the winner's score, doubled if
// it finished with nothing; the winner collects the sum, so the
// whole table is zero-sum.  A frozen score above the winner's (only
// possible through disqualification) owes nothing.
func Payouts(scores []uint32, winner int) []int64 {
	out := make([]int64, len(scores))
	if winner < 0 {
		return out
	}

	top := int64(scores[winner])
	for i, s := range scores {
		if i == winner {
			continue
		}
		owed := top - int64(s)
		if owed < 0 {
			owed = 0
		}
		if s == 0 {
			owed *= 2
		}
		out[i] = -owed
		out[winner] += owed
	}
	return out
}
