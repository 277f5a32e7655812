// Game Runner Tests
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

package game

import (
	"errors"
	"math/rand"
	"testing"

	pig "go-pig"
)

// scripted is a test agent that keeps rolling until a turn has
// gained a fixed number of points.
type scripted struct {
	user *pig.User
	keep uint32
}

func (s *scripted) User() *pig.User { return s.user }

func (s *scripted) Decide(v *pig.View) (bool, error) {
	return v.Total-v.Banked < s.keep, nil
}

// faulty is a test agent that fails on every decision.
type faulty struct{ user *pig.User }

var errScripted = errors.New("scripted failure")

func (f *faulty) User() *pig.User                { return f.user }
func (f *faulty) Decide(*pig.View) (bool, error) { return false, errScripted }

func user(name string) *pig.User {
	return &pig.User{Id: name, Name: name}
}

func makeGame(agents ...pig.Agent) *pig.Game {
	g := &pig.Game{Players: make([]*pig.Player, len(agents))}
	for i, a := range agents {
		g.Players[i] = &pig.Player{Agent: a}
	}
	return g
}

func TestPlay(t *testing.T) {
	for seed := int64(0); seed < 32; seed++ {
		rng := rand.New(rand.NewSource(seed))
		g := makeGame(
			&scripted{user("a"), 20},
			&scripted{user("b"), 25},
			&scripted{user("c"), 30},
		)

		winner := Play(g, rng, Options{})
		if winner < 0 || winner >= len(g.Players) {
			t.Fatalf("(%d) Invalid winner %d", seed, winner)
		}
		if winner != g.Winner {
			t.Errorf("(%d) Inconsistent winner record", seed)
		}

		// Nobody faulted, so the game must have been decided
		// by the endgame: the winner crossed 100 and nobody
		// managed to overtake.
		scores := g.Scores()
		if scores[winner] <= 100 {
			t.Errorf("(%d) Winner stopped at %d",
				seed, scores[winner])
		}
		for i, s := range scores {
			if i != winner && s > scores[winner] {
				t.Errorf("(%d) Seat %d finished above the winner",
					seed, i)
			}
			if g.Players[i].Disqualified {
				t.Errorf("(%d) Seat %d was disqualified", seed, i)
			}
		}

		if len(g.History) == 0 {
			t.Errorf("(%d) Empty game log", seed)
		}
		for _, e := range g.History {
			if e.Player < 0 || e.Player >= len(g.Players) {
				t.Errorf("(%d) Roll attributed to seat %d",
					seed, e.Player)
			}
			if !e.Roll.Valid() {
				t.Errorf("(%d) Invalid roll %s in the log",
					seed, e.Roll)
			}
		}
	}
}

func TestPlayElimination(t *testing.T) {
	for seed := int64(0); seed < 32; seed++ {
		rng := rand.New(rand.NewSource(seed))
		g := makeGame(
			&scripted{user("a"), 20},
			&scripted{user("b"), 25},
			&scripted{user("c"), 30},
			&scripted{user("d"), 35},
		)

		winner := Play(g, rng, Options{Elimination: true})
		if winner < 0 {
			t.Fatalf("(%d) No winner", seed)
		}
		if g.Players[winner].Sidelined {
			t.Errorf("(%d) A sidelined seat won", seed)
		}
	}
}

// Dice are fair: across many games roughly one roll in six sums to
// seven and one in six is a double.
func TestRollDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	var rolls, sevens, doubles int
	for game := 0; game < 1000; game++ {
		g := makeGame(
			&scripted{user("a"), 20},
			&scripted{user("b"), 1 << 30},
		)
		Play(g, rng, Options{})
		for _, e := range g.History {
			rolls++
			if e.Roll.Die1 == e.Roll.Die2 {
				doubles++
			} else if e.Roll.Sum() == 7 {
				sevens++
			}
		}
	}
	if rolls < 10000 {
		t.Fatalf("Too few rolls to judge the dice: %d", rolls)
	}

	// Doubles come up in 6 of 36 outcomes, sevens in 6 of the
	// remaining 30 once doubles are set aside.
	if f := float64(doubles) / float64(rolls); f < 1.0/6-0.02 || f > 1.0/6+0.02 {
		t.Errorf("Expected ~1/6 doubles, got %.3f (%d of %d)",
			f, doubles, rolls)
	}
	plain := rolls - doubles
	if f := float64(sevens) / float64(plain); f < 1.0/5-0.02 || f > 1.0/5+0.02 {
		t.Errorf("Expected ~1/5 sevens among plain rolls, got %.3f (%d of %d)",
			f, sevens, plain)
	}
}

// A participant whose gateway faults banks its current total, is
// disqualified and loses on the spot.  The opponent never holds, so
// it can only win by outliving the faulty seat.
func TestPlayFault(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := makeGame(&faulty{user("bad")}, &scripted{user("good"), 1 << 30})

	winner := Play(g, rng, Options{})
	if winner != 1 {
		t.Fatalf("Expected seat 1 to win, got %d", winner)
	}

	bad := g.Players[0]
	if !bad.Disqualified {
		t.Error("Expected seat 0 to be disqualified")
	}
	if !errors.Is(bad.Fault, errScripted) {
		t.Errorf("Unexpected fault: %v", bad.Fault)
	}
	if g.Players[1].Disqualified {
		t.Error("The surviving seat must stay eligible")
	}
}

// When every participant faults, the game ends without a winner.
func TestPlayNoSurvivor(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := makeGame(&faulty{user("x")}, &faulty{user("y")})

	// The first fault leaves a sole survivor, who wins without
	// having to fault itself.
	winner := Play(g, rng, Options{})
	if winner < 0 {
		t.Fatal("Expected a sole survivor")
	}

	var faults int
	for _, p := range g.Players {
		if p.Disqualified {
			faults++
		}
	}
	if faults != 1 {
		t.Errorf("Expected exactly one fault, got %d", faults)
	}

	// A rematch where both are already disqualified has no one
	// left to win.
	g.Players[0].Disqualified = true
	g.Players[1].Disqualified = true
	g.Players[0].Score, g.Players[1].Score = 0, 0
	if winner := Play(g, rng, Options{}); winner != -1 {
		t.Errorf("Expected no winner, got %d", winner)
	}
}

func TestPlayTooFew(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic with a single seat")
		}
	}()
	Play(makeGame(&scripted{user("solo"), 20}), rand.New(rand.NewSource(1)), Options{})
}

func TestPayouts(t *testing.T) {
	for i, test := range []struct {
		scores []uint32
		winner int
		out    []int64
	}{
		{ // the loser owes the difference
			scores: []uint32{105, 60},
			winner: 0,
			out:    []int64{45, -45},
		},
		{ // a wiped-out loser owes double
			scores: []uint32{105, 0},
			winner: 0,
			out:    []int64{210, -210},
		},
		{ // multiple losers pay the winner each
			scores: []uint32{105, 50, 0},
			winner: 0,
			out:    []int64{265, -55, -210},
		},
		{ // a frozen score above the winner owes nothing
			scores: []uint32{120, 105},
			winner: 1,
			out:    []int64{0, 0},
		},
		{ // no winner, no transfer
			scores: []uint32{50, 60},
			winner: -1,
			out:    []int64{0, 0},
		},
	} {
		got := Payouts(test.scores, test.winner)
		var sum int64
		for j := range got {
			sum += got[j]
			if got[j] != test.out[j] {
				t.Errorf("(%d) Expected %v, got %v",
					i, test.out, got)
				break
			}
		}
		if sum != 0 {
			t.Errorf("(%d) Payouts are not zero-sum: %v", i, got)
		}
	}
}
