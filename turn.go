// Turn Rules
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

import "fmt"

// An Outcome is the result of resolving one roll or one decision
// against a turn.
type Outcome uint8

const (
	// The turn goes on
	Continue Outcome = iota
	// The turn ends, the player falls back to zero
	BustToZero
	// The turn ends, the player falls back to the turn start score
	BustToTurnStart
	// The turn ends, the current total is locked in
	Bank
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "Continue"
	case BustToZero:
		return "BustToZero"
	case BustToTurnStart:
		return "BustToTurnStart"
	case Bank:
		return "Bank"
	default:
		panic(fmt.Sprintf("Illegal outcome: %d", o))
	}
}

// A Turn is the ephemeral state of one player's turn.  Start is the
// banked score when the turn began; Total evolves with every
// standing roll and ends up as the player's new banked score,
// whatever way the turn ends.
type Turn struct {
	Start   uint32
	Total   uint32
	Doubles uint8
	Rolls   []Roll
}

// Begin opens a turn for a player with the given banked score.
func Begin(banked uint32) *Turn {
	return &Turn{Start: banked, Total: banked}
}

// Apply resolves one roll against the turn.  The bust conditions
// overlap, so they are evaluated as an ordered guard chain; the
// first match wins:
//
//  1. snake eyes busts to zero, no matter the doubles state,
//  2. a sum of seven busts back to the turn start score,
//  3. a total landing exactly on 100 busts to zero,
//  4. a third consecutive double busts to zero,
//  5. otherwise the roll stands.
//
// After a standing double the next roll is forced (see Forced); the
// player gets no say.
func (t *Turn) Apply(r Roll) Outcome {
	if !r.Valid() {
		panic(fmt.Sprintf("Illegal roll: %s", r))
	}
	t.Rolls = append(t.Rolls, r)

	switch {
	case r.SnakeEyes():
		t.Total = 0
		return BustToZero
	case r.Sum() == 7:
		t.Total = t.Start
		return BustToTurnStart
	case t.Total+r.Sum() == 100:
		t.Total = 0
		return BustToZero
	}

	if r.Double() {
		t.Doubles++
		if t.Doubles >= 3 {
			t.Total = 0
			return BustToZero
		}
	} else {
		t.Doubles = 0
	}

	t.Total += r.Sum()
	return Continue
}

// Forced reports whether the next roll happens without consulting
// the strategy: every turn opens with a roll, and a standing double
// forces an immediate re-roll.
func (t *Turn) Forced() bool {
	if len(t.Rolls) == 0 {
		return true
	}
	return t.Rolls[len(t.Rolls)-1].Double()
}

// Resolve turns a hold decision into a turn outcome.  Banking is
// only ever reachable through here.
func (t *Turn) Resolve(hold bool) Outcome {
	if t.Forced() {
		panic("Decision at a forced roll")
	}
	if hold {
		return Bank
	}
	return Continue
}
