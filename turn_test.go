// Turn Rule Tests
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

import "testing"

func TestApply(t *testing.T) {
	for i, test := range []struct {
		banked  uint32
		rolls   []Roll
		outcome Outcome
		total   uint32
	}{
		{ // an ordinary roll stands
			banked:  0,
			rolls:   []Roll{{3, 5}},
			outcome: Continue,
			total:   8,
		},
		{ // a seven on the opening roll leads back to the start
			banked:  0,
			rolls:   []Roll{{3, 4}},
			outcome: BustToTurnStart,
			total:   0,
		},
		{ // snake eyes wipe out the banked score
			banked:  90,
			rolls:   []Roll{{1, 1}},
			outcome: BustToZero,
			total:   0,
		},
		{ // a seven falls back to the turn start, not to zero
			banked:  42,
			rolls:   []Roll{{2, 6}, {3, 4}},
			outcome: BustToTurnStart,
			total:   42,
		},
		{ // landing exactly on 100 busts to zero
			banked:  90,
			rolls:   []Roll{{4, 6}},
			outcome: BustToZero,
			total:   0,
		},
		{ // ... even when the landing roll is a double
			banked:  92,
			rolls:   []Roll{{4, 4}},
			outcome: BustToZero,
			total:   0,
		},
		{ // overshooting 100 is fine
			banked:  95,
			rolls:   []Roll{{6, 6}},
			outcome: Continue,
			total:   107,
		},
		{ // two doubles stand, the third busts to zero
			banked:  0,
			rolls:   []Roll{{2, 2}, {3, 3}, {4, 4}},
			outcome: BustToZero,
			total:   0,
		},
		{ // a non-double in between resets the double count
			banked:  0,
			rolls:   []Roll{{2, 2}, {3, 3}, {2, 4}, {4, 4}, {5, 5}, {2, 3}},
			outcome: Continue,
			total:   39,
		},
		{ // the seven guard fires before the double count
			banked:  10,
			rolls:   []Roll{{2, 2}, {3, 3}, {2, 5}},
			outcome: BustToTurnStart,
			total:   10,
		},
		{ // snake eyes beat the third-double guard
			banked:  50,
			rolls:   []Roll{{4, 4}, {5, 5}, {1, 1}},
			outcome: BustToZero,
			total:   0,
		},
	} {
		turn := Begin(test.banked)
		var last Outcome
		for _, r := range test.rolls {
			last = turn.Apply(r)
		}
		if last != test.outcome {
			t.Errorf("(%d) Expected %s, got %s",
				i, test.outcome, last)
		}
		if turn.Total != test.total {
			t.Errorf("(%d) Expected a total of %d, got %d",
				i, test.total, turn.Total)
		}
	}
}

func TestForced(t *testing.T) {
	turn := Begin(0)
	if !turn.Forced() {
		t.Error("A turn must open with a roll")
	}
	turn.Apply(Roll{3, 3})
	if !turn.Forced() {
		t.Error("A standing double must force a re-roll")
	}
	turn.Apply(Roll{2, 4})
	if turn.Forced() {
		t.Error("An ordinary roll must yield a decision")
	}
}

func TestResolve(t *testing.T) {
	turn := Begin(10)
	turn.Apply(Roll{2, 3})
	if got := turn.Resolve(false); got != Continue {
		t.Errorf("Expected Continue, got %s", got)
	}
	if got := turn.Resolve(true); got != Bank {
		t.Errorf("Expected Bank, got %s", got)
	}
	if turn.Total != 15 {
		t.Errorf("Expected a total of 15, got %d", turn.Total)
	}
}

func TestResolveForced(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic on a forced decision")
		}
	}()
	Begin(0).Resolve(true)
}

func TestApplyInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic on an invalid roll")
		}
	}()
	Begin(0).Apply(Roll{0, 7})
}
