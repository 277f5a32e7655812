// Dice
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
	"math/rand"
)

// A Roll is an unordered pair of six-sided die results.
type Roll struct {
	Die1, Die2 uint8
}

func (r Roll) String() string {
	return fmt.Sprintf("[%d %d]", r.Die1, r.Die2)
}

func (r Roll) Sum() uint32 {
	return uint32(r.Die1) + uint32(r.Die2)
}

func (r Roll) Double() bool {
	return r.Die1 == r.Die2
}

func (r Roll) SnakeEyes() bool {
	return r.Die1 == 1 && r.Die2 == 1
}

// Valid reports whether both dice lie in 1 to 6.
func (r Roll) Valid() bool {
	return 1 <= r.Die1 && r.Die1 <= 6 && 1 <= r.Die2 && r.Die2 <= 6
}

// RollDice throws two dice.  Each game runner carries its own PRNG
// so that parallel games never contend on a shared source.
func RollDice(rng *rand.Rand) Roll {
	return Roll{
		Die1: uint8(rng.Intn(6) + 1),
		Die2: uint8(rng.Intn(6) + 1),
	}
}
