// Built-in Strategies
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

// Package bot provides native reference strategies.  They answer
// decision queries in-process, never fault, and are mainly useful as
// opponents in tests and one-shot simulations.
package bot

import (
	"fmt"
	"math/rand"
	"sync"

	pig "go-pig"
)

type hold struct {
	user *pig.User
	n    uint32
}

func (h *hold) Decide(v *pig.View) (bool, error) {
	return v.Total-v.Banked < h.n, nil
}

func (h *hold) User() *pig.User { return h.user }
func (h *hold) String() string  { return h.user.Name }

// MakeHold returns an agent that banks as soon as a turn has gained
// at least n points.  MakeHold(0) holds at the first opportunity.
func MakeHold(n uint32) pig.Agent {
	return &hold{
		user: &pig.User{
			Name:  fmt.Sprintf("hold-%d", n),
			Descr: fmt.Sprintf("Banks after gaining %d points in a turn", n),
		},
		n: n,
	}
}

type rush struct {
	user   *pig.User
	target uint32
}

func (r *rush) Decide(v *pig.View) (bool, error) {
	return v.Total < r.target, nil
}

func (r *rush) User() *pig.User { return r.user }
func (r *rush) String() string  { return r.user.Name }

// MakeAlwaysRoll returns an agent that keeps rolling until its total
// reaches the target score.
func MakeAlwaysRoll(target uint32) pig.Agent {
	return &rush{
		user: &pig.User{
			Name:  fmt.Sprintf("rush-%d", target),
			Descr: fmt.Sprintf("Rolls until the total reaches %d", target),
		},
		target: target,
	}
}

type random struct {
	user *pig.User
	p    float64

	// Agents may be consulted from multiple games at once.
	mu  sync.Mutex
	rng *rand.Rand
}

func (r *random) Decide(v *pig.View) (bool, error) {
	if v.Total >= 100 {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.p, nil
}

func (r *random) User() *pig.User { return r.user }
func (r *random) String() string  { return r.user.Name }

// MakeRandom returns an agent that, after its forced opening roll,
// keeps rolling with probability p until its total reaches 100.
func MakeRandom(p float64, seed int64) pig.Agent {
	return &random{
		user: &pig.User{
			Name:  "random",
			Descr: fmt.Sprintf("Rolls again with probability %.2f", p),
		},
		p:   p,
		rng: rand.New(rand.NewSource(seed)),
	}
}
