// Strategy Isolation
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

// Package isol executes untrusted strategy modules behind a
// capability-scoped boundary.  A module answers a single pure query
// (roll or hold); it is given no way to call back into the host or
// to mutate game state.  Every invocation is fallible and every
// failure is attributed to the owning participant, never to the
// simulation as a whole.
package isol

import (
	"fmt"

	pig "go-pig"

	"github.com/pkg/errors"
)

// Fault categories crossing the sandbox boundary.  A memory ceiling
// violation is reported distinctly from all other execution faults,
// but both disqualify the participant for the rest of the
// simulation.
var (
	ErrMemoryLimit = errors.New("memory ceiling exceeded")
	ErrFault       = errors.New("execution fault")
)

// A ControlledAgent is an agent whose lifecycle the gateway owns.
type ControlledAgent interface {
	pig.Agent
	fmt.Stringer
	Shutdown() error
}

// Shutdown releases an agent's resources, if it has any.
func Shutdown(a pig.Agent) error {
	pig.Debug.Println("Shutting down", a)
	if ca, ok := a.(ControlledAgent); ok {
		return ca.Shutdown()
	}
	return nil
}
