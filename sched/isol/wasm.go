// WebAssembly Strategy Modules
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

package isol

import (
	"context"
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pig "go-pig"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// A strategy module is a WebAssembly binary that exports
//
//	memory
//	alloc(size: u32) -> u32
//	should_roll(ptr: u32, len: u32) -> u32
//
// The host writes the game state into guest memory at an address
// obtained from alloc and calls should_roll; a non-zero return means
// "roll again".  The state is a flat little-endian u32 frame:
//
//	index, banked, total,
//	n, scores[0] .. scores[n-1],
//	h, (player, die1, die2) for each of the h rolls so far
//
// The compiled module is shared by all workers of a simulation; the
// running instances are not safe for concurrent use and are pinned
// one per worker.

const pageSize = 64 * 1024

// A Module is one participant's compiled strategy, together with the
// simulation-scoped accounting the gateway keeps for it: the memory
// high-water mark across all calls of all instances, and the sticky
// fault that disqualifies the participant.
type Module struct {
	user    *pig.User
	rt      wazero.Runtime
	code    wazero.CompiledModule
	limit   uint64 // memory ceiling in bytes
	timeout time.Duration

	peak atomic.Uint64

	mu    sync.Mutex
	fault error
}

// Load reads and compiles a strategy module from disk.  Any failure
// here is a module load error: the caller is expected to fail the
// whole simulation, not just the participant.
func Load(ctx context.Context, user *pig.User, limit uint64, timeout time.Duration) (*Module, error) {
	code, err := os.ReadFile(user.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read module %s", user)
	}
	return Compile(ctx, code, user, limit, timeout)
}

// Compile builds a module from raw bytes.  It also backs upload
// validation, where a module is compiled once and thrown away.
func Compile(ctx context.Context, code []byte, user *pig.User, limit uint64, timeout time.Duration) (*Module, error) {
	// The hard cap sits one page above the configured ceiling, so
	// that crossing the ceiling is observable as such instead of
	// surfacing as an opaque trap inside the guest.
	pages := limit/pageSize + 2
	if pages > 65536 {
		pages = 65536
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(uint32(pages)).
		WithCloseOnContextDone(true))

	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrapf(err, "Failed to compile module %s", user)
	}

	m := &Module{
		user:    user,
		rt:      rt,
		code:    compiled,
		limit:   limit,
		timeout: timeout,
	}

	exports := compiled.ExportedFunctions()
	for _, name := range []string{"alloc", "should_roll"} {
		if _, ok := exports[name]; !ok {
			_ = rt.Close(ctx)
			return nil, errors.Errorf("Module %s does not export %q", user, name)
		}
	}
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		_ = rt.Close(ctx)
		return nil, errors.Errorf("Module %s does not export its memory", user)
	}

	return m, nil
}

func (m *Module) String() string { return m.user.String() }

func (m *Module) User() *pig.User { return m.user }

// Peak returns the memory high-water mark in bytes, accumulated over
// every call made within the simulation.
func (m *Module) Peak() uint64 { return m.peak.Load() }

func (m *Module) track(size uint64) {
	for {
		old := m.peak.Load()
		if size <= old || m.peak.CompareAndSwap(old, size) {
			return
		}
	}
}

// Disqualify records the first fault attributed to this participant.
// Later faults are ignored; the first one names the reason.
func (m *Module) Disqualify(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fault == nil {
		m.fault = err
	}
}

// Disqualified returns the recorded fault, or nil while the
// participant is in good standing.
func (m *Module) Disqualified() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault
}

// Shutdown releases the runtime and every instance spawned from it.
func (m *Module) Shutdown() error {
	return m.rt.Close(context.Background())
}

// An Instance is a running copy of a strategy module, owned by a
// single worker.
type Instance struct {
	mod    *Module
	guest  api.Module
	alloc  api.Function
	decide api.Function
}

// Spawn instantiates the compiled module.  Instance state persists
// across calls, which is safe because the interface is a pure query:
// nothing the guest remembers can alter what the host tells it.
func (m *Module) Spawn(ctx context.Context) (*Instance, error) {
	guest, err := m.rt.InstantiateModule(ctx, m.code,
		wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to instantiate module %s", m)
	}
	return &Instance{
		mod:    m,
		guest:  guest,
		alloc:  guest.ExportedFunction("alloc"),
		decide: guest.ExportedFunction("should_roll"),
	}, nil
}

func (i *Instance) String() string { return i.mod.String() }

func (i *Instance) User() *pig.User { return i.mod.user }

// Shutdown closes this instance; the compiled module stays usable.
func (i *Instance) Shutdown() error {
	return i.guest.Close(context.Background())
}

// Decide asks the strategy whether to roll again.  A fault of any
// kind disqualifies the owning participant across all instances for
// the rest of the simulation; memory ceiling violations are
// distinguished from other execution faults.
func (i *Instance) Decide(v *pig.View) (bool, error) {
	if err := i.mod.Disqualified(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.mod.timeout)
	defer cancel()

	state := encode(v)
	res, err := i.call(ctx, state)

	size := uint64(i.guest.Memory().Size())
	i.mod.track(size)

	switch {
	case err != nil && size > i.mod.limit:
		err = errors.Wrapf(ErrMemoryLimit, "%s: %d of %d bytes", i, size, i.mod.limit)
	case err != nil:
		err = errors.Wrapf(ErrFault, "%s: %v", i, err)
	case size > i.mod.limit:
		// The call went through, but memory use crossed the
		// ceiling: the call is aborted retroactively.
		err = errors.Wrapf(ErrMemoryLimit, "%s: %d of %d bytes", i, size, i.mod.limit)
	default:
		return res != 0, nil
	}

	i.mod.Disqualify(err)
	return false, err
}

func (i *Instance) call(ctx context.Context, state []byte) (uint32, error) {
	ptr, err := i.alloc.Call(ctx, uint64(len(state)))
	if err != nil {
		return 0, err
	}
	if len(ptr) != 1 {
		return 0, errors.New("malformed alloc return")
	}
	if !i.guest.Memory().Write(uint32(ptr[0]), state) {
		return 0, errors.Errorf("allocation %#x outside linear memory", ptr[0])
	}

	res, err := i.decide.Call(ctx, ptr[0], uint64(len(state)))
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, errors.New("malformed should_roll return")
	}
	return api.DecodeU32(res[0]), nil
}

// encode flattens a game state view into the guest ABI frame.
func encode(v *pig.View) []byte {
	words := 3 + 1 + len(v.Scores) + 1 + 3*len(v.History)
	buf := make([]byte, 0, 4*words)

	u32 := func(n uint32) {
		buf = binary.LittleEndian.AppendUint32(buf, n)
	}

	u32(uint32(v.Player))
	u32(v.Banked)
	u32(v.Total)
	u32(uint32(len(v.Scores)))
	for _, s := range v.Scores {
		u32(s)
	}
	u32(uint32(len(v.History)))
	for _, e := range v.History {
		u32(uint32(e.Player))
		u32(uint32(e.Roll.Die1))
		u32(uint32(e.Roll.Die2))
	}

	return buf
}
