// Simulation Execution
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
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	pig "go-pig"
	"go-pig/game"
	"go-pig/sched/isol"
)

// One finished game, as seen by the aggregator.  Games are
// independent and the aggregation is commutative, so the order in
// which outcomes arrive does not matter.
type outcome struct {
	winner int
	scores []uint32
	broken error // worker could not set the game up
}

// run executes one job from start to terminal status.  Games fan out
// to a bounded pool of workers; a single aggregator folds the
// results and keeps the progress counter moving.
func (q *queue) run(j *pig.Job) {
	st, conf := q.st, q.conf
	bg := context.Background()

	log.Printf("Starting %s", j)
	j.Begin()
	if db := st.Database; db != nil {
		db.UpdateJob(bg, j)
	}

	// The memory budget is split evenly across the participants.
	limit := conf.MemoryLimit(len(j.Users))

	srcs := make([]Source, len(j.Users))
	for i, u := range j.Users {
		src, err := q.load(st.Context, u, limit, conf.MoveTimeout())
		if err != nil {
			// A module that cannot be loaded fails the
			// whole job, unlike any fault at run time.
			log.Printf("%s: %v", j, err)
			j.Fail(err.Error(), nil)
			if db := st.Database; db != nil {
				db.UpdateJob(bg, j)
			}
			for _, s := range srcs {
				if s != nil {
					s.Shutdown()
				}
			}
			return
		}
		srcs[i] = src
	}
	defer func() {
		for _, s := range srcs {
			if err := s.Shutdown(); err != nil {
				log.Print(err)
			}
		}
	}()

	workers := int(conf.Game.Workers)
	if workers < 1 {
		workers = 1
	}
	if uint32(workers) > j.Games {
		workers = int(j.Games)
	}

	var (
		tickets atomic.Uint32
		results = make(chan *outcome, workers)
		stop    = make(chan struct{})
		once    sync.Once
		halt    = func() { once.Do(func() { close(stop) }) }
		wg      sync.WaitGroup
	)

	// Cancellation stops new games from starting; games already in
	// flight run to completion.
	go func() {
		select {
		case <-st.Context.Done():
			halt()
		case <-stop:
		}
	}()

	opt := game.Options{Elimination: conf.Game.Elimination}
	seed := time.Now().UnixNano()
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			q.worker(j, srcs, opt, rand.New(rand.NewSource(seed+int64(w))),
				&tickets, stop, results)
		}(w)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Update progress every 1% of games or every 5000 games,
	// whichever is larger.
	interval := j.Games / 100
	if interval < 5000 {
		interval = 5000
	}

	var (
		agg    = make([]pig.Result, len(srcs))
		done   uint32
		broken error
	)
	for o := range results {
		if o.broken != nil {
			broken = o.broken
			halt()
			continue
		}

		done++
		j.Progress(done)

		if o.winner >= 0 {
			agg[o.winner].Wins++
		}
		for i, m := range game.Payouts(o.scores, o.winner) {
			agg[i].Money += m
		}

		// With fewer than two participants still standing
		// there is nothing left to play for.
		active := 0
		for _, s := range srcs {
			if s.Disqualified() == nil {
				active++
			}
		}
		if active <= 1 {
			pig.Debug.Printf("%s: only %d active participants remain", j, active)
			halt()
		}

		if done%interval == 0 || done == j.Games {
			if db := st.Database; db != nil {
				db.UpdateProgress(bg, j)
			}
		}
	}
	halt()

	for i, s := range srcs {
		agg[i].Peak = s.Peak()
		agg[i].Disqualified = s.Disqualified() != nil
	}

	switch {
	case broken != nil:
		j.Fail(broken.Error(), agg)
	case st.Context.Err() != nil && done < j.Games:
		j.Fail("simulation cancelled", agg)
	default:
		j.Complete(agg)
	}

	if db := st.Database; db != nil {
		db.UpdateProgress(bg, j)
		db.SaveResults(bg, j)
		db.UpdateJob(bg, j)
	}

	log.Printf("Finished %s: %s after %d games", j, j.Status(), done)
	for i, s := range srcs {
		r := agg[i]
		note := ""
		if r.Disqualified {
			note = " [disqualified]"
		}
		log.Printf("%s: %s: %d wins (%.1f%%), %d total (%.2f avg/game), %d bytes peak%s",
			j.Id, s, r.Wins,
			float64(r.Wins)/float64(max(done, 1))*100,
			r.Money, r.Average(done), r.Peak, note)
	}
}

// worker claims game tickets until none are left or the job is
// halted.  Each worker pins its own strategy instances and its own
// dice, so concurrent games share nothing mutable.
func (q *queue) worker(j *pig.Job, srcs []Source, opt game.Options,
	rng *rand.Rand, tickets *atomic.Uint32,
	stop <-chan struct{}, results chan<- *outcome) {

	agents := make([]pig.Agent, len(srcs))
	defer func() {
		for _, a := range agents {
			if a == nil {
				continue
			}
			if err := isol.Shutdown(a); err != nil {
				log.Print(err)
			}
		}
	}()
	for i, s := range srcs {
		a, err := s.Spawn(context.Background())
		if err != nil {
			results <- &outcome{broken: err}
			return
		}
		agents[i] = a
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		n := tickets.Add(1)
		if n > j.Games {
			return
		}

		g := &pig.Game{Id: uint64(n), Players: make([]*pig.Player, len(srcs))}
		for i, s := range srcs {
			g.Players[i] = &pig.Player{
				Agent:        agents[i],
				Disqualified: s.Disqualified() != nil,
			}
		}

		winner := game.Play(g, rng, opt)
		results <- &outcome{winner: winner, scores: g.Scores()}
	}
}
