// JSON API
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

package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	pig "go-pig"
	"go-pig/sched"
	"go-pig/sched/isol"
)

// Upper bound on the size of an uploaded strategy module.
const maxUpload = 16 << 20

func respond(wr http.ResponseWriter, code int, body any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(code)
	if err := json.NewEncoder(wr).Encode(body); err != nil {
		log.Print(err)
	}
}

func fail(wr http.ResponseWriter, code int, msg string) {
	respond(wr, code, struct {
		Error string `json:"error"`
	}{msg})
}

// uploadBot accepts a multipart form with a "wasm" file and optional
// "name" and "descr" fields.  The module is compiled once to reject
// anything that does not conform to the guest interface, then stored
// under a fresh identifier.  Re-uploading a known binary returns the
// existing record instead of creating a duplicate.
func (w *web) uploadBot(wr http.ResponseWriter, r *http.Request) {
	db := w.st.Database
	if db == nil {
		fail(wr, http.StatusServiceUnavailable, "no database")
		return
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		fail(wr, http.StatusBadRequest, "malformed upload")
		return
	}
	file, hdr, err := r.FormFile("wasm")
	if err != nil {
		fail(wr, http.StatusBadRequest, "missing \"wasm\" file")
		return
	}
	defer file.Close()
	code, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil || len(code) == 0 || len(code) > maxUpload {
		fail(wr, http.StatusBadRequest, "unreadable upload")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = hdr.Filename
	}
	user := &pig.User{
		Id:    uuid.NewString(),
		Name:  name,
		Descr: r.FormValue("descr"),
	}

	sum := sha256.Sum256(code)
	user.Hash = hex.EncodeToString(sum[:])

	ctx, cancel := context.WithTimeout(r.Context(), DB_TIMEOUT)
	defer cancel()
	if known := db.QueryBotHash(ctx, user.Hash); known != nil {
		respond(wr, http.StatusOK, known)
		return
	}

	// A module that cannot be instantiated now would disqualify
	// itself on the first move of every simulation, so reject it
	// up front.
	mod, err := isol.Compile(ctx, code, user,
		w.conf.MemoryLimit(2), w.conf.MoveTimeout())
	if err != nil {
		fail(wr, http.StatusBadRequest, err.Error())
		return
	}
	if err := mod.Shutdown(); err != nil {
		log.Print(err)
	}

	if err := os.MkdirAll(w.conf.Web.Bots, 0755); err != nil {
		log.Print(err)
		fail(wr, http.StatusInternalServerError, "cannot store module")
		return
	}
	user.Path = filepath.Join(w.conf.Web.Bots, user.Id+".wasm")
	if err := os.WriteFile(user.Path, code, 0644); err != nil {
		log.Print(err)
		fail(wr, http.StatusInternalServerError, "cannot store module")
		return
	}
	if err := db.SaveBot(ctx, user); err != nil {
		log.Print(err)
		fail(wr, http.StatusInternalServerError, "cannot store module")
		return
	}
	respond(wr, http.StatusCreated, user)
}

func (w *web) listBots(wr http.ResponseWriter, r *http.Request) {
	db := w.st.Database
	if db == nil {
		fail(wr, http.StatusServiceUnavailable, "no database")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), DB_TIMEOUT)
	defer cancel()

	bots := []*pig.User{}
	c := make(chan *pig.User)
	go db.QueryBots(ctx, c)
	for u := range c {
		bots = append(bots, u)
	}
	respond(wr, http.StatusOK, bots)
}

// startSimulation enqueues a new job.  The request names the
// participants by identifier and the number of games to play.
func (w *web) startSimulation(wr http.ResponseWriter, r *http.Request) {
	db := w.st.Database
	if db == nil {
		fail(wr, http.StatusServiceUnavailable, "no database")
		return
	}
	var req struct {
		Bots  []string `json:"bot_ids"`
		Games uint32   `json:"num_games"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(wr, http.StatusBadRequest, "malformed request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DB_TIMEOUT)
	defer cancel()
	users := make([]*pig.User, 0, len(req.Bots))
	for _, id := range req.Bots {
		u := db.QueryBot(ctx, id)
		if u == nil {
			fail(wr, http.StatusNotFound, "unknown bot "+id)
			return
		}
		users = append(users, u)
	}

	j, err := w.st.Scheduler.Submit(users, req.Games)
	switch {
	case err == nil:
		respond(wr, http.StatusAccepted, jobInfo(j))
	case errors.Is(err, sched.ErrTooFewPlayers),
		errors.Is(err, sched.ErrGameCount):
		fail(wr, http.StatusBadRequest, err.Error())
	default:
		fail(wr, http.StatusServiceUnavailable, err.Error())
	}
}

type info struct {
	Id        string `json:"simulation_id"`
	Status    string `json:"status"`
	Games     uint32 `json:"num_games"`
	Completed uint32 `json:"games_completed"`
	Reason    string `json:"reason,omitempty"`
}

func jobInfo(j *pig.Job) info {
	return info{
		Id:        j.Id,
		Status:    j.Status().String(),
		Games:     j.Games,
		Completed: j.Completed(),
		Reason:    j.Reason(),
	}
}

// job looks up a simulation, preferring the live in-memory record
// over whatever the database remembers.
func (w *web) job(r *http.Request) *pig.Job {
	id := r.PathValue("id")
	if j := w.st.Scheduler.Job(id); j != nil {
		return j
	}
	if db := w.st.Database; db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), DB_TIMEOUT)
		defer cancel()
		return db.QueryJob(ctx, id)
	}
	return nil
}

func (w *web) showSimulation(wr http.ResponseWriter, r *http.Request) {
	j := w.job(r)
	if j == nil {
		fail(wr, http.StatusNotFound, "unknown simulation")
		return
	}
	respond(wr, http.StatusOK, jobInfo(j))
}

type row struct {
	Bot     string  `json:"bot_id"`
	Name    string  `json:"bot_name"`
	Average float64 `json:"average_money_per_game"`
	pig.Result
}

func (w *web) showResults(wr http.ResponseWriter, r *http.Request) {
	j := w.job(r)
	if j == nil {
		fail(wr, http.StatusNotFound, "unknown simulation")
		return
	}
	results := j.Results()
	if results == nil {
		fail(wr, http.StatusConflict, "simulation still in progress")
		return
	}

	// Averages are taken over the games that were actually played,
	// which can be fewer than requested if the simulation was cut
	// short.
	games := j.Completed()
	if games == 0 {
		games = j.Games
	}
	rows := make([]row, len(results))
	for i, res := range results {
		rows[i] = row{
			Bot:     j.Users[i].Id,
			Name:    j.Users[i].Name,
			Average: res.Average(games),
			Result:  res,
		}
	}
	respond(wr, http.StatusOK, struct {
		info
		Results []row `json:"results"`
	}{jobInfo(j), rows})
}
