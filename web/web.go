// Web Interface
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
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	pig "go-pig"
	"go-pig/cmd"
)

// Upper bound on the time a handler may spend talking to the
// database before the request is abandoned.
const DB_TIMEOUT = 10 * time.Second

//go:embed index.tmpl
var html embed.FS

var tmpl = template.Must(template.ParseFS(html, "*.tmpl"))

type web struct {
	st   *cmd.State
	conf *cmd.Conf
	mux  *http.ServeMux
	srv  *http.Server
}

func (*web) String() string { return "Web Interface" }

// Register announces the web interface to the shared state, unless
// the configuration disabled it.
func Register(st *cmd.State, conf *cmd.Conf) {
	if !conf.Web.Enabled {
		return
	}
	st.Register(&web{st: st, conf: conf})
}

func (w *web) Start(st *cmd.State, conf *cmd.Conf) {
	w.mux = http.NewServeMux()
	w.mux.HandleFunc("GET /{$}", w.index)
	w.mux.HandleFunc("POST /bots", w.uploadBot)
	w.mux.HandleFunc("GET /bots", w.listBots)
	w.mux.HandleFunc("POST /simulations", w.startSimulation)
	w.mux.HandleFunc("GET /simulations/{id}", w.showSimulation)
	w.mux.HandleFunc("GET /simulations/{id}/results", w.showResults)
	if conf.Web.WebSocket {
		w.mux.HandleFunc("GET /simulations/{id}/live", w.live)
	}

	addr := fmt.Sprintf(":%d", conf.Web.Port)
	w.srv = &http.Server{Addr: addr, Handler: w.mux}
	log.Printf("Listening on http://localhost%s", addr)
	err := w.srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func (w *web) Shutdown() {
	if w.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.srv.Shutdown(ctx); err != nil {
		log.Print(err)
	}
}

// index renders the HTML landing page, listing the registered bots
// and the most recent simulations.
func (w *web) index(wr http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DB_TIMEOUT)
	defer cancel()

	var bots []*pig.User
	var jobs []*pig.Job
	if db := w.st.Database; db != nil {
		bc := make(chan *pig.User)
		go db.QueryBots(ctx, bc)
		for u := range bc {
			bots = append(bots, u)
		}
		jc := make(chan *pig.Job)
		go db.QueryJobs(ctx, jc)
		for j := range jc {
			jobs = append(jobs, j)
		}
	}

	err := tmpl.ExecuteTemplate(wr, "index.tmpl", struct {
		Bots []*pig.User
		Jobs []*pig.Job
	}{bots, jobs})
	if err != nil {
		log.Print(err)
	}
}
