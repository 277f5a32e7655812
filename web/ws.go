// Live Progress over WebSocket
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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	pig "go-pig"
)

// How often a progress frame is pushed to a live subscriber.
const pushInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The interface is expected to be proxied or used locally,
	// so cross-origin requests are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// live streams progress frames for a running simulation until it
// reaches a terminal state or the client goes away.  A frame is sent
// immediately on connect, so subscribing to a finished simulation
// still yields its final state.
func (w *web) live(wr http.ResponseWriter, r *http.Request) {
	j := w.job(r)
	if j == nil {
		fail(wr, http.StatusNotFound, "unknown simulation")
		return
	}

	conn, err := upgrader.Upgrade(wr, r, nil)
	if err != nil {
		pig.Debug.Print(err)
		return
	}
	defer conn.Close()

	// Discard client messages, but notice when the peer closes
	// the connection.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	tick := time.NewTicker(pushInterval)
	defer tick.Stop()
	for {
		if err := conn.WriteJSON(jobInfo(j)); err != nil {
			return
		}
		if j.Done() {
			msg := websocket.FormatCloseMessage(
				websocket.CloseNormalClosure, "")
			conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}
		select {
		case <-gone:
			return
		case <-w.st.Context.Done():
			return
		case <-tick.C:
		}
	}
}
