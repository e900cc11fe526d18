// hub_test.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package observe

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/SMerrony/autopilot"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed with error %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, have %d", n, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Read failed with error %v", err)
	}
	return ev
}

func TestPumpBroadcastsToClients(t *testing.T) {
	log, _ := test.NewNullLogger()
	hub := NewHub(log)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	states := make(chan autopilot.ExecutionState, 1)
	progress := make(chan autopilot.ExecutionProgress, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Pump(ctx, states, progress)

	states <- autopilot.Executing
	for _, c := range []*websocket.Conn{a, b} {
		ev := read(t, c)
		if ev.Type != "state" || ev.State == nil || *ev.State != autopilot.Executing {
			t.Errorf("Received %+v", ev)
		}
	}

	id := uuid.New()
	progress <- autopilot.ExecutionProgress{MissionID: id, Index: 2, Reached: true}
	ev := read(t, a)
	if ev.Type != "progress" || ev.Progress == nil || ev.Progress.MissionID != id || ev.Progress.Index != 2 || !ev.Progress.Reached {
		t.Errorf("Received %+v", ev)
	}
	read(t, b)
}

func TestLateClientGetsLastState(t *testing.T) {
	log, _ := test.NewNullLogger()
	hub := NewHub(log)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	s := autopilot.Paused
	hub.Broadcast(Event{Type: "state", State: &s, Time: time.Now()})

	c := dial(t, srv)
	ev := read(t, c)
	if ev.State == nil || *ev.State != autopilot.Paused {
		t.Errorf("Late client received %+v", ev)
	}
}

func TestClientDisconnectAndClose(t *testing.T) {
	log, _ := test.NewNullLogger()
	hub := NewHub(log)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	a.Close()
	waitClients(t, hub, 1)

	if err := hub.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
	if hub.Clients() != 0 {
		t.Errorf("%d clients after Close", hub.Clients())
	}
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := b.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Client read %v, expected going away", err)
	}
}
