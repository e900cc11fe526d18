// hub.go

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

// Package observe streams autopilot state and progress to websocket observers.
package observe

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/SMerrony/autopilot"
)

const writeWait = 2 * time.Second

// Event is one message sent to every observer.
type Event struct {
	Type     string                       `json:"type"` // "state" or "progress"
	State    *autopilot.ExecutionState    `json:"state,omitempty"`
	Progress *autopilot.ExecutionProgress `json:"progress,omitempty"`
	Time     time.Time                    `json:"time"`
}

// Hub fans events out to the connected websocket clients.
// Slow or broken clients are dropped rather than allowed to block the autopilot.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*client
	last    *Event // latest state, replayed to new clients
}

// client serialises the writes to one connection.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewHub returns an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log:      log.WithField("component", "observe"),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]*client),
	}
}

// ServeHTTP upgrades the request and registers the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[conn] = c
	last := h.last
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Info("Observer connected")
	if last != nil {
		h.send(c, *last)
	}

	// observers only listen, reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(conn)
	h.log.WithField("remote", r.RemoteAddr).Info("Observer disconnected")
}

// Broadcast sends ev to every client.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	if ev.Type == "state" {
		h.last = &ev
	}
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.send(c, ev)
	}
}

func (h *Hub) send(c *client, ev Event) {
	c.mu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(ev)
	c.mu.Unlock()
	if err != nil {
		h.log.WithError(err).Debug("Dropping observer")
		h.drop(c.conn)
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Pump forwards the autopilot streams until ctx is done or both streams close.
func (h *Hub) Pump(ctx context.Context, states <-chan autopilot.ExecutionState, progress <-chan autopilot.ExecutionProgress) {
	for states != nil || progress != nil {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			h.Broadcast(Event{Type: "state", State: &s, Time: time.Now()})
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			h.Broadcast(Event{Type: "progress", Progress: &p, Time: time.Now()})
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*client)
	h.mu.Unlock()
	var err error
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "autopilot shutting down")
	for conn, c := range clients {
		c.mu.Lock()
		err = multierr.Append(err, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)))
		c.mu.Unlock()
		err = multierr.Append(err, conn.Close())
	}
	return err
}
