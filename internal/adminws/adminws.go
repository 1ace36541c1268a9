// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package adminws exposes a minimal read-only websocket status feed: the
// set of tracked reactors, their liveness, and their backlog depth. It
// mirrors the shape of the teacher's own JSON notification surface for
// node status, scaled down to this module's much smaller state.
package adminws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/otisdds/ddsbridge/reactor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Snapshotter is the subset of *bridge.Bridge this package depends on. It
// must fetch reactor state through a channel into the worker goroutine that
// owns it (§5), never by reading a *reactor.Registry or *reactor.Reactor
// directly from this package's own goroutine.
type Snapshotter interface {
	Snapshot() []reactor.Snapshot
}

// reactorStatus is one reactor's snapshot in the pushed status frame.
type reactorStatus struct {
	SubnetKey         string    `json:"subnetKey"`
	DesIP             string    `json:"desIp"`
	IsDesOnline       bool      `json:"isDesOnline"`
	LastHeartbeatTime time.Time `json:"lastHeartbeatTime"`
	SequenceNumber    uint32    `json:"sequenceNumber"`
	BacklogLen        int       `json:"backlogLen"`
}

// statusFrame is the full payload pushed on every PushInterval tick.
type statusFrame struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Reactors    []reactorStatus `json:"reactors"`
}

// Handler serves one websocket connection per request, pushing a status
// frame every PushInterval until a write fails, for example because the
// client has disconnected.
type Handler struct {
	Source       Snapshotter
	PushInterval time.Duration
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	interval := h.PushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		frame := h.snapshot()
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (h *Handler) snapshot() statusFrame {
	reactors := h.Source.Snapshot()
	out := make([]reactorStatus, 0, len(reactors))
	for _, r := range reactors {
		out = append(out, reactorStatus{
			SubnetKey:         r.SubnetKey.String(),
			DesIP:             r.DesIP.String(),
			IsDesOnline:       r.IsDesOnline,
			LastHeartbeatTime: r.LastHeartbeatTime,
			SequenceNumber:    r.SequenceNumber,
			BacklogLen:        r.BacklogLen,
		})
	}
	return statusFrame{GeneratedAt: time.Now(), Reactors: out}
}

// MarshalSnapshot is exposed for a plain HTTP (non-websocket) status
// endpoint, reusing the same JSON shape.
func (h *Handler) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(h.snapshot())
}
