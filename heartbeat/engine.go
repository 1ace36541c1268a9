// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package heartbeat implements the multicast presence plane described in
// §4.5: periodic announcement of this process as an SS peer, and per-DES
// liveness tracking driven by the heartbeats it receives.
package heartbeat

import (
	"bytes"
	"net"
	"time"

	"github.com/decred/slog"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/ddswire"
	"github.com/otisdds/ddsbridge/reactor"
)

// sender is the subset of ddsnet.Sockets the engine depends on to transmit
// its own heartbeat.
type sender interface {
	SendHeartbeat(payload []byte) error
}

// receiver is the subset of ddsnet.Sockets the engine depends on to poll
// the heartbeat socket.
type receiver interface {
	ReceiveHeartbeat() (ddsnet.Datagram, bool, error)
}

// registry is the subset of reactor.Registry the engine depends on.
type registry interface {
	LookupOrCreate(peerIP net.IP) *reactor.Reactor
	All() []*reactor.Reactor
}

// Params configures the engine. SendInterval and ReceiveTimeout are
// interpreted in wall-clock seconds per §6's configuration table.
type Params struct {
	SendInterval   time.Duration
	ReceiveTimeout time.Duration
}

// Engine owns the SS-heartbeat send schedule and drives DES liveness
// transitions in the shared reactor registry, per §4.5.
type Engine struct {
	params   Params
	sockets  interface {
		sender
		receiver
	}
	registry registry
	log      slog.Logger
	now      func() time.Time

	nextSendAt time.Time
}

// New constructs an Engine. now defaults to time.Now if nil.
func New(params Params, sockets interface {
	sender
	receiver
}, reg registry, log slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Engine{
		params:     params,
		sockets:    sockets,
		registry:   reg,
		log:        log,
		now:        now,
		nextSendAt: start.Add(params.SendInterval),
	}
}

// SendTick implements the send half of §4.5: while nextSendAt has passed,
// advance it by one interval and multicast exactly one SS heartbeat. Per
// the documented choice, skipped ticks are not amplified into a burst of
// catch-up sends -- the schedule fast-forwards to the next interval boundary
// strictly after now, same as the reference deployment's single-heartbeat-
// per-tick behavior.
func (e *Engine) SendTick() {
	now := e.now()
	if e.params.SendInterval <= 0 {
		return
	}
	if e.nextSendAt.After(now) {
		return
	}
	for !e.nextSendAt.After(now) {
		e.nextSendAt = e.nextSendAt.Add(e.params.SendInterval)
	}

	hb := ddswire.NewSSHeartbeat()
	if err := e.sendHeartbeat(hb); err != nil {
		e.log.Warnf("send heartbeat: %v", err)
	}
}

func (e *Engine) sendHeartbeat(hb ddswire.Heartbeat) error {
	var buf bytes.Buffer
	if err := hb.Encode(&buf); err != nil {
		return err
	}
	return e.sockets.SendHeartbeat(buf.Bytes())
}

// ReceiveTick implements the receive half of §4.5: decode one incoming
// heartbeat datagram (if any), resolve its reactor, and record the DES
// online transition.
func (e *Engine) ReceiveTick() {
	datagram, ok, err := e.sockets.ReceiveHeartbeat()
	if err != nil {
		e.log.Warnf("receive heartbeat: %v", err)
		return
	}
	if !ok {
		return
	}

	hb, err := ddswire.DecodeHeartbeat(datagram.Payload)
	if err != nil {
		e.log.Warnf("malformed heartbeat from %s: %v", datagram.Peer, err)
		return
	}

	r := e.registry.LookupOrCreate(datagram.Peer.IP)
	r.SetLastHeartbeatTime(e.now())
	if !r.IsDesOnline() {
		r.SetDesOnline(true)
		e.log.Infof("subnet %s: DES online (heartbeat source=%d)", r.Key(), hb.Source)
	}
}

// LivenessSweep implements §4.5's liveness sweep: any reactor whose DES has
// gone silent for longer than ReceiveTimeout is marked offline exactly once.
func (e *Engine) LivenessSweep() {
	now := e.now()
	for _, r := range e.registry.All() {
		if r.IsDesOnline() && now.Sub(r.LastHeartbeatTime()) > e.params.ReceiveTimeout {
			r.SetDesOnline(false)
			e.log.Infof("subnet %s: DES offline (no heartbeat for %s)", r.Key(), now.Sub(r.LastHeartbeatTime()))
		}
	}
}
