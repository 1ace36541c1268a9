// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import (
	"net"
	"time"

	"github.com/decred/slog"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/ssadapter"
)

// Registry indexes per-DES Interactive Reactor instances by peer subnet
// key, creating them lazily through LookupOrCreate, which the heartbeat
// engine calls for each received heartbeat; interactive traffic never
// creates one (I5). It is single-threaded:
// every method must only be called from the orchestrator's worker.
type Registry struct {
	reactors map[SubnetKey]*Reactor
	params   Params
	sockets  sender
	adapter  ssadapter.Adapter
	log      slog.Logger
	now      func() time.Time
}

// NewRegistry constructs an empty registry. now defaults to time.Now if nil;
// tests pass a fake clock to exercise the retry and liveness paths
// deterministically.
func NewRegistry(params Params, sockets sender, adapter ssadapter.Adapter, log slog.Logger, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		reactors: make(map[SubnetKey]*Reactor),
		params:   params,
		sockets:  sockets,
		adapter:  adapter,
		log:      log,
		now:      now,
	}
}

// LookupOrCreate returns the reactor for peerIP's subnet key, creating one
// if this is the first time the key has been seen (§4.3).
func (reg *Registry) LookupOrCreate(peerIP net.IP) *Reactor {
	key := SubnetKeyFromIP(peerIP)
	if r, ok := reg.reactors[key]; ok {
		return r
	}
	r := newReactor(key, append(net.IP(nil), peerIP.To4()...), reg.params, reg.sockets, reg.adapter, reg.log, reg.now)
	reg.reactors[key] = r
	reg.log.Infof("subnet %s: reactor created for %s", key, peerIP)
	return r
}

// Lookup returns the existing reactor for key, if any, without creating one.
func (reg *Registry) Lookup(key SubnetKey) (*Reactor, bool) {
	r, ok := reg.reactors[key]
	return r, ok
}

// All returns every reactor currently tracked, for liveness sweeps and
// admin/status introspection. The returned slice is a snapshot copy.
func (reg *Registry) All() []*Reactor {
	out := make([]*Reactor, 0, len(reg.reactors))
	for _, r := range reg.reactors {
		out = append(out, r)
	}
	return out
}

// HandleInteractive resolves the reactor for the datagram's sender and
// dispatches it, per §4.4.2. It is the entry point the orchestrator calls
// for every interactive datagram arriving on either DEN channel. Per I5, a
// reactor is created only on receipt of a heartbeat; interactive traffic
// from a subnet that has never sent one is dropped.
func (reg *Registry) HandleInteractive(datagram ddsnet.Datagram, channel ddsnet.Channel) {
	key := SubnetKeyFromIP(datagram.Peer.IP)
	r, ok := reg.Lookup(key)
	if !ok {
		reg.log.Warnf("subnet %s: interactive datagram from unknown subnet (no heartbeat yet), dropped", key)
		return
	}
	r.HandleDatagram(datagram.Payload, datagram.Peer, channel)
}

// RetrySweepAll runs the retry path (§4.4.3) across every tracked reactor.
func (reg *Registry) RetrySweepAll() {
	for _, r := range reg.reactors {
		r.RetrySweep()
	}
}

// Snapshot copies the current state of every tracked reactor. Per §5, the
// registry and its reactors are owned by the single orchestrator worker;
// this must only be called from that worker goroutine. Admin/diagnostic
// consumers running on other goroutines must go through a request channel
// into the worker instead of calling this directly (see bridge.Bridge.Snapshot).
func (reg *Registry) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(reg.reactors))
	for _, r := range reg.reactors {
		out = append(out, r.snapshot())
	}
	return out
}
