// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bridge binds the socket layer, the heartbeat engine, and the
// reactor registry into the single worker loop described in §4.6: the
// Communicator Orchestrator.
package bridge

import (
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/heartbeat"
	"github.com/otisdds/ddsbridge/reactor"
	"github.com/otisdds/ddsbridge/ssadapter"
)

// Params bundles every per-process tunable the orchestrator needs to
// construct the socket layer, the heartbeat engine, and each reactor it
// creates, per §6's configuration table.
type Params struct {
	Sockets   ddsnet.Params
	Heartbeat heartbeat.Params
	Reactor   reactor.Params
}

// Bridge is the Communicator Orchestrator (C6): a single worker goroutine
// driving heartbeat send/receive, liveness sweeps, and interactive
// demultiplexing across both DEN channels.
type Bridge struct {
	params  Params
	adapter ssadapter.Adapter
	log     slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	sockets *ddsnet.Sockets
	hb      *heartbeat.Engine
	reg     *reactor.Registry

	stopCh        chan struct{}
	doneCh        chan struct{}
	snapshotReqCh chan snapshotRequest
}

// snapshotRequest is a reply channel for one Snapshot call, funneled into
// the worker loop so the registry and its reactors -- worker-owned state
// per §5 -- are only ever touched from the worker goroutine.
type snapshotRequest chan []reactor.Snapshot

// New constructs a Bridge. now defaults to time.Now if nil; tests pass a
// fake clock so the retry and liveness paths can be driven deterministically
// without sleeping.
func New(params Params, adapter ssadapter.Adapter, log slog.Logger, now func() time.Time) *Bridge {
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		params:  params,
		adapter: adapter,
		log:     log,
		now:     now,
	}
}

// Start opens the four sockets, constructs the heartbeat engine and reactor
// registry, and spawns the worker goroutine. Start is idempotent against
// repeated calls while already running: a second call logs a warning and
// returns nil rather than erroring, matching §4.6.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		b.log.Warnf("bridge: start called while already running")
		return nil
	}

	sockets, err := ddsnet.Open(b.params.Sockets)
	if err != nil {
		return err
	}

	reg := reactor.NewRegistry(b.params.Reactor, sockets, b.adapter, b.log, b.now)
	hb := heartbeat.New(b.params.Heartbeat, sockets, reg, b.log, b.now)

	b.sockets = sockets
	b.reg = reg
	b.hb = hb
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.snapshotReqCh = make(chan snapshotRequest, 4)
	b.running = true

	go b.run(b.stopCh, b.doneCh)
	b.log.Infof("bridge: started")
	return nil
}

// run executes the worker loop of §4.6 until stopCh is closed.
func (b *Bridge) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		b.hb.SendTick()
		b.hb.ReceiveTick()
		b.hb.LivenessSweep()
		b.interactiveTick(ddsnet.ChannelDes)
		b.interactiveTick(ddsnet.ChannelDec)
		b.reg.RetrySweepAll()
		b.serveSnapshotRequests()
	}
}

// serveSnapshotRequests answers every pending Snapshot call without
// blocking the worker loop: the registry and its reactors never leave this
// goroutine, only the copies Registry.Snapshot produces do.
func (b *Bridge) serveSnapshotRequests() {
	for {
		select {
		case req := <-b.snapshotReqCh:
			req <- b.reg.Snapshot()
		default:
			return
		}
	}
}

// interactiveTick drains at most one pending datagram from channel's socket
// and dispatches it through the registry. Per the documented anomaly, the
// receive call is demultiplexed strictly by the channel argument -- both
// the DES and DEC sockets are read independently, not collapsed onto one.
func (b *Bridge) interactiveTick(channel ddsnet.Channel) {
	datagram, ok, err := b.sockets.ReceiveInteractive(channel)
	if err != nil {
		b.log.Warnf("bridge: receive on %s: %v", channel, err)
		return
	}
	if !ok {
		return
	}
	b.reg.HandleInteractive(datagram, channel)
}

// Stop signals the worker to exit, waits for it to join, and closes every
// socket. Stop on a Bridge that was never started or already stopped is a
// no-op.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	stopCh := b.stopCh
	doneCh := b.doneCh
	sockets := b.sockets
	b.running = false
	b.mu.Unlock()

	close(stopCh)
	<-doneCh
	sockets.Close()
	b.log.Infof("bridge: stopped")
}

// Snapshot returns a point-in-time copy of every tracked reactor's state,
// for admin/status introspection from another goroutine. The request is
// funneled through the worker loop so the registry and its reactors --
// owned exclusively by that goroutine per §5 -- are never read directly
// from the caller's goroutine. It returns nil if the bridge is not running
// or stops before the request is served.
func (b *Bridge) Snapshot() []reactor.Snapshot {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	reqCh := b.snapshotReqCh
	doneCh := b.doneCh
	b.mu.Unlock()

	req := make(snapshotRequest, 1)
	select {
	case reqCh <- req:
	case <-doneCh:
		return nil
	}

	select {
	case snap := <-req:
		return snap
	case <-doneCh:
		return nil
	}
}
