// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package heartbeat

import (
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/decred/slog"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/reactor"
	"github.com/otisdds/ddsbridge/ssadapter"
)

type fakeSockets struct {
	sent     [][]byte
	incoming []ddsnet.Datagram
}

func (f *fakeSockets) SendHeartbeat(payload []byte) error {
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeSockets) ReceiveHeartbeat() (ddsnet.Datagram, bool, error) {
	if len(f.incoming) == 0 {
		return ddsnet.Datagram{}, false, nil
	}
	d := f.incoming[0]
	f.incoming = f.incoming[1:]
	return d, true, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex fixture %q: %v", s, err)
	}
	return b
}

func udpAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip).To4(), Port: port}
}

func newTestEngine(params Params, sockets *fakeSockets, reg *reactor.Registry, clock *fakeClock) *Engine {
	return New(params, sockets, reg, slog.Disabled, clock.now)
}

func newTestRegistry(clock *fakeClock) *reactor.Registry {
	return reactor.NewRegistry(reactor.Params{
		DuplicatesCacheSize: 5,
		SendRetryInterval:   time.Second,
		SendMaxRetries:      5,
		DecOperationMode:    3,
	}, &discardSender{}, &ssadapter.StaticAdapter{}, slog.Disabled, clock.now)
}

// discardSender lets reactors created purely for liveness bookkeeping be
// constructed without a live transport.
type discardSender struct{}

func (discardSender) SendInteractive(ddsnet.Channel, net.IP, []byte) error { return nil }

// TestDiscoveryBringsDesOnline is scenario S1.
func TestDiscoveryBringsDesOnline(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	reg := newTestRegistry(clock)
	sockets := &fakeSockets{incoming: []ddsnet.Datagram{
		{Payload: mustHex(t, "01000303000300"), Peer: udpAddr("10.0.5.7", 47307)},
	}}
	e := newTestEngine(Params{SendInterval: time.Second, ReceiveTimeout: 3 * time.Second}, sockets, reg, clock)

	e.ReceiveTick()

	r, ok := reg.Lookup(reactor.SubnetKeyFromIP(net.ParseIP("10.0.5.7")))
	if !ok {
		t.Fatal("expected a reactor to be created for 10.0.5")
	}
	if !r.IsDesOnline() {
		t.Error("expected DES to be online after first heartbeat")
	}
	if !r.LastHeartbeatTime().Equal(clock.t) {
		t.Errorf("lastHeartbeatTime = %v, want %v", r.LastHeartbeatTime(), clock.t)
	}
}

// TestLivenessLoss is scenario S6.
func TestLivenessLoss(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	reg := newTestRegistry(clock)
	sockets := &fakeSockets{incoming: []ddsnet.Datagram{
		{Payload: mustHex(t, "01000303000300"), Peer: udpAddr("10.0.5.7", 47307)},
	}}
	e := newTestEngine(Params{SendInterval: time.Second, ReceiveTimeout: 3 * time.Second}, sockets, reg, clock)

	e.ReceiveTick()
	r, _ := reg.Lookup(reactor.SubnetKeyFromIP(net.ParseIP("10.0.5.7")))
	if !r.IsDesOnline() {
		t.Fatal("expected online after discovery")
	}

	clock.t = clock.t.Add(4 * time.Second)
	e.LivenessSweep()

	if r.IsDesOnline() {
		t.Error("expected DES offline after liveness timeout")
	}

	// A second sweep at the same time must not flip the transition again
	// (it's already offline; nothing to log or change).
	wasOnline := r.IsDesOnline()
	e.LivenessSweep()
	if r.IsDesOnline() != wasOnline {
		t.Error("liveness sweep toggled an already-offline reactor")
	}
}

// TestSendTickRespectsInterval verifies the schedule only emits once an
// interval has actually elapsed, and fast-forwards without amplifying a
// long gap into a burst of catch-up sends.
func TestSendTickRespectsInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	reg := newTestRegistry(clock)
	sockets := &fakeSockets{}
	e := newTestEngine(Params{SendInterval: time.Second, ReceiveTimeout: 3 * time.Second}, sockets, reg, clock)

	e.SendTick()
	if len(sockets.sent) != 0 {
		t.Fatalf("expected no send before the first interval elapses, got %d", len(sockets.sent))
	}

	clock.t = clock.t.Add(500 * time.Millisecond)
	e.SendTick()
	if len(sockets.sent) != 0 {
		t.Fatalf("expected no send at half the interval, got %d", len(sockets.sent))
	}

	clock.t = clock.t.Add(600 * time.Millisecond)
	e.SendTick()
	if len(sockets.sent) != 1 {
		t.Fatalf("expected exactly one send once the interval elapses, got %d", len(sockets.sent))
	}

	// A long gap (several missed intervals) still produces exactly one send.
	clock.t = clock.t.Add(5 * time.Second)
	e.SendTick()
	if len(sockets.sent) != 2 {
		t.Fatalf("expected exactly one additional send after a long gap, got %d total", len(sockets.sent))
	}
}
