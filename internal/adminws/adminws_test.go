// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package adminws

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/decred/slog"
	gorillaws "github.com/gorilla/websocket"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/reactor"
	"github.com/otisdds/ddsbridge/ssadapter"
)

// discardSender lets a reactor be constructed for status introspection
// without a live transport.
type discardSender struct{}

func (discardSender) SendInteractive(ddsnet.Channel, net.IP, []byte) error { return nil }

// fixedSnapshot is a Snapshotter that always returns the same snapshot,
// standing in for a running bridge in tests.
type fixedSnapshot []reactor.Snapshot

func (f fixedSnapshot) Snapshot() []reactor.Snapshot { return f }

func newTestSource(t *testing.T) Snapshotter {
	t.Helper()
	params := reactor.Params{DuplicatesCacheSize: 5, SendRetryInterval: time.Second, SendMaxRetries: 3, DecOperationMode: 1}
	now := func() time.Time { return time.Unix(1000, 0) }
	reg := reactor.NewRegistry(params, discardSender{}, &ssadapter.StaticAdapter{}, slog.Disabled, now)
	reg.LookupOrCreate(net.ParseIP("10.0.5.7"))
	return fixedSnapshot(reg.Snapshot())
}

func TestMarshalSnapshot(t *testing.T) {
	src := newTestSource(t)
	h := &Handler{Source: src, PushInterval: time.Second}

	raw, err := h.MarshalSnapshot()
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}

	var frame statusFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(frame.Reactors) != 1 {
		t.Fatalf("got %d reactors, want 1", len(frame.Reactors))
	}
	if frame.Reactors[0].SubnetKey != "10.0.5" {
		t.Errorf("subnet key = %q, want 10.0.5", frame.Reactors[0].SubnetKey)
	}
}

func TestServeHTTPPushesStatusFrame(t *testing.T) {
	src := newTestSource(t)
	h := &Handler{Source: src, PushInterval: 20 * time.Millisecond}

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame statusFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if len(frame.Reactors) != 1 {
		t.Fatalf("got %d reactors, want 1", len(frame.Reactors))
	}
}
