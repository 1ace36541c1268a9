// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/decred/slog"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/ddswire"
	"github.com/otisdds/ddsbridge/ssadapter"
)

// sentPacket records one call to the fake sender.
type sentPacket struct {
	channel ddsnet.Channel
	peerIP  net.IP
	payload []byte
}

type fakeSender struct {
	sent []sentPacket
}

func (f *fakeSender) SendInteractive(channel ddsnet.Channel, peerIP net.IP, payload []byte) error {
	cp := append([]byte(nil), payload...)
	f.sent = append(f.sent, sentPacket{channel: channel, peerIP: peerIP, payload: cp})
	return nil
}

// fakeClock is a settable time source for deterministic retry/liveness tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func testParams() Params {
	return Params{
		DuplicatesCacheSize: 5,
		SendRetryInterval:   time.Second,
		SendMaxRetries:      5,
		DecOperationMode:    3,
	}
}

func newTestReactor(t *testing.T, params Params, adapter ssadapter.Adapter, clock *fakeClock) (*Reactor, *fakeSender) {
	t.Helper()
	fs := &fakeSender{}
	log := slog.Disabled
	r := newReactor(SubnetKey{10, 0, 5}, net.IPv4(10, 0, 5, 7), params, fs, adapter, log, clock.now)
	return r, fs
}

func udpAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip).To4(), Port: port}
}

// TestDecOnlineStatusBringsUpDec is scenario S2.
func TestDecOnlineStatusBringsUpDec(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r, fs := newTestReactor(t, testParams(), &ssadapter.StaticAdapter{}, clock)

	bm := ddswire.NewBitmap()
	bm.Set(3, true)
	pkt := ddswire.DecOnlineStatus{Header: ddswire.Header{PacketID: 7}, DecSubnetID: 5, OnlineMap: bm}
	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	wantSeqBeforeSend := r.SequenceNumber()
	r.HandleDatagram(buf.Bytes(), udpAddr("10.0.5.7", 45303), ddsnet.ChannelDes)

	if len(fs.sent) != 2 {
		t.Fatalf("expected 2 sends (operation mode v2 + ack), got %d", len(fs.sent))
	}

	opModeSend := fs.sent[0]
	if opModeSend.channel != ddsnet.ChannelDec {
		t.Errorf("operation mode v2 channel = %v, want Dec", opModeSend.channel)
	}
	if !opModeSend.peerIP.Equal(net.IPv4(10, 0, 5, 3)) {
		t.Errorf("operation mode v2 peer = %v, want 10.0.5.3", opModeSend.peerIP)
	}
	h, err := ddswire.DecodeHeader(opModeSend.payload)
	if err != nil {
		t.Fatalf("decode operation mode v2 header: %v", err)
	}
	if h.PacketID != wantSeqBeforeSend {
		t.Errorf("operation mode v2 packetID = %d, want %d", h.PacketID, wantSeqBeforeSend)
	}
	opMode, err := ddswire.DecodeOperationModeV2Body(h, opModeSend.payload[6:])
	if err != nil {
		t.Fatalf("decode operation mode v2 body: %v", err)
	}
	if opMode.Mode != 3 {
		t.Errorf("operation mode = %d, want 3", opMode.Mode)
	}
	for i := 0; i < 256; i++ {
		if opMode.AllowedFloorsFront.Get(i) || opMode.AllowedFloorsRear.Get(i) {
			t.Fatalf("expected all-zero floor maps, bit %d set", i)
		}
	}

	ackSend := fs.sent[1]
	if ackSend.channel != ddsnet.ChannelDes {
		t.Errorf("ack channel = %v, want Des", ackSend.channel)
	}
	ah, err := ddswire.DecodeHeader(ackSend.payload)
	if err != nil {
		t.Fatalf("decode ack header: %v", err)
	}
	if ah.PacketID != 7 {
		t.Errorf("ack packetID = %d, want 7 (echoed)", ah.PacketID)
	}
	ack, err := ddswire.DecodeAckBody(ah, ackSend.payload[6:])
	if err != nil {
		t.Fatalf("decode ack body: %v", err)
	}
	if ack.AckType != ddswire.AckAcceptable {
		t.Errorf("ack type = %v, want Acceptable", ack.AckType)
	}

	if r.SequenceNumber() != wantSeqBeforeSend+1 {
		t.Errorf("sequenceNumber after send = %d, want %d", r.SequenceNumber(), wantSeqBeforeSend+1)
	}
	if !r.onlineDecMap.Get(3) {
		t.Error("expected onlineDecMap bit 3 set after reaction")
	}
}

// TestDuplicateReplayDoesNotReReact is scenario S3.
func TestDuplicateReplayDoesNotReReact(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r, fs := newTestReactor(t, testParams(), &ssadapter.StaticAdapter{}, clock)

	bm := ddswire.NewBitmap()
	bm.Set(3, true)
	pkt := ddswire.DecOnlineStatus{Header: ddswire.Header{PacketID: 7}, DecSubnetID: 5, OnlineMap: bm}
	var buf bytes.Buffer
	pkt.Encode(&buf)

	r.HandleDatagram(buf.Bytes(), udpAddr("10.0.5.7", 45303), ddsnet.ChannelDes)
	fs.sent = nil // discard S2's sends, test only the replay

	r.HandleDatagram(buf.Bytes(), udpAddr("10.0.5.7", 45303), ddsnet.ChannelDes)

	if len(fs.sent) != 1 {
		t.Fatalf("expected only an ack on replay, got %d sends", len(fs.sent))
	}
	ackSend := fs.sent[0]
	h, err := ddswire.DecodeHeader(ackSend.payload)
	if err != nil {
		t.Fatalf("decode ack header: %v", err)
	}
	ack, err := ddswire.DecodeAckBody(h, ackSend.payload[6:])
	if err != nil {
		t.Fatalf("decode ack body: %v", err)
	}
	if ack.AckType != ddswire.AckDuplicate {
		t.Errorf("ack type = %v, want Duplicate", ack.AckType)
	}
}

// TestCredentialFlow is scenario S4.
func TestCredentialFlow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	adapter := &ssadapter.StaticAdapter{
		Access: ssadapter.AccessInfo{
			IsValid:            true,
			DefaultFloor:       10,
			DefaultDoorType:    ddswire.DoorRear,
			AllowedFloorsFront: []int8{1, 2, 3},
		},
	}
	r, fs := newTestReactor(t, testParams(), adapter, clock)

	cred := ddswire.CredentialData{
		Header:           ddswire.Header{PacketID: 42},
		DecSubnetID:      5,
		DecID:            3,
		CredentialBitLen: 24,
		CredentialBytes:  []byte{0x0A, 0xBB, 0xCC},
	}
	var buf bytes.Buffer
	cred.Encode(&buf)

	r.HandleDatagram(buf.Bytes(), udpAddr("10.0.5.3", 46308), ddsnet.ChannelDec)

	if len(fs.sent) != 2 {
		t.Fatalf("expected 2 sends (authorized floor + ack), got %d", len(fs.sent))
	}
	floorSend := fs.sent[0]
	if floorSend.channel != ddsnet.ChannelDes {
		t.Errorf("authorized floor channel = %v, want Des", floorSend.channel)
	}
	if !floorSend.peerIP.Equal(net.IPv4(10, 0, 5, 7)) {
		t.Errorf("authorized floor peer = %v, want DES ip", floorSend.peerIP)
	}
	h, err := ddswire.DecodeHeader(floorSend.payload)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	floor, err := ddswire.DecodeAuthorizedDefaultFloorV2Body(h, floorSend.payload[6:])
	if err != nil {
		t.Fatalf("decode authorized default floor v2: %v", err)
	}
	if floor.DefaultFloor != 10 || floor.DefaultDoor != ddswire.DoorRear {
		t.Errorf("unexpected default floor/door: %+v", floor)
	}

	ackSend := fs.sent[1]
	ah, _ := ddswire.DecodeHeader(ackSend.payload)
	if ah.PacketID != 42 {
		t.Errorf("ack packetID = %d, want 42", ah.PacketID)
	}
}

// TestDuplicateCacheEviction is property P4.
func TestDuplicateCacheEviction(t *testing.T) {
	c := newDuplicateCache(3)
	for _, id := range []uint32{1, 2, 3, 4} {
		c.Insert(id)
	}
	if c.Contains(1) {
		t.Error("id 1 should have been evicted")
	}
	for _, id := range []uint32{2, 3, 4} {
		if !c.Contains(id) {
			t.Errorf("id %d should still be cached", id)
		}
	}
	if c.Len() != 3 {
		t.Errorf("cache len = %d, want 3", c.Len())
	}
}

// TestRetryThenDrop is properties P5/P6 and scenario S5.
func TestRetryThenDrop(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	params := testParams()
	params.SendRetryInterval = time.Second
	params.SendMaxRetries = 3
	r, fs := newTestReactor(t, params, &ssadapter.StaticAdapter{}, clock)

	pkt := ddswire.OperationModeV2{Mode: 3}
	if _, err := r.Send(&pkt, net.IPv4(10, 0, 5, 3), ddsnet.ChannelDec); err != nil {
		t.Fatalf("Send: %v", err)
	}
	fs.sent = nil // the initial send already happened; count only retries

	for i := 0; i < params.SendMaxRetries; i++ {
		clock.t = clock.t.Add(params.SendRetryInterval + time.Millisecond)
		r.RetrySweep()
	}
	if len(fs.sent) != params.SendMaxRetries {
		t.Fatalf("retransmissions = %d, want %d", len(fs.sent), params.SendMaxRetries)
	}
	if r.BacklogLen() != 0 {
		t.Errorf("backlog should be empty after max retries, got %d entries", r.BacklogLen())
	}

	// Further sweeps produce no more retransmissions.
	clock.t = clock.t.Add(params.SendRetryInterval + time.Millisecond)
	r.RetrySweep()
	if len(fs.sent) != params.SendMaxRetries {
		t.Errorf("unexpected extra retransmission after drop")
	}
}

// TestAckBeforeDeadlineStopsRetry is property P5.
func TestAckBeforeDeadlineStopsRetry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	params := testParams()
	r, fs := newTestReactor(t, params, &ssadapter.StaticAdapter{}, clock)

	pkt := ddswire.OperationModeV2{Mode: 3}
	id, err := r.Send(&pkt, net.IPv4(10, 0, 5, 3), ddsnet.ChannelDec)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	fs.sent = nil

	ack := ddswire.Ack{Header: ddswire.Header{PacketID: id}, AckType: ddswire.AckAcceptable}
	var buf bytes.Buffer
	ack.Encode(&buf)
	r.HandleDatagram(buf.Bytes(), udpAddr("10.0.5.3", 46308), ddsnet.ChannelDec)

	clock.t = clock.t.Add(10 * params.SendRetryInterval)
	r.RetrySweep()

	for _, s := range fs.sent {
		h, _ := ddswire.DecodeHeader(s.payload)
		if h.Type == ddswire.TypeOperationModeV2 {
			t.Fatalf("acked packet was retransmitted")
		}
	}
}

// TestSequenceNumberMonotonic is property P7.
func TestSequenceNumberMonotonic(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r, _ := newTestReactor(t, testParams(), &ssadapter.StaticAdapter{}, clock)

	start := r.SequenceNumber()
	const m = 10
	for i := 0; i < m; i++ {
		pkt := ddswire.OperationModeV2{Mode: 3}
		if _, err := r.Send(&pkt, net.IPv4(10, 0, 5, 3), ddsnet.ChannelDec); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if r.SequenceNumber() != start+m {
		t.Errorf("sequenceNumber = %d, want %d", r.SequenceNumber(), start+m)
	}
}

// TestUnsupportedTypeIsAckedNotErrored confirms an unknown interactive
// type is reported as AckUnsupported rather than a decode failure.
func TestUnsupportedTypeIsAckedNotErrored(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r, fs := newTestReactor(t, testParams(), &ssadapter.StaticAdapter{}, clock)

	raw := []byte{0x09, 0x00, 0x00, 0x00, 0xFF, 0xFF} // header only, unknown type 0xFFFF
	r.HandleDatagram(raw, udpAddr("10.0.5.7", 45303), ddsnet.ChannelDes)

	if len(fs.sent) != 1 {
		t.Fatalf("expected a single ack, got %d sends", len(fs.sent))
	}
	h, _ := ddswire.DecodeHeader(fs.sent[0].payload)
	ack, err := ddswire.DecodeAckBody(h, fs.sent[0].payload[6:])
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.AckType != ddswire.AckUnsupported {
		t.Errorf("ack type = %v, want Unsupported", ack.AckType)
	}
}
