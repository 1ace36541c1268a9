// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package reactor implements the per-DES Interactive Reactor and its
// registry: sequence numbers, duplicate suppression, un-acked backlog with
// timed retry, and the reactive dispatch of incoming interactive packets
// to per-variant handlers, per §4.3 and §4.4.
package reactor

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/decred/slog"

	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/ddswire"
	"github.com/otisdds/ddsbridge/ssadapter"
)

// SubnetKey is the first three octets of an IPv4 address: the unit of
// reactor sharing described in §3 ("the peer subnet key").
type SubnetKey [3]byte

// SubnetKeyFromIP derives the subnet key of an IPv4 address.
func SubnetKeyFromIP(ip net.IP) SubnetKey {
	ip4 := ip.To4()
	var k SubnetKey
	copy(k[:], ip4[:3])
	return k
}

// String renders the subnet key in dotted form, e.g. "10.0.5".
func (k SubnetKey) String() string {
	return fmt.Sprintf("%d.%d.%d", k[0], k[1], k[2])
}

// sender is the subset of ddsnet.Sockets the reactor depends on: addressed
// interactive send. Accepting this narrow interface, rather than a
// concrete *ddsnet.Sockets, lets tests exercise reaction logic against a
// fake transport.
type sender interface {
	SendInteractive(channel ddsnet.Channel, peerIP net.IP, payload []byte) error
}

// Params configures every reactor the registry creates.
type Params struct {
	DuplicatesCacheSize int
	SendRetryInterval   time.Duration
	SendMaxRetries      int
	DecOperationMode    uint8
}

// Reactor owns one DES subnet's sequence numbers, caches, backlog, and
// per-DEC online-state tracking, per §3's "Reactor state".
type Reactor struct {
	key    SubnetKey
	params Params

	sockets sender
	adapter ssadapter.Adapter
	log     slog.Logger
	now     func() time.Time

	desIP             net.IP
	lastHeartbeatTime time.Time
	isDesOnline       bool
	sequenceNumber    uint32
	onlineDecMap      ddswire.Bitmap

	duplicates *duplicateCache
	backlog    *backlog
}

func newReactor(key SubnetKey, desIP net.IP, params Params, sockets sender, adapter ssadapter.Adapter, log slog.Logger, now func() time.Time) *Reactor {
	return &Reactor{
		key:          key,
		params:       params,
		sockets:      sockets,
		adapter:      adapter,
		log:          log,
		now:          now,
		desIP:        desIP,
		onlineDecMap: ddswire.NewBitmap(),
		duplicates:   newDuplicateCache(params.DuplicatesCacheSize),
		backlog:      newBacklog(),
	}
}

// Key returns the reactor's subnet key.
func (r *Reactor) Key() SubnetKey { return r.key }

// DesIP returns the first IPv4 address heard for this subnet.
func (r *Reactor) DesIP() net.IP { return r.desIP }

// IsDesOnline reports the DES liveness state last set by the heartbeat
// engine.
func (r *Reactor) IsDesOnline() bool { return r.isDesOnline }

// SetDesOnline is called by the heartbeat engine to transition liveness.
func (r *Reactor) SetDesOnline(online bool) { r.isDesOnline = online }

// LastHeartbeatTime returns the last time a heartbeat was recorded for
// this subnet.
func (r *Reactor) LastHeartbeatTime() time.Time { return r.lastHeartbeatTime }

// SetLastHeartbeatTime is called by the heartbeat engine on every received
// heartbeat for this subnet.
func (r *Reactor) SetLastHeartbeatTime(t time.Time) { r.lastHeartbeatTime = t }

// SequenceNumber returns the next packet ID that Send will assign,
// satisfying P7's inspectability requirement.
func (r *Reactor) SequenceNumber() uint32 { return r.sequenceNumber }

// Snapshot is a point-in-time, independent copy of a reactor's observable
// state. Per §5, a Reactor itself is owned by the single orchestrator
// worker and must never be read from another goroutine; Snapshot is the
// only state that crosses to admin/diagnostic consumers, and it must only
// ever be built by the worker goroutine that owns r.
type Snapshot struct {
	SubnetKey         SubnetKey
	DesIP             net.IP
	IsDesOnline       bool
	LastHeartbeatTime time.Time
	SequenceNumber    uint32
	BacklogLen        int
}

// snapshot copies r's current state. Callers must only invoke this from
// the worker goroutine that owns r.
func (r *Reactor) snapshot() Snapshot {
	return Snapshot{
		SubnetKey:         r.key,
		DesIP:             append(net.IP(nil), r.desIP...),
		IsDesOnline:       r.isDesOnline,
		LastHeartbeatTime: r.lastHeartbeatTime,
		SequenceNumber:    r.sequenceNumber,
		BacklogLen:        r.BacklogLen(),
	}
}

// outboundPacket is any interactive packet type the reactor can send: the
// set has a settable PacketID (via the embedded Header, per §4.4.1 step 1)
// and knows how to encode itself to the wire.
type outboundPacket interface {
	SetPacketID(id uint32)
	Encode(w io.Writer) error
}

// Send stamps pkt's packet ID from the reactor's sequence counter, encodes
// and transmits it, and records it in the un-acked backlog, per §4.4.1.
// It does not apply to Ack packets, which are sent via sendAck and never
// occupy the backlog.
func (r *Reactor) Send(pkt outboundPacket, peerIP net.IP, channel ddsnet.Channel) (uint32, error) {
	id := r.sequenceNumber
	pkt.SetPacketID(id)

	var buf bytes.Buffer
	if err := pkt.Encode(&buf); err != nil {
		return 0, fmt.Errorf("encode outbound packet: %w", err)
	}
	encoded := append([]byte(nil), buf.Bytes()...)

	if err := r.sockets.SendInteractive(channel, peerIP, encoded); err != nil {
		return 0, fmt.Errorf("send outbound packet: %w", err)
	}

	r.backlog.PushBack(&backlogEntry{
		packetID:     id,
		encoded:      encoded,
		peer:         peerIP,
		channel:      channel,
		lastSendTime: r.now(),
		retryCount:   0,
	})
	r.sequenceNumber++
	return id, nil
}

// sendAck transmits an Ack echoing packetID with the given outcome on
// channel, without populating the backlog (Acks are not retried).
func (r *Reactor) sendAck(packetID uint32, ackType ddswire.AckType, peerIP net.IP, channel ddsnet.Channel) error {
	ack := ddswire.Ack{Header: ddswire.Header{PacketID: packetID}, AckType: ackType}
	var buf bytes.Buffer
	if err := ack.Encode(&buf); err != nil {
		return fmt.Errorf("encode ack: %w", err)
	}
	return r.sockets.SendInteractive(channel, peerIP, buf.Bytes())
}

// HandleDatagram implements the receive path of §4.4.2 for one interactive
// datagram arriving from peer on the local channel it was received on.
func (r *Reactor) HandleDatagram(payload []byte, peer *net.UDPAddr, channel ddsnet.Channel) {
	h, err := ddswire.DecodeHeader(payload)
	if err != nil {
		r.log.Warnf("subnet %s: malformed interactive packet from %s: %v", r.key, peer, err)
		return
	}

	if r.duplicates.Contains(h.PacketID) {
		if err := r.sendAck(h.PacketID, ddswire.AckDuplicate, peer.IP, channel); err != nil {
			r.log.Warnf("subnet %s: ack duplicate to %s: %v", r.key, peer, err)
		}
		return
	}
	r.duplicates.Insert(h.PacketID)

	ackType := r.react(h, payload[6:], peer, channel)

	if err := r.sendAck(h.PacketID, ackType, peer.IP, channel); err != nil {
		r.log.Warnf("subnet %s: ack 0x%x to %s: %v", r.key, h.PacketID, peer, err)
	}
}

// react decodes and reacts to one non-duplicate interactive packet,
// returning the Ack outcome per §4.4.4 and the error-taxonomy policy in §7.
func (r *Reactor) react(h ddswire.Header, body []byte, peer *net.UDPAddr, channel ddsnet.Channel) ddswire.AckType {
	if !ddswire.IsSupportedType(h.Type) {
		r.log.Debugf("subnet %s: unsupported interactive type 0x%02x from %s", r.key, h.Type, peer)
		return ddswire.AckUnsupported
	}

	decoded, err := ddswire.DecodeBody(h, body)
	if err != nil {
		r.log.Warnf("subnet %s: malformed body for type 0x%02x from %s: %v", r.key, h.Type, peer, err)
		return ddswire.AckUnacceptable
	}

	switch v := decoded.(type) {
	case ddswire.Ack:
		r.backlog.Remove(v.PacketID)
		return ddswire.AckAcceptable

	case ddswire.DecOnlineStatus:
		r.reactDecOnlineStatus(v)
		return ddswire.AckAcceptable

	case ddswire.CredentialData:
		if err := r.reactCredentialData(v, peer); err != nil {
			r.log.Warnf("subnet %s: credential reaction failed: %v", r.key, err)
			return ddswire.AckUnacceptable
		}
		return ddswire.AckAcceptable

	case ddswire.AuthorizedDefaultFloorV2, ddswire.OperationModeV2:
		// Not expected inbound: these are packets this bridge only ever
		// sends, never receives, per §4.4.4.
		r.log.Warnf("subnet %s: unexpected inbound type 0x%02x from %s", r.key, h.Type, peer)
		return ddswire.AckUnacceptable

	default:
		r.log.Warnf("subnet %s: decoded but unhandled type 0x%02x from %s", r.key, h.Type, peer)
		return ddswire.AckUnacceptable
	}
}

// reactDecOnlineStatus implements the DEC Online Status reaction: on every
// 0->1 transition, configure the newly online DEC; on 1->0, log only.
func (r *Reactor) reactDecOnlineStatus(v ddswire.DecOnlineStatus) {
	for i := 0; i < 256; i++ {
		was := r.onlineDecMap.Get(i)
		now := v.OnlineMap.Get(i)
		if was == now {
			continue
		}
		if now {
			r.bringDecOnline(v.DecSubnetID, i)
		} else {
			r.log.Infof("subnet %s: dec subnet %d dec %d went offline", r.key, v.DecSubnetID, i)
		}
	}
	r.onlineDecMap = v.OnlineMap
}

func (r *Reactor) bringDecOnline(decSubnetID uint8, decID int) {
	decIP := decAddress(r.desIP, decSubnetID, decID)
	r.log.Infof("subnet %s: dec subnet %d dec %d online, configuring at %s", r.key, decSubnetID, decID, decIP)

	pkt := ddswire.OperationModeV2{
		Mode:               r.params.DecOperationMode,
		AllowedFloorsFront: ddswire.NewBitmap(),
		AllowedFloorsRear:  ddswire.NewBitmap(),
	}
	if _, err := r.Send(&pkt, decIP, ddsnet.ChannelDec); err != nil {
		r.log.Warnf("subnet %s: send operation mode v2 to %s: %v", r.key, decIP, err)
	}
}

// decAddress computes "A.B.<decSubnetId>.<decId>" using the first two
// octets of desIP, per §4.4.4.
func decAddress(desIP net.IP, decSubnetID uint8, decID int) net.IP {
	ip4 := desIP.To4()
	return net.IPv4(ip4[0], ip4[1], decSubnetID, byte(decID))
}

// reactCredentialData implements the credential-read reaction: consult the
// adapter, assemble an Authorized Default Floor V2, and send it to the DES.
func (r *Reactor) reactCredentialData(v ddswire.CredentialData, peer *net.UDPAddr) error {
	info, err := r.adapter.GetAccessInfo(v.CredentialBytes, v.CredentialBitLen)
	if err != nil {
		return fmt.Errorf("get access info: %w", err)
	}

	now := r.now()
	_, offsetSeconds := now.Zone()

	reply := ddswire.AuthorizedDefaultFloorV2{
		Valid:            boolToByte(info.IsValid),
		CredentialNumber: ddswire.CredentialNumberFromBytes(v.CredentialBytes),
		Mode:             r.params.DecOperationMode,
		AuthorizedFront:  ddswire.BitmapFromFloors(info.AllowedFloorsFront),
		AuthorizedRear:   ddswire.BitmapFromFloors(info.AllowedFloorsRear),
		DefaultFloor:     info.DefaultFloor,
		DefaultDoor:      info.DefaultDoorType,
		DateTime:         uint32(now.Unix()),
		LocalTimezone:    int32(offsetSeconds),
		ReaderLocation:   0,
	}

	_, err = r.Send(&reply, r.desIP, ddsnet.ChannelDes)
	return err
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// RetrySweep drives the retry path of §4.4.3. The orchestrator calls it
// (through Registry.RetrySweepAll) once per worker-loop iteration, whether
// or not the receive sockets timed out; it processes at most len(backlog)
// entries so it terminates in one pass (O2).
func (r *Reactor) RetrySweep() {
	n := r.backlog.Len()
	now := r.now()
	for i := 0; i < n; i++ {
		entry, ok := r.backlog.PopFront()
		if !ok {
			return
		}
		if now.Sub(entry.lastSendTime) <= r.params.SendRetryInterval {
			r.backlog.PushFront(entry)
			return
		}

		if err := r.sockets.SendInteractive(entry.channel, entry.peer, entry.encoded); err != nil {
			r.log.Warnf("subnet %s: retry send packet 0x%x: %v", r.key, entry.packetID, err)
		}
		entry.lastSendTime = now
		entry.retryCount++

		if entry.retryCount < r.params.SendMaxRetries {
			r.backlog.PushBack(entry)
		} else {
			r.log.Warnf("subnet %s: dropping packet 0x%x after %d retries", r.key, entry.packetID, entry.retryCount)
		}
	}
}

// BacklogLen reports the number of outstanding un-acked sends, useful for
// admin/status introspection.
func (r *Reactor) BacklogLen() int {
	return r.backlog.Len()
}
