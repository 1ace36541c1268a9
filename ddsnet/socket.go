// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ddsnet owns the four UDP endpoints the bridge communicates over:
// a multicast heartbeat-receive socket (also used to send heartbeats, per
// the protocol's established behavior), and the two unicast interactive
// sockets for the DES and DEC DEN channels.
package ddsnet

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// Channel identifies one of the two interactive DEN channels. Each has its
// own receive port and its own, distinct, send port.
type Channel int

// The two interactive channels.
const (
	ChannelDes Channel = iota
	ChannelDec
)

// String implements fmt.Stringer for logging.
func (c Channel) String() string {
	switch c {
	case ChannelDes:
		return "DES"
	case ChannelDec:
		return "DEC"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// recvTimeout bounds every blocking receive so the orchestrator loop makes
// forward progress across all four sockets without ever blocking for long.
const recvTimeout = time.Millisecond

// Params configures the four sockets. Field names mirror the configuration
// keys in the protocol's external-interfaces table.
type Params struct {
	LocalIP IPv4

	HeartbeatReceiveMcGroup IPv4
	HeartbeatReceivePort    uint16
	HeartbeatSendMcGroup    IPv4
	HeartbeatSendPort       uint16
	HeartbeatSendTTL        int

	InteractiveReceivePortDes uint16
	InteractiveReceivePortDec uint16
	InteractiveSendPortDes    uint16
	InteractiveSendPortDec    uint16
}

// IPv4 is a plain dotted-quad IPv4 address.
type IPv4 = net.IP

// Sockets owns the four live UDP endpoints.
type Sockets struct {
	params Params

	// HeartbeatRecvConn is joined to the heartbeat-receive multicast group
	// and is also the socket heartbeats are *sent* from: that is the
	// established behavior of this protocol (it is the socket joined to
	// the group, and therefore the one with the correct source binding to
	// send to it) and is preserved here even though it reads unusually.
	HeartbeatRecvConn *net.UDPConn

	// heartbeatSendConn is opened on an ephemeral port with outbound
	// multicast TTL configured, matching the protocol's nominal four-socket
	// design. It is intentionally unused for sends; see HeartbeatRecvConn.
	heartbeatSendConn *net.UDPConn

	InteractiveDesConn *net.UDPConn
	InteractiveDecConn *net.UDPConn
}

// Open binds and configures all four sockets. It returns a SocketFatal-class
// error (bind failure or multicast group join failure) that the
// orchestrator does not retry.
func Open(p Params) (*Sockets, error) {
	s := &Sockets{params: p}

	hbRecv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: p.LocalIP, Port: int(p.HeartbeatReceivePort)})
	if err != nil {
		return nil, fmt.Errorf("open heartbeat receive socket: %w", err)
	}
	if err := setReuseAddr(hbRecv); err != nil {
		hbRecv.Close()
		return nil, fmt.Errorf("set SO_REUSEADDR on heartbeat receive socket: %w", err)
	}
	if err := joinMulticast(hbRecv, p.HeartbeatReceiveMcGroup); err != nil {
		hbRecv.Close()
		return nil, fmt.Errorf("join heartbeat receive multicast group: %w", err)
	}
	s.HeartbeatRecvConn = hbRecv

	hbSend, err := net.ListenUDP("udp4", &net.UDPAddr{IP: p.LocalIP, Port: 0})
	if err != nil {
		hbRecv.Close()
		return nil, fmt.Errorf("open heartbeat send socket: %w", err)
	}
	if err := setMulticastTTL(hbSend, p.HeartbeatSendTTL); err != nil {
		hbRecv.Close()
		hbSend.Close()
		return nil, fmt.Errorf("set multicast TTL on heartbeat send socket: %w", err)
	}
	s.heartbeatSendConn = hbSend

	desConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: p.LocalIP, Port: int(p.InteractiveReceivePortDes)})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open interactive DES socket: %w", err)
	}
	s.InteractiveDesConn = desConn

	decConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: p.LocalIP, Port: int(p.InteractiveReceivePortDec)})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open interactive DEC socket: %w", err)
	}
	s.InteractiveDecConn = decConn

	return s, nil
}

// Close tears down every opened socket, ignoring individual close errors
// (mirroring best-effort teardown on the shutdown path).
func (s *Sockets) Close() {
	for _, c := range []*net.UDPConn{s.HeartbeatRecvConn, s.heartbeatSendConn, s.InteractiveDesConn, s.InteractiveDecConn} {
		if c != nil {
			c.Close()
		}
	}
}

// Datagram is one received UDP payload and its source address.
type Datagram struct {
	Payload []byte
	Peer    *net.UDPAddr
}

// ReceiveHeartbeat performs one non-blocking-equivalent read (bounded by
// recvTimeout) on the heartbeat socket. A timeout is reported as
// (Datagram{}, false, nil): it is SocketTransient, consumed internally.
func (s *Sockets) ReceiveHeartbeat() (Datagram, bool, error) {
	return receiveOne(s.HeartbeatRecvConn)
}

// ReceiveInteractive performs one bounded read on the given channel's
// receive socket.
func (s *Sockets) ReceiveInteractive(ch Channel) (Datagram, bool, error) {
	return receiveOne(s.connFor(ch))
}

func (s *Sockets) connFor(ch Channel) *net.UDPConn {
	switch ch {
	case ChannelDes:
		return s.InteractiveDesConn
	case ChannelDec:
		return s.InteractiveDecConn
	default:
		panic(fmt.Sprintf("ddsnet: unknown channel %v", ch))
	}
}

func receiveOne(conn *net.UDPConn) (Datagram, bool, error) {
	if err := conn.SetReadDeadline(time.Now().Add(recvTimeout)); err != nil {
		return Datagram{}, false, err
	}
	buf := make([]byte, 65535)
	n, peer, err := conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Datagram{}, false, nil
		}
		return Datagram{}, false, err
	}
	return Datagram{Payload: buf[:n], Peer: peer}, true, nil
}

// SendHeartbeat multicasts payload to the configured heartbeat-send group
// and port, over the heartbeat *receive* socket (see HeartbeatRecvConn).
func (s *Sockets) SendHeartbeat(payload []byte) error {
	dst := &net.UDPAddr{IP: s.params.HeartbeatSendMcGroup, Port: int(s.params.HeartbeatSendPort)}
	_, err := s.HeartbeatRecvConn.WriteToUDP(payload, dst)
	return err
}

// SendInteractive addresses payload to peerIP on the channel's configured
// send port and transmits it over that channel's socket.
func (s *Sockets) SendInteractive(ch Channel, peerIP net.IP, payload []byte) error {
	dst := &net.UDPAddr{IP: peerIP, Port: int(s.sendPort(ch))}
	_, err := s.connFor(ch).WriteToUDP(payload, dst)
	return err
}

func (s *Sockets) sendPort(ch Channel) uint16 {
	switch ch {
	case ChannelDes:
		return s.params.InteractiveSendPortDes
	case ChannelDec:
		return s.params.InteractiveSendPortDec
	default:
		panic(fmt.Sprintf("ddsnet: unknown channel %v", ch))
	}
}

func setReuseAddr(conn *net.UDPConn) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = sc.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}

func joinMulticast(conn *net.UDPConn, group net.IP) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	group4 := group.To4()
	if group4 == nil {
		return fmt.Errorf("multicast group %s is not IPv4", group)
	}
	mreq := &unix.IPMreq{Multiaddr: [4]byte{group4[0], group4[1], group4[2], group4[3]}}
	var setErr error
	err = sc.Control(func(fd uintptr) {
		setErr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	})
	if err != nil {
		return err
	}
	return setErr
}

func setMulticastTTL(conn *net.UDPConn, ttl int) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = sc.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
	})
	if err != nil {
		return err
	}
	return setErr
}
