// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ddswire

import (
	"encoding/binary"
	"io"
)

// SourceKind identifies the originator of a heartbeat packet.
type SourceKind uint8

// Known heartbeat source kinds.
const (
	SourceDES SourceKind = 1
	SourceDER SourceKind = 2
	SourceSS  SourceKind = 3
)

func (k SourceKind) valid() bool {
	switch k {
	case SourceDES, SourceDER, SourceSS:
		return true
	}
	return false
}

// ICDVersion is a (major, minor) Interface Control Document version pair.
type ICDVersion struct {
	Major uint8
	Minor uint8
}

// NegotiatedICDVersion is the only ICD version this bridge supports and
// negotiates, per spec: major/minor 3.0.
var NegotiatedICDVersion = ICDVersion{Major: 3, Minor: 0}

// heartbeatType is the sole heartbeat-plane type code.
const heartbeatType uint16 = 0x01

// Interactive-plane type codes. These occupy a type space independent of
// the heartbeat plane's, so TypeAck and heartbeatType share a numeric value
// without colliding: the two planes are decoded with different functions
// and never compared against each other.
const (
	TypeAck                      uint16 = 0x01
	TypeDecOnlineStatus          uint16 = 0x17
	TypeOperationModeV2          uint16 = 0x33
	TypeAuthorizedDefaultFloorV2 uint16 = 0x34
	TypeCredentialData           uint16 = 0x40
)

// AckType is the taxonomy of outcomes an interactive Ack can carry.
type AckType uint32

// Ack outcome values, in wire order.
const (
	AckUnacceptable AckType = 0
	AckAcceptable   AckType = 1
	AckDuplicate    AckType = 2
	AckUnsupported  AckType = 3
)

// DoorType distinguishes an elevator's front and rear doors.
type DoorType uint8

// Door values.
const (
	DoorFront DoorType = 0
	DoorRear  DoorType = 1
)

// Heartbeat is the SS/DES/DER presence-announcement packet sent on the
// multicast heartbeat plane. It carries no packet ID.
type Heartbeat struct {
	Source        SourceKind
	SupportedICD  ICDVersion
	NegotiableICD ICDVersion
}

// NewSSHeartbeat builds the heartbeat this bridge announces itself with:
// source Security System, supporting and negotiating ICD 3.0.
func NewSSHeartbeat() Heartbeat {
	return Heartbeat{
		Source:        SourceSS,
		SupportedICD:  NegotiatedICDVersion,
		NegotiableICD: NegotiatedICDVersion,
	}
}

// heartbeatWireLen is the fixed byte size of a heartbeat datagram:
// u16 type; u8 source; u8 icdSupMaj; u8 icdSupMin; u8 icdNegMaj; u8 icdNegMin.
const heartbeatWireLen = 7

// Encode writes the heartbeat's wire form to w.
func (h Heartbeat) Encode(w io.Writer) error {
	var buf [heartbeatWireLen]byte
	binary.LittleEndian.PutUint16(buf[0:2], heartbeatType)
	buf[2] = byte(h.Source)
	buf[3] = h.SupportedICD.Major
	buf[4] = h.SupportedICD.Minor
	buf[5] = h.NegotiableICD.Major
	buf[6] = h.NegotiableICD.Minor
	_, err := w.Write(buf[:])
	return err
}

// DecodeHeartbeat decodes a heartbeat datagram. It returns a CodecError
// wrapping ErrShortBuffer if buf is too short, or ErrBadValue if the
// source byte is not a known SourceKind.
func DecodeHeartbeat(buf []byte) (Heartbeat, error) {
	if len(buf) < heartbeatWireLen {
		return Heartbeat{}, codecErrorf(ErrShortBuffer,
			"heartbeat: need %d bytes, got %d", heartbeatWireLen, len(buf))
	}
	source := SourceKind(buf[2])
	if !source.valid() {
		return Heartbeat{}, codecErrorf(ErrBadValue,
			"heartbeat: unknown source kind %d", buf[2])
	}
	return Heartbeat{
		Source:        source,
		SupportedICD:  ICDVersion{Major: buf[3], Minor: buf[4]},
		NegotiableICD: ICDVersion{Major: buf[5], Minor: buf[6]},
	}, nil
}

// Header is the six-byte common prefix of every interactive packet.
type Header struct {
	PacketID uint32
	Type     uint16
}

// DecodeHeader reads the packet ID and type code from the front of an
// interactive datagram.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < 6 {
		return Header{}, codecErrorf(ErrShortBuffer,
			"header: need 6 bytes, got %d", len(buf))
	}
	return Header{
		PacketID: binary.LittleEndian.Uint32(buf[0:4]),
		Type:     binary.LittleEndian.Uint16(buf[4:6]),
	}, nil
}

// encode writes h's six bytes to w.
func (h Header) encode(w io.Writer) error {
	var buf [6]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.PacketID)
	binary.LittleEndian.PutUint16(buf[4:6], h.Type)
	_, err := w.Write(buf[:])
	return err
}

// SetPacketID stamps the packet ID a reactor assigns on send. It is
// promoted to every interactive packet type through the embedded Header.
func (h *Header) SetPacketID(id uint32) {
	h.PacketID = id
}
