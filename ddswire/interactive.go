// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ddswire

import (
	"encoding/binary"
	"io"
)

// Ack is the interactive-plane acknowledgement packet. Its PacketID
// echoes the packet being acknowledged rather than consuming a new
// sequence number.
type Ack struct {
	Header
	AckType AckType
}

// ackBodyLen is the length of an Ack's body: u32 ackType.
const ackBodyLen = 4

// Encode writes the Ack's wire form (header + body) to w.
func (p *Ack) Encode(w io.Writer) error {
	p.Header.Type = TypeAck
	if err := p.Header.encode(w); err != nil {
		return err
	}
	var buf [ackBodyLen]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(p.AckType))
	_, err := w.Write(buf[:])
	return err
}

// DecodeAckBody decodes an Ack's body given its already-decoded header.
func DecodeAckBody(h Header, body []byte) (Ack, error) {
	if len(body) < ackBodyLen {
		return Ack{}, codecErrorf(ErrShortBuffer,
			"ack: need %d body bytes, got %d", ackBodyLen, len(body))
	}
	return Ack{Header: h, AckType: AckType(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// DecOnlineStatus reports, for a single DES subnet, which DECs (0-255) are
// currently online via a 256-bit map.
type DecOnlineStatus struct {
	Header
	DecSubnetID uint8
	OnlineMap   Bitmap
}

// decOnlineStatusBodyLen is the length of the body: u8 decSubnetId + 32
// bytes of bitmap.
const decOnlineStatusBodyLen = 1 + BitmapSize

// Encode writes the packet's wire form to w.
func (p *DecOnlineStatus) Encode(w io.Writer) error {
	p.Header.Type = TypeDecOnlineStatus
	if err := p.Header.encode(w); err != nil {
		return err
	}
	buf := make([]byte, decOnlineStatusBodyLen)
	buf[0] = p.DecSubnetID
	copy(buf[1:], p.OnlineMap.Bytes())
	_, err := w.Write(buf)
	return err
}

// DecodeDecOnlineStatusBody decodes the body of a DEC Online Status packet.
func DecodeDecOnlineStatusBody(h Header, body []byte) (DecOnlineStatus, error) {
	if len(body) < decOnlineStatusBodyLen {
		return DecOnlineStatus{}, codecErrorf(ErrShortBuffer,
			"dec online status: need %d body bytes, got %d", decOnlineStatusBodyLen, len(body))
	}
	bm, err := BitmapFromBytes(body[1:decOnlineStatusBodyLen])
	if err != nil {
		return DecOnlineStatus{}, err
	}
	return DecOnlineStatus{Header: h, DecSubnetID: body[0], OnlineMap: bm}, nil
}

// OperationModeV2 configures a DEC's security operation mode and its
// credential-free allowed-floor maps.
type OperationModeV2 struct {
	Header
	FeaturesMap        uint8
	Mode               uint8
	AllowedFloorsFront Bitmap
	AllowedFloorsRear  Bitmap
	Reserved           uint8
}

// operationModeV2BodyLen is the length of the body: featuresMap(1) +
// mode(1) + front(32) + rear(32) + reserved(1).
const operationModeV2BodyLen = 1 + 1 + BitmapSize + BitmapSize + 1

// Encode writes the packet's wire form to w.
func (p *OperationModeV2) Encode(w io.Writer) error {
	p.Header.Type = TypeOperationModeV2
	if err := p.Header.encode(w); err != nil {
		return err
	}
	buf := make([]byte, operationModeV2BodyLen)
	buf[0] = p.FeaturesMap
	buf[1] = p.Mode
	copy(buf[2:2+BitmapSize], p.AllowedFloorsFront.Bytes())
	copy(buf[2+BitmapSize:2+2*BitmapSize], p.AllowedFloorsRear.Bytes())
	buf[operationModeV2BodyLen-1] = p.Reserved
	_, err := w.Write(buf)
	return err
}

// DecodeOperationModeV2Body decodes the body of an Operation Mode V2 packet.
func DecodeOperationModeV2Body(h Header, body []byte) (OperationModeV2, error) {
	if len(body) < operationModeV2BodyLen {
		return OperationModeV2{}, codecErrorf(ErrShortBuffer,
			"operation mode v2: need %d body bytes, got %d", operationModeV2BodyLen, len(body))
	}
	front, err := BitmapFromBytes(body[2 : 2+BitmapSize])
	if err != nil {
		return OperationModeV2{}, err
	}
	rear, err := BitmapFromBytes(body[2+BitmapSize : 2+2*BitmapSize])
	if err != nil {
		return OperationModeV2{}, err
	}
	return OperationModeV2{
		Header:             h,
		FeaturesMap:        body[0],
		Mode:                body[1],
		AllowedFloorsFront: front,
		AllowedFloorsRear:  rear,
		Reserved:           body[operationModeV2BodyLen-1],
	}, nil
}

// MaxCredentialBytes is the largest credential payload this codec accepts:
// enough whole bytes for the largest 8-bit credentialBitLength (255 bits
// rounds up to 32 bytes).
const MaxCredentialBytes = 32

// CredentialData carries a raw credential read event from a DEC.
type CredentialData struct {
	Header
	DecSubnetID        uint8
	DecID              uint8
	CredentialBitLen   uint8
	CredentialBytes    []byte
}

// credentialDataHeaderLen is the body length before the variable-length
// credential payload: decSubnetId(1) + decId(1) + credentialBitLength(1).
const credentialDataHeaderLen = 3

// Encode writes the packet's wire form to w.
func (p *CredentialData) Encode(w io.Writer) error {
	p.Header.Type = TypeCredentialData
	if err := p.Header.encode(w); err != nil {
		return err
	}
	buf := make([]byte, credentialDataHeaderLen+len(p.CredentialBytes))
	buf[0] = p.DecSubnetID
	buf[1] = p.DecID
	buf[2] = p.CredentialBitLen
	copy(buf[credentialDataHeaderLen:], p.CredentialBytes)
	_, err := w.Write(buf)
	return err
}

// DecodeCredentialDataBody decodes the body of a Credential Data packet.
// The credential payload length is derived from credentialBitLength,
// rounded up to the nearest byte, per §3.
func DecodeCredentialDataBody(h Header, body []byte) (CredentialData, error) {
	if len(body) < credentialDataHeaderLen {
		return CredentialData{}, codecErrorf(ErrShortBuffer,
			"credential data: need %d header bytes, got %d", credentialDataHeaderLen, len(body))
	}
	bitLen := body[2]
	n := (int(bitLen) + 7) / 8
	if n > MaxCredentialBytes {
		return CredentialData{}, codecErrorf(ErrBadValue,
			"credential data: credentialBitLength %d needs %d bytes, max %d", bitLen, n, MaxCredentialBytes)
	}
	if len(body) < credentialDataHeaderLen+n {
		return CredentialData{}, codecErrorf(ErrShortBuffer,
			"credential data: need %d credential bytes, got %d", n, len(body)-credentialDataHeaderLen)
	}
	credBytes := make([]byte, n)
	copy(credBytes, body[credentialDataHeaderLen:credentialDataHeaderLen+n])
	return CredentialData{
		Header:           h,
		DecSubnetID:      body[0],
		DecID:            body[1],
		CredentialBitLen: bitLen,
		CredentialBytes:  credBytes,
	}, nil
}

// AuthorizedDefaultFloorV2 answers a credential-read event with the
// floors and default destination the Security-System Adapter authorized.
type AuthorizedDefaultFloorV2 struct {
	Header
	Valid              uint8
	CredentialNumber   [16]byte
	Mode               uint8
	Features           uint8
	Reserved1          uint8
	AuthorizedFront    Bitmap
	AuthorizedRear     Bitmap
	DefaultFloor       int8
	DefaultDoor        DoorType
	DateTime           uint32
	LocalTimezone      int32
	ReaderLocation     uint32
	Reserved2          [3]byte
}

// authorizedDefaultFloorV2BodyLen is the fixed body length: valid(1) +
// credentialNumber(16) + mode(1) + features(1) + reserved1(1) +
// authorizedFront(32) + authorizedRear(32) + defaultFloor(1) +
// defaultDoor(1) + dateTime(4) + localTimezone(4) + readerLocation(4) +
// reserved2(3).
const authorizedDefaultFloorV2BodyLen = 1 + 16 + 1 + 1 + 1 + BitmapSize + BitmapSize + 1 + 1 + 4 + 4 + 4 + 3

// Encode writes the packet's wire form to w.
func (p *AuthorizedDefaultFloorV2) Encode(w io.Writer) error {
	p.Header.Type = TypeAuthorizedDefaultFloorV2
	if err := p.Header.encode(w); err != nil {
		return err
	}
	buf := make([]byte, authorizedDefaultFloorV2BodyLen)
	off := 0
	buf[off] = p.Valid
	off++
	copy(buf[off:off+16], p.CredentialNumber[:])
	off += 16
	buf[off] = p.Mode
	off++
	buf[off] = p.Features
	off++
	buf[off] = p.Reserved1
	off++
	copy(buf[off:off+BitmapSize], p.AuthorizedFront.Bytes())
	off += BitmapSize
	copy(buf[off:off+BitmapSize], p.AuthorizedRear.Bytes())
	off += BitmapSize
	buf[off] = byte(p.DefaultFloor)
	off++
	buf[off] = byte(p.DefaultDoor)
	off++
	binary.LittleEndian.PutUint32(buf[off:off+4], p.DateTime)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(p.LocalTimezone))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], p.ReaderLocation)
	off += 4
	copy(buf[off:off+3], p.Reserved2[:])
	_, err := w.Write(buf)
	return err
}

// DecodeAuthorizedDefaultFloorV2Body decodes the body of an Authorized
// Default Floor V2 packet.
func DecodeAuthorizedDefaultFloorV2Body(h Header, body []byte) (AuthorizedDefaultFloorV2, error) {
	if len(body) < authorizedDefaultFloorV2BodyLen {
		return AuthorizedDefaultFloorV2{}, codecErrorf(ErrShortBuffer,
			"authorized default floor v2: need %d body bytes, got %d",
			authorizedDefaultFloorV2BodyLen, len(body))
	}
	var p AuthorizedDefaultFloorV2
	p.Header = h
	off := 0
	p.Valid = body[off]
	off++
	copy(p.CredentialNumber[:], body[off:off+16])
	off += 16
	p.Mode = body[off]
	off++
	p.Features = body[off]
	off++
	p.Reserved1 = body[off]
	off++
	front, err := BitmapFromBytes(body[off : off+BitmapSize])
	if err != nil {
		return AuthorizedDefaultFloorV2{}, err
	}
	p.AuthorizedFront = front
	off += BitmapSize
	rear, err := BitmapFromBytes(body[off : off+BitmapSize])
	if err != nil {
		return AuthorizedDefaultFloorV2{}, err
	}
	p.AuthorizedRear = rear
	off += BitmapSize
	p.DefaultFloor = int8(body[off])
	off++
	p.DefaultDoor = DoorType(body[off])
	off++
	p.DateTime = binary.LittleEndian.Uint32(body[off : off+4])
	off += 4
	p.LocalTimezone = int32(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	p.ReaderLocation = binary.LittleEndian.Uint32(body[off : off+4])
	off += 4
	copy(p.Reserved2[:], body[off:off+3])
	return p, nil
}

// CredentialNumberFromBytes builds the 16-byte, zero-padded credential
// number field from raw credential bytes, truncating to the first 16
// bytes if the credential is longer, per §4.4.4.
func CredentialNumberFromBytes(credentialBytes []byte) [16]byte {
	var out [16]byte
	n := copy(out[:], credentialBytes)
	_ = n
	return out
}
