// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ddswire

// bodyDecoder decodes an interactive packet's body given its header.
type bodyDecoder func(h Header, body []byte) (interface{}, error)

// supportedTypes is the compile-time table from interactive type code to
// decode function, per the "Packet polymorphism" design note: this is the
// single place new wire variants are registered.
var supportedTypes = map[uint16]bodyDecoder{
	TypeAck: func(h Header, body []byte) (interface{}, error) {
		return DecodeAckBody(h, body)
	},
	TypeDecOnlineStatus: func(h Header, body []byte) (interface{}, error) {
		return DecodeDecOnlineStatusBody(h, body)
	},
	TypeOperationModeV2: func(h Header, body []byte) (interface{}, error) {
		return DecodeOperationModeV2Body(h, body)
	},
	TypeCredentialData: func(h Header, body []byte) (interface{}, error) {
		return DecodeCredentialDataBody(h, body)
	},
	TypeAuthorizedDefaultFloorV2: func(h Header, body []byte) (interface{}, error) {
		return DecodeAuthorizedDefaultFloorV2Body(h, body)
	},
}

// IsSupportedType reports whether t has a registered decoder. An
// interactive packet whose type fails this check is not a decode error:
// per §4.1 it is acknowledged with AckUnsupported.
func IsSupportedType(t uint16) bool {
	_, ok := supportedTypes[t]
	return ok
}

// DecodeBody decodes an interactive packet's body according to its
// header's type code. For a type without a registered decoder (one that
// fails IsSupportedType) it returns an ErrBadValue CodecError rather than
// panicking.
func DecodeBody(h Header, body []byte) (interface{}, error) {
	dec, ok := supportedTypes[h.Type]
	if !ok {
		return nil, codecErrorf(ErrBadValue, "decode body: unsupported type 0x%02x", h.Type)
	}
	return dec(h, body)
}
