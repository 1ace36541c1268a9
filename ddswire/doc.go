// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ddswire implements the bit-exact wire encoding used by the DDS
// protocol family spoken between elevator destination-entry stations (DES),
// destination-entry controllers (DEC), and a Security System (SS) peer.
//
// All integers are little-endian. Two independent packet families share the
// wire: heartbeat packets (sent over the multicast plane, seven bytes, no
// packet ID) and interactive packets (sent over the two unicast DEN
// channels, each beginning with a four-byte packet ID and a two-byte type
// code).
package ddswire
