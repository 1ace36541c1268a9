// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ddswire

import "github.com/jrick/bitset"

// BitmapSize is the byte size of every 256-bit map carried on the wire:
// the DEC online-status map and the front/rear allowed-floors maps.
const BitmapSize = 32

// Bitmap is a 256-bit, LSB-first bit list as described in §4.1: bit i of
// the list lives in byte i/8, bit i%8 of that byte, with bit 0 of the byte
// being the lowest-indexed bit. It is backed by jrick/bitset so that
// membership tests read the same way the rest of this stack's bit-packed
// flag fields do.
type Bitmap struct {
	bits bitset.Bytes
}

// NewBitmap returns a zeroed 256-bit map.
func NewBitmap() Bitmap {
	return Bitmap{bits: bitset.NewBytes(BitmapSize * 8)}
}

// BitmapFromBytes copies exactly BitmapSize bytes into a new Bitmap. It
// returns a CodecError if buf is not exactly BitmapSize bytes long.
func BitmapFromBytes(buf []byte) (Bitmap, error) {
	if len(buf) != BitmapSize {
		return Bitmap{}, codecErrorf(ErrShortBuffer,
			"bitmap: need %d bytes, got %d", BitmapSize, len(buf))
	}
	bm := NewBitmap()
	copy(bm.bits, buf)
	return bm, nil
}

// Bytes returns the map's wire representation: BitmapSize bytes, LSB-first
// within each byte.
func (b Bitmap) Bytes() []byte {
	out := make([]byte, BitmapSize)
	copy(out, b.bits)
	return out
}

// Get reports whether bit i is set. i must be in [0, 256).
func (b Bitmap) Get(i int) bool {
	return b.bits.Get(i)
}

// Set sets or clears bit i. i must be in [0, 256).
func (b *Bitmap) Set(i int, v bool) {
	if v {
		b.bits.Set(i)
	} else {
		b.bits.Unset(i)
	}
}

// Floors decodes the map as a sorted list of signed floor numbers, where
// bit i corresponds to floor number (i - FloorBias). This is the
// higher-level view used by the Security-System Adapter's allowed-floor
// lists; the wire form itself is always the raw 256-bit map.
func (b Bitmap) Floors() []int8 {
	var floors []int8
	for i := 0; i < 256; i++ {
		if b.Get(i) {
			floors = append(floors, int8(i-FloorBias))
		}
	}
	return floors
}

// FloorBias centers the 256-bit floor maps on floor 0: floor numbers from
// -FloorBias to 255-FloorBias are representable, which comfortably covers
// basements (negative floor numbers appear in the reference deployment,
// e.g. floors -3 and -2).
const FloorBias = 128

// BitmapFromFloors builds a 256-bit map from a list of signed floor
// numbers using the same bias as Floors.
func BitmapFromFloors(floors []int8) Bitmap {
	bm := NewBitmap()
	for _, f := range floors {
		bm.Set(int(f)+FloorBias, true)
	}
	return bm
}
