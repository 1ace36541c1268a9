// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ssadapter defines the contract between the reactor's reaction
// logic and the external access-control backend that resolves a credential
// read to a set of authorized floors. The bridge impersonates a Security
// System peer; this package is that peer's view of "the access-control
// system", per §4.7.
package ssadapter

import (
	"errors"
	"fmt"

	"github.com/otisdds/ddsbridge/ddswire"
)

// AdapterError wraps a failure returned by the external access-control
// backend. The reactor maps it to ReactionFailure (Ack Unacceptable).
type AdapterError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("ssadapter: %s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is/errors.As to reach the underlying cause.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ErrInvalidCredential is returned by AccessInfo.IsValid callers (via the
// Adapter implementation) when a credential is recognized as malformed by
// the backend itself rather than simply unauthorized; implementations are
// not required to distinguish the two and may instead set
// AccessInfo.IsValid to false.
var ErrInvalidCredential = errors.New("ssadapter: invalid credential")

// AccessInfo is the backend's answer to a credential-read event.
type AccessInfo struct {
	IsValid            bool
	DefaultFloor       int8
	DefaultDoorType    ddswire.DoorType
	AllowedFloorsFront []int8
	AllowedFloorsRear  []int8
}

// Adapter is the contract the reactor's reaction logic consumes. A
// concrete Adapter is free to introduce its own synchronization if it
// wishes to be callable from more than one goroutine; the core contract,
// matching §5, does not require it, since the reactor calls it from the
// single orchestrator worker only.
type Adapter interface {
	// AllowedFloorsFront returns the site-wide whitelist of floors that do
	// not require credential authorization at the front door.
	AllowedFloorsFront() []int8

	// AllowedFloorsRear is AllowedFloorsFront for the rear door.
	AllowedFloorsRear() []int8

	// GetAccessInfo resolves a credential to an authorization decision.
	// credentialBitLength is the number of significant bits in
	// credentialBytes (which is padded to a whole number of bytes).
	GetAccessInfo(credentialBytes []byte, credentialBitLength uint8) (AccessInfo, error)
}
