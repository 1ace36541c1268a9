// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import (
	"container/list"
	"net"
	"time"

	"github.com/otisdds/ddsbridge/ddsnet"
)

// backlogEntry is one un-acked send awaiting retry or final drop.
type backlogEntry struct {
	packetID     uint32
	encoded      []byte
	peer         net.IP
	channel      ddsnet.Channel
	lastSendTime time.Time
	retryCount   int
}

// backlog is the insertion-ordered, oldest-first map of un-acked sends
// described in §3. Ordering by lastSendTime is preserved under every
// operation (I3): entries re-enter at the back on retry and at the front
// when not yet due, exactly mirroring §4.4.3.
type backlog struct {
	order *list.List
	index map[uint32]*list.Element
}

func newBacklog() *backlog {
	return &backlog{
		order: list.New(),
		index: make(map[uint32]*list.Element),
	}
}

// PushBack inserts a new entry at the newest position.
func (b *backlog) PushBack(e *backlogEntry) {
	elem := b.order.PushBack(e)
	b.index[e.packetID] = elem
}

// Remove deletes the entry for packetID if present, satisfying I4: a
// packet is removed from the backlog at most once.
func (b *backlog) Remove(packetID uint32) bool {
	elem, ok := b.index[packetID]
	if !ok {
		return false
	}
	b.order.Remove(elem)
	delete(b.index, packetID)
	return true
}

// PopFront removes and returns the oldest entry.
func (b *backlog) PopFront() (*backlogEntry, bool) {
	front := b.order.Front()
	if front == nil {
		return nil, false
	}
	e := front.Value.(*backlogEntry)
	b.order.Remove(front)
	delete(b.index, e.packetID)
	return e, true
}

// PushFront reinserts an entry at the oldest position, used when a retry
// sweep finds an entry not yet due and must put it back without disturbing
// time order.
func (b *backlog) PushFront(e *backlogEntry) {
	elem := b.order.PushFront(e)
	b.index[e.packetID] = elem
}

// Len reports the number of outstanding entries.
func (b *backlog) Len() int {
	return b.order.Len()
}
