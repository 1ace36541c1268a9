// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package statestore mirrors reactor liveness and online-DEC state to an
// on-disk leveldb database, write-behind only. It exists purely for
// post-mortem operational visibility (a support tool can inspect the last
// known state of every subnet after a crash); the reactor hot path never
// reads it back, matching spec.md's "no persistence of peer state" core
// non-goal -- this is diagnostic, not functional, state.
package statestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/otisdds/ddsbridge/reactor"
)

// Store wraps a leveldb database keyed by subnet key string ("10.0.5").
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) the leveldb database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open statestore at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// snapshot is the JSON-serialized record written per subnet.
type snapshot struct {
	SubnetKey         string    `json:"subnetKey"`
	DesIP             string    `json:"desIp"`
	IsDesOnline       bool      `json:"isDesOnline"`
	LastHeartbeatTime time.Time `json:"lastHeartbeatTime"`
	SequenceNumber    uint32    `json:"sequenceNumber"`
	BacklogLen        int       `json:"backlogLen"`
	RecordedAt        time.Time `json:"recordedAt"`
}

// Mirror writes the given reactor snapshots to the database. Callers
// typically invoke this on a slow ticker (e.g. once per liveness sweep
// period), not on every worker-loop iteration: the database is a
// diagnostic snapshot, not a write-ahead log.
//
// reactors must come from bridge.Bridge.Snapshot (or reactor.Registry.Snapshot
// called from the worker goroutine that owns it) -- never by reading a
// *reactor.Registry or *reactor.Reactor directly from this package's own
// goroutine, per §5's single-owner rule.
func (s *Store) Mirror(reactors []reactor.Snapshot, now time.Time) error {
	batch := new(leveldb.Batch)
	for _, r := range reactors {
		snap := snapshot{
			SubnetKey:         r.SubnetKey.String(),
			DesIP:             r.DesIP.String(),
			IsDesOnline:       r.IsDesOnline,
			LastHeartbeatTime: r.LastHeartbeatTime,
			SequenceNumber:    r.SequenceNumber,
			BacklogLen:        r.BacklogLen,
			RecordedAt:        now,
		}
		val, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot for %s: %w", snap.SubnetKey, err)
		}
		batch.Put([]byte(snap.SubnetKey), val)
	}
	return s.db.Write(batch, nil)
}

// Snapshot reads back the last-written record for key, for use by an
// operator tool after a crash. It is never called from the reactor hot
// path.
func (s *Store) Snapshot(key string) (subnetKey string, desIP string, isOnline bool, lastHeartbeat time.Time, seq uint32, backlogLen int, recordedAt time.Time, err error) {
	val, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return "", "", false, time.Time{}, 0, 0, time.Time{}, fmt.Errorf("get snapshot for %s: %w", key, err)
	}
	var snap snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return "", "", false, time.Time{}, 0, 0, time.Time{}, fmt.Errorf("unmarshal snapshot for %s: %w", key, err)
	}
	return snap.SubnetKey, snap.DesIP, snap.IsDesOnline, snap.LastHeartbeatTime, snap.SequenceNumber, snap.BacklogLen, snap.RecordedAt, nil
}
