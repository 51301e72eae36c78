// Package registry keeps the master's set of known slaves.
//
// The registry is the only owner of slave records. Callers never see the
// underlying map: reads return copies and writes go through the methods below,
// each of which holds the lock for a single map operation.
package registry

import (
	"sort"
	"sync"
	"time"

	"masterclock/datamodel/slave"

	log "github.com/sirupsen/logrus"
)

type Registry struct {
	mu         sync.Mutex
	nodes      map[string]*slave.Node
	staleAfter int64 // milliseconds
	now        func() int64
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// New creates an empty registry. Records silent for staleAfter are excluded from snapshots.
func New(staleAfter time.Duration) *Registry {
	return NewWithClock(staleAfter, nowMillis)
}

// NewWithClock is New with an explicit millisecond clock.
func NewWithClock(staleAfter time.Duration, now func() int64) *Registry {
	return &Registry{
		nodes:      make(map[string]*slave.Node),
		staleAfter: staleAfter.Milliseconds(),
		now:        now,
	}
}

// touch returns the record for address, creating it if needed, with LastResponseAt moved to now.
// No lock here, lock is assumed to be acquired by caller.
func (r *Registry) touch(address string, now int64) *slave.Node {
	n, ok := r.nodes[address]
	if !ok {
		n = &slave.Node{Address: address, LastResponseAt: now}
		r.nodes[address] = n
		log.WithField("slave", address).Info("Registered new slave")
		return n
	}

	if now > n.LastResponseAt {
		n.LastResponseAt = now
	}
	return n
}

// UpsertIntroduction registers address or refreshes its last response time.
func (r *Registry) UpsertIntroduction(address string) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.touch(address, now)
}

// RecordResponse registers address if needed and records a time report from it.
// The record is created and stamped under one lock hold.
func (r *Registry) RecordResponse(address string, observedTime int64) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.touch(address, now)
	n.LastReportedTime = observedTime
}

// RecordRequestSent stores the send time of the latest request_time to address.
// Unknown addresses are ignored: a request is never a sign of life.
func (r *Registry) RecordRequestSent(address string, sentAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.nodes[address]; ok {
		n.LastRequestSentAt = sentAt
	}
}

// SnapshotActive returns the non-stale slaves, sorted by address.
func (r *Registry) SnapshotActive() []slave.Entry {
	now := r.now()

	r.mu.Lock()
	entries := make([]slave.Entry, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.IsStale(now, r.staleAfter) {
			continue
		}
		entries = append(entries, slave.Entry{
			Address:           n.Address,
			LastRequestSentAt: n.LastRequestSentAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})
	return entries
}

// EvictStale removes every record with now - LastResponseAt >= threshold.
func (r *Registry) EvictStale(now int64, threshold time.Duration) {
	limit := threshold.Milliseconds()

	r.mu.Lock()
	defer r.mu.Unlock()

	for addr, n := range r.nodes {
		if n.IsStale(now, limit) {
			delete(r.nodes, addr)
			log.WithField("slave", addr).Infof("Evicted stale slave, silent for %v", time.Duration(now-n.LastResponseAt)*time.Millisecond)
		}
	}
}

// Get returns a copy of the record for address.
func (r *Registry) Get(address string) (slave.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[address]
	if !ok {
		return slave.Node{}, false
	}
	return *n, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.nodes)
}
