// Package dedup guarantees at-most-one in-flight remediation per
// (pipeline, job) key via time-bounded exclusive leases. The lease store is
// injected into the engine so an in-memory implementation can later be
// swapped for a distributed one without touching engine logic.
package dedup

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateInFlight means another holder has an unexpired lease on at
// least one of the requested keys. This is expected under at-least-once
// webhook delivery and is not treated as an error by callers.
var ErrDuplicateInFlight = errors.New("dedup: duplicate event already in flight")

// Key identifies one unit of remediation work.
type Key struct {
	PipelineID int64
	JobID      int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.PipelineID, k.JobID)
}

// Lease is an exclusive, time-bounded claim on a Key. The token ties a
// release to the acquisition that created it, so a stale holder cannot
// release a lease someone else has since acquired.
type Lease struct {
	Key     Key
	token   uint64
	Expires time.Time
}

// Store hands out exclusive leases.
type Store interface {
	// Acquire claims the key, failing with ErrDuplicateInFlight when an
	// unexpired lease exists. Expired leases are reclaimed.
	Acquire(key Key, ttl time.Duration) (*Lease, error)

	// Release ends a lease early. Idempotent; releasing a lease that has
	// expired or was superseded is a no-op.
	Release(lease *Lease)
}

// MemoryStore is the in-process lease store.
type MemoryStore struct {
	mu        sync.Mutex
	leases    map[Key]*leaseState
	nextToken uint64
	now       func() time.Time // overridable in tests
}

type leaseState struct {
	token   uint64
	expires time.Time
}

// NewMemoryStore creates an empty lease store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases: make(map[Key]*leaseState),
		now:    time.Now,
	}
}

// Acquire implements Store. The single mutex gives the required
// compare-and-claim atomicity: under concurrent acquisition of the same key
// exactly one caller wins.
func (s *MemoryStore) Acquire(key Key, ttl time.Duration) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.leases[key]; ok && existing.expires.After(now) {
		return nil, fmt.Errorf("%w: key %s", ErrDuplicateInFlight, key)
	}

	s.nextToken++
	expires := now.Add(ttl)
	s.leases[key] = &leaseState{token: s.nextToken, expires: expires}

	return &Lease{Key: key, token: s.nextToken, Expires: expires}, nil
}

// Release implements Store.
func (s *MemoryStore) Release(lease *Lease) {
	if lease == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.leases[lease.Key]; ok && existing.token == lease.token {
		delete(s.leases, lease.Key)
	}
}

// AcquireAll claims leases for all keys in the given order. If any key is
// already held, the leases just claimed are released and the whole batch
// fails: an event is processed only when the engine can claim every one of
// its jobs, which prevents partial double-processing. Callers pass keys in
// event-defined order, so competing events cannot deadlock.
func AcquireAll(store Store, keys []Key, ttl time.Duration) ([]*Lease, error) {
	leases := make([]*Lease, 0, len(keys))
	for _, key := range keys {
		lease, err := store.Acquire(key, ttl)
		if err != nil {
			for _, held := range leases {
				store.Release(held)
			}
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

// ReleaseAll releases every lease in the batch.
func ReleaseAll(store Store, leases []*Lease) {
	for _, lease := range leases {
		store.Release(lease)
	}
}
