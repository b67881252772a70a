// Package dht implements the versioned key/value layer on top of the
// Chord ring: local storage with a capacity cap, last-writer-wins conflict
// resolution, and replication across a node's R-1 successors.
package dht

import (
	"sync"
	"time"

	"chordmr/internal/errs"
	"chordmr/internal/ring"
)

// ReplicaRole describes why a node holds a given key's entry: spec
// section 3 distinguishes the single Primary (the key's successor on the
// ring) from its Secondary replicas.
type ReplicaRole int

const (
	RolePrimary ReplicaRole = iota
	RoleSecondary
)

func (r ReplicaRole) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "secondary"
}

// Entry is one versioned DHT value. Version increments on every
// successful write to the same key; ties are broken by WriterID (the
// id of the node that performed the write), per the version-counter +
// NodeId tiebreak conflict resolution chosen for the DHT layer's Open
// Question.
type Entry struct {
	Key       ring.ID // hashed identifier: determines ring ownership
	RawKey    []byte  // the caller's original key bytes, e.g. "job/<id>/chunk/3"
	Value     []byte
	Version   uint64
	WriterID  ring.ID
	UpdatedAt time.Time

	// Role records whether this node holds the entry as the ring owner
	// (RolePrimary) or as one of the owner's R-1 successors
	// (RoleSecondary). Node.resweep uses it to drop secondaries that have
	// fallen outside the replica set after a topology change, and to tell
	// primary entries (which it re-pushes outward) from secondary ones
	// (which it only keeps or drops).
	Role ReplicaRole
}

// Supersedes reports whether candidate should replace the entry currently
// on file, implementing last-writer-wins with a NodeId tiebreak.
func (e Entry) Supersedes(candidate Entry) bool {
	if candidate.Version != e.Version {
		return candidate.Version > e.Version
	}
	return candidate.WriterID.Cmp(e.WriterID) > 0
}

// Store is a node's local, capacity-bounded share of the DHT keyspace. It
// has no notion of ring position or replication; Node wires that in.
// Locking mirrors the teacher's WebCache: a single RWMutex guarding a map,
// short critical sections, metrics updated under the same lock.
type Store struct {
	maxEntries int

	mu      sync.RWMutex
	entries map[string]Entry

	puts, gets, deletes, rejects int64
}

// NewStore builds a Store. maxEntries <= 0 means unbounded, matching the
// spec's note that CapacityExceeded only applies when a node is
// configured with a finite local capacity.
func NewStore(maxEntries int) *Store {
	return &Store{
		maxEntries: maxEntries,
		entries:    make(map[string]Entry),
	}
}

// Put inserts or overwrites an entry, applying last-writer-wins. Returns
// errs.ErrVersionConflict if candidate loses to what's on file, or
// errs.ErrCapacityExceeded if this would be a new key beyond capacity.
func (s *Store) Put(candidate Entry) error {
	key := string(candidate.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if ok {
		if !existing.Supersedes(candidate) {
			return errs.ErrVersionConflict
		}
		s.entries[key] = candidate
		s.puts++
		return nil
	}

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.rejects++
		return errs.ErrCapacityExceeded
	}
	s.entries[key] = candidate
	s.puts++
	return nil
}

// Get returns the entry for key, or errs.ErrKeyNotFound.
func (s *Store) Get(key ring.ID) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[string(key)]
	if !ok {
		return Entry{}, errs.ErrKeyNotFound
	}
	s.gets++
	return e, nil
}

// Delete removes key if present. Idempotent: deleting a missing key is
// not an error, matching spec section 5's finalize/cleanup semantics.
func (s *Store) Delete(key ring.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, string(key))
	s.deletes++
	return nil
}

// Keys returns the RawKey of every entry whose raw key has the given byte
// prefix, used by the coordinator's scatter-gather reduce planning
// (keys(prefix) in spec section 4.5). Matching is on RawKey, not the
// hashed Key: the hash determines ring ownership but destroys the
// "job/<id>/inter/" style prefixes callers actually search on.
func (s *Store) Keys(prefix []byte) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, 0)
	for _, e := range s.entries {
		if hasPrefix(e.RawKey, prefix) {
			out = append(out, e.RawKey)
		}
	}
	return out
}

func hasPrefix(b, prefix []byte) bool {
	if len(prefix) > len(b) {
		return false
	}
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}

// SetRole updates the replica role recorded against an already-stored
// entry in place, bypassing the version-conflict check Put applies:
// resweep uses this to record that an entry's standing (primary vs.
// secondary) changed without that counting as a competing write.
func (s *Store) SetRole(key ring.ID, role ReplicaRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[string(key)]; ok {
		e.Role = role
		s.entries[string(key)] = e
	}
}

// All returns every entry currently stored locally, used when
// re-replicating onto a new successor after a topology change.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StoreMetrics reports store-level counters (Store.Metrics).
type StoreMetrics struct {
	Entries  int
	Puts     int64
	Gets     int64
	Deletes  int64
	Rejects  int64
	Capacity int
}

func (s *Store) Metrics() StoreMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreMetrics{
		Entries:  len(s.entries),
		Puts:     s.puts,
		Gets:     s.gets,
		Deletes:  s.deletes,
		Rejects:  s.rejects,
		Capacity: s.maxEntries,
	}
}
