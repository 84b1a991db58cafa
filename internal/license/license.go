// Package license is the read-mostly credential store consulted when a
// "linked" session starts (spec §3 Lifecycle, §5 Concurrency). The real
// license/credential database is an out-of-scope external collaborator
// (spec §1); this package provides the minimal in-memory contract the
// broker needs, snapshotted copy-on-read so concurrent session starts never
// block each other (spec §5: "the only cross-session synchronization point
// ... may be implemented as a copy-on-read snapshot").
package license

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Info is one linked client's credentials, exactly what spec §3/§4.E's
// handshake handlers need to synthesize upstream authentication frames.
type Info struct {
	SerialNumber  uint32
	AccessKey     string
	CharacterName string
	SubVersion    uint8
	// RemoteGuildCardNumber is the last guild card number this client was
	// assigned upstream, persisted across reconnects when known.
	RemoteGuildCardNumber uint32
}

// Store is the contract the broker depends on; a Session looks itself up by
// serial number exactly once, at session start.
type Store interface {
	Lookup(serialNumber uint32) (*Info, bool)
}

// MemoryStore is a snapshot-based, concurrency-safe Store. Loads are
// coalesced with singleflight so N sessions starting at once trigger one
// underlying refresh rather than N.
type MemoryStore struct {
	mu       sync.RWMutex
	byserial map[uint32]*Info

	group singleflight.Group
	load  func() (map[uint32]*Info, error)
}

// NewMemoryStore builds a store around a loader function (e.g. reading the
// operator's configured license file). The loader runs once at construction
// and again only via Refresh.
func NewMemoryStore(load func() (map[uint32]*Info, error)) (*MemoryStore, error) {
	s := &MemoryStore{load: load}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh reloads the snapshot, coalescing concurrent callers into one load.
func (s *MemoryStore) Refresh() error {
	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		return s.load()
	})
	if err != nil {
		return err
	}
	snapshot := v.(map[uint32]*Info)
	s.mu.Lock()
	s.byserial = snapshot
	s.mu.Unlock()
	return nil
}

// Lookup returns the (copy-on-read) snapshot's entry for serialNumber.
func (s *MemoryStore) Lookup(serialNumber uint32) (*Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.byserial[serialNumber]
	return info, ok
}
