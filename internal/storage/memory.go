package storage

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// MemoryStore keeps the latest snapshot of each device in memory. Nothing is
// persisted; every process start begins empty.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*atomic.Pointer[models.Snapshot]
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[string]*atomic.Pointer[models.Snapshot]),
	}
}

// Register makes a device known before its first snapshot is published.
func (s *MemoryStore) Register(deviceID string) {
	s.slot(deviceID)
}

func (s *MemoryStore) slot(deviceID string) *atomic.Pointer[models.Snapshot] {
	s.mu.RLock()
	p, ok := s.slots[deviceID]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.slots[deviceID]; !ok {
		p = &atomic.Pointer[models.Snapshot]{}
		s.slots[deviceID] = p
	}
	return p
}

// Publish swaps in a new snapshot for snapshot.DeviceID.
func (s *MemoryStore) Publish(snapshot *models.Snapshot) {
	if snapshot == nil {
		return
	}
	s.slot(snapshot.DeviceID).Store(snapshot)
}

// Latest returns the last published snapshot or nil.
func (s *MemoryStore) Latest(deviceID string) *models.Snapshot {
	s.mu.RLock()
	p, ok := s.slots[deviceID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return p.Load()
}

// Get is Latest with ErrNotFound for devices without a snapshot.
func (s *MemoryStore) Get(deviceID string) (*models.Snapshot, error) {
	snap := s.Latest(deviceID)
	if snap == nil {
		return nil, ErrNotFound
	}
	return snap, nil
}

// DeviceIDs returns all registered device ids, sorted.
func (s *MemoryStore) DeviceIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
