package memory

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stonework-labs/merkledrop-go/pkg/ledger"
	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// MemoryStore is an in-memory implementation of ledger.Store, intended for
// tests and local tooling. All data is lost when the process exits.
//
// Thread-safe using sync.RWMutex. Deep copies records on the way in and out
// to prevent external mutation.
type MemoryStore struct {
	mu sync.RWMutex

	// Distribution records: id -> Distribution
	distributions map[uint64]*types.Distribution

	// Claim flags: id -> claimant -> claimed
	claims map[uint64]map[common.Address]bool

	// Last allocated distribution id
	lastID uint64

	closed bool
}

// NewMemoryStore creates a new in-memory distribution ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		distributions: make(map[uint64]*types.Distribution),
		claims:        make(map[uint64]map[common.Address]bool),
	}
}

var errClosed = errors.New("ledger store is closed")

// NextID allocates the next distribution id, starting at 1.
func (m *MemoryStore) NextID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errClosed
	}

	m.lastID++
	return m.lastID, nil
}

// PutDistribution inserts or overwrites a distribution record.
func (m *MemoryStore) PutDistribution(d *types.Distribution) error {
	if d == nil {
		return errors.New("cannot store nil Distribution")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}

	m.distributions[d.ID] = d.Clone()
	return nil
}

// GetDistribution retrieves a distribution by id, nil if absent.
func (m *MemoryStore) GetDistribution(id uint64) (*types.Distribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}

	return m.distributions[id].Clone(), nil
}

// ListDistributions returns all distributions sorted by id.
func (m *MemoryStore) ListDistributions() ([]*types.Distribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}

	out := make([]*types.Distribution, 0, len(m.distributions))
	for _, d := range m.distributions {
		out = append(out, d.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// SetClaimed marks (id, claimant) as claimed.
func (m *MemoryStore) SetClaimed(id uint64, claimant common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}

	if m.claims[id] == nil {
		m.claims[id] = make(map[common.Address]bool)
	}
	m.claims[id][claimant] = true
	return nil
}

// ClearClaimed removes the claimed flag (rollback path only).
func (m *MemoryStore) ClearClaimed(id uint64, claimant common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}

	if m.claims[id] != nil {
		delete(m.claims[id], claimant)
	}
	return nil
}

// HasClaimed reports whether (id, claimant) has claimed.
func (m *MemoryStore) HasClaimed(id uint64, claimant common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, errClosed
	}

	return m.claims[id][claimant], nil
}

// Close shuts down the store. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck reports whether the store is usable.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errClosed
	}
	return nil
}

var _ ledger.Store = (*MemoryStore)(nil)
