package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Store defines the interface for the persisted distribution ledger.
// All implementations must be thread-safe; the engine serializes mutations
// but reads may come from any goroutine.
//
// The persisted state is exactly two structures:
// - an append-only-by-id map of Distribution records, plus the id counter
// - a two-level map (distribution id, claimant) -> claimed flag
type Store interface {
	// Distribution Records

	// NextID allocates the next distribution id. Ids are monotonically
	// increasing, start at 1 and are never reused.
	NextID() (uint64, error)

	// PutDistribution inserts or overwrites a distribution record by id.
	PutDistribution(d *types.Distribution) error

	// GetDistribution retrieves a distribution by id.
	// Returns nil if it doesn't exist, error only on storage failure.
	GetDistribution(id uint64) (*types.Distribution, error)

	// ListDistributions returns all distributions sorted by id (ascending).
	// Returns empty slice if none exist, error only on storage failure.
	ListDistributions() ([]*types.Distribution, error)

	// Claim Flags

	// SetClaimed marks (id, claimant) as claimed. Overwriting an existing
	// flag is not an error.
	SetClaimed(id uint64, claimant common.Address) error

	// ClearClaimed removes the claimed flag for (id, claimant). This exists
	// solely for the engine's transfer-failure compensation path; no other
	// caller may clear a flag. Idempotent.
	ClearClaimed(id uint64, claimant common.Address) error

	// HasClaimed reports whether (id, claimant) has already claimed.
	// Returns false if no flag exists, error only on storage failure.
	HasClaimed(id uint64, claimant common.Address) (bool, error)

	// Lifecycle Management

	// Close cleanly shuts down the store. Idempotent.
	// After Close(), all other operations return errors.
	Close() error

	// HealthCheck verifies the store is operational. Returns nil if
	// healthy; called during startup to fail fast.
	HealthCheck() error
}
