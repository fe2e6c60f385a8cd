package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetID identifies a fungible asset held in custody, e.g. "USDC".
// The zero value is not a valid asset.
type AssetID string

func (a AssetID) String() string {
	return string(a)
}

// Valid reports whether the asset identifier is usable in a distribution.
func (a AssetID) Valid() bool {
	return a != ""
}

// ZeroRoot is the sentinel commitment meaning "distribution does not exist".
// The real tree builder can never produce it.
var ZeroRoot = [32]byte{}

// Distribution is one committed allocation set. A single Merkle root covers
// every (recipient, amount) pair; recipients prove membership to claim.
//
// Records are append-only by ID: a distribution is created once, mutated in
// place by claims and admin actions, and never deleted.
type Distribution struct {
	ID uint64 `json:"id"`

	// Root is the 32-byte Merkle commitment over all allocations.
	// A zero root never exists in the store.
	Root [32]byte `json:"root"`

	// Asset is the custody asset being distributed. Immutable after creation.
	Asset AssetID `json:"asset"`

	// TotalAllocated is the number of asset units committed to this
	// distribution. Fixed at creation except via the guarded update path.
	TotalAllocated *big.Int `json:"total_allocated"`

	// ClaimedAmount is the running sum of successfully claimed units.
	// Monotonically non-decreasing; never exceeds TotalAllocated.
	ClaimedAmount *big.Int `json:"claimed_amount"`

	// Active is the admin-controlled gate, independent of the time window.
	Active bool `json:"active"`

	// StartTime and EndTime bound the claim window (unix seconds, inclusive).
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`

	// Recovered is set once unclaimed funds have been swept back to the
	// admin after the window closed. Terminal: no second sweep.
	Recovered bool `json:"recovered"`

	// RecoveredAmount is the quantity swept by the recovery, zero otherwise.
	RecoveredAmount *big.Int `json:"recovered_amount,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	out := *d
	out.TotalAllocated = copyBig(d.TotalAllocated)
	out.ClaimedAmount = copyBig(d.ClaimedAmount)
	if d.RecoveredAmount != nil {
		out.RecoveredAmount = copyBig(d.RecoveredAmount)
	}
	return &out
}

// Remaining returns TotalAllocated - ClaimedAmount - RecoveredAmount,
// floored at zero.
func (d *Distribution) Remaining() *big.Int {
	remaining := new(big.Int).Sub(d.TotalAllocated, d.ClaimedAmount)
	if d.RecoveredAmount != nil {
		remaining.Sub(remaining, d.RecoveredAmount)
	}
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// InWindow reports whether now falls inside the inclusive claim window.
func (d *Distribution) InWindow(now int64) bool {
	return now >= d.StartTime && now <= d.EndTime
}

// Claimable reports whether claims are accepted at the given time:
// active, inside the window, and carrying a real commitment.
func (d *Distribution) Claimable(now int64) bool {
	return d.Active && d.InWindow(now) && d.Root != ZeroRoot
}

// Allocation is one (recipient, amount) pair in an allocation set. The off
// chain tree builder hashes these into leaves; the engine only ever sees the
// resulting root and per-recipient proofs.
type Allocation struct {
	Address common.Address `json:"address"`
	Amount  *big.Int       `json:"amount"`
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
