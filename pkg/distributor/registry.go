package distributor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stonework-labs/merkledrop-go/pkg/events"
	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// CreateDistribution registers a new distribution and returns its id.
// The engine must already custody at least totalAllocated units of the
// asset; the balance is checked, not pulled.
func (e *Engine) CreateDistribution(caller common.Address, root [32]byte, totalAllocated *big.Int, asset types.AssetID, startTime, endTime int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return 0, err
	}
	if root == types.ZeroRoot {
		return 0, ErrInvalidCommitment
	}
	if totalAllocated == nil || totalAllocated.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if !asset.Valid() {
		return 0, ErrInvalidAsset
	}
	now := e.clock.Now()
	if endTime <= startTime || startTime < now {
		return 0, ErrInvalidTimeWindow
	}

	balance, err := e.custodian.BalanceOf(asset, e.custodyAccount)
	if err != nil {
		return 0, errors.Wrap(err, "custody balance query failed")
	}
	if balance.Cmp(totalAllocated) < 0 {
		return 0, ErrInsufficientCustody
	}

	id, err := e.store.NextID()
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate distribution id")
	}

	d := &types.Distribution{
		ID:             id,
		Root:           root,
		Asset:          asset,
		TotalAllocated: new(big.Int).Set(totalAllocated),
		ClaimedAmount:  big.NewInt(0),
		Active:         true,
		StartTime:      startTime,
		EndTime:        endTime,
	}

	if err := e.store.PutDistribution(d); err != nil {
		return 0, errors.Wrap(err, "failed to store distribution")
	}

	event := events.New(events.TypeDistributionCreated, now)
	event.DistributionID = id
	event.Root = common.Hash(root)
	event.Asset = asset
	event.Amount = new(big.Int).Set(totalAllocated)
	event.StartTime = startTime
	event.EndTime = endTime
	e.sink.Emit(event)

	e.logger.Sugar().Infow("distribution created",
		"id", id,
		"asset", asset.String(),
		"total_allocated", totalAllocated.String(),
		"start_time", startTime,
		"end_time", endTime,
	)

	return id, nil
}

// UpdateDistribution replaces the commitment root and, optionally, the
// total allocation of an existing distribution. It is a correction path
// for freshly published sets only: once 1% or more of the supply has been
// claimed the old root is load-bearing for recipients and the update is
// refused.
//
// A newTotalAllocated of nil or zero leaves the allocation unchanged.
func (e *Engine) UpdateDistribution(caller common.Address, id uint64, newRoot [32]byte, newTotalAllocated *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if newRoot == types.ZeroRoot {
		return ErrInvalidCommitment
	}

	d, err := e.store.GetDistribution(id)
	if err != nil {
		return errors.Wrap(err, "failed to load distribution")
	}
	if d == nil {
		return ErrUnknownDistribution
	}

	// Recovery is terminal: the remainder went back to the admin, so no
	// root or allocation change can be honored afterwards.
	if d.Recovered {
		return ErrDistributionRecovered
	}

	if d.ClaimedAmount.Sign() > 0 {
		// claimed * 100 < total  <=>  claimed < total / 100
		scaled := new(big.Int).Mul(d.ClaimedAmount, big.NewInt(100))
		if scaled.Cmp(d.TotalAllocated) >= 0 {
			return ErrTooManyClaims
		}
	}

	d.Root = newRoot
	if newTotalAllocated != nil && newTotalAllocated.Sign() > 0 {
		if newTotalAllocated.Cmp(d.ClaimedAmount) < 0 {
			return ErrInvalidAmount
		}
		d.TotalAllocated = new(big.Int).Set(newTotalAllocated)
	}

	if err := e.store.PutDistribution(d); err != nil {
		return errors.Wrap(err, "failed to store distribution")
	}

	event := events.New(events.TypeDistributionUpdated, e.clock.Now())
	event.DistributionID = id
	event.Root = common.Hash(newRoot)
	event.Asset = d.Asset
	event.Amount = new(big.Int).Set(d.TotalAllocated)
	e.sink.Emit(event)

	e.logger.Sugar().Infow("distribution updated", "id", id)

	return nil
}

// SetActive toggles the admin gate, independent of the time window.
// Used as an emergency pause and to resume afterwards.
func (e *Engine) SetActive(caller common.Address, id uint64, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	d, err := e.store.GetDistribution(id)
	if err != nil {
		return errors.Wrap(err, "failed to load distribution")
	}
	if d == nil {
		return ErrUnknownDistribution
	}

	d.Active = active
	if err := e.store.PutDistribution(d); err != nil {
		return errors.Wrap(err, "failed to store distribution")
	}

	event := events.New(events.TypeDistributionActiveSet, e.clock.Now())
	event.DistributionID = id
	event.Active = active
	e.sink.Emit(event)

	e.logger.Sugar().Infow("distribution active flag set", "id", id, "active", active)

	return nil
}

// RecoverUnclaimed sweeps whatever was never claimed back to the admin
// after the window closed, deactivating the distribution. Terminal: a
// second call fails with ErrNothingToRecover.
func (e *Engine) RecoverUnclaimed(caller common.Address, id uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}

	d, err := e.store.GetDistribution(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load distribution")
	}
	if d == nil {
		return nil, ErrUnknownDistribution
	}

	now := e.clock.Now()
	if now <= d.EndTime {
		return nil, ErrWindowNotEnded
	}

	remaining := d.Remaining()
	if d.Recovered || remaining.Sign() == 0 {
		return nil, ErrNothingToRecover
	}

	// Commit the terminal state before moving funds, mirroring the claim
	// path's ordering, and compensate if the sweep fails.
	d.Active = false
	d.Recovered = true
	d.RecoveredAmount = new(big.Int).Set(remaining)
	if err := e.store.PutDistribution(d); err != nil {
		return nil, errors.Wrap(err, "failed to store distribution")
	}

	if err := e.custodian.Transfer(d.Asset, e.custodyAccount, e.admin, remaining); err != nil {
		d.Active = true
		d.Recovered = false
		d.RecoveredAmount = nil
		if putErr := e.store.PutDistribution(d); putErr != nil {
			e.logger.Sugar().Errorw("failed to roll back recovery state", "id", id, "error", putErr)
		}
		return nil, errors.Wrapf(ErrTransferFailed, "recovery sweep: %v", err)
	}

	event := events.New(events.TypeDistributionRecovered, now)
	event.DistributionID = id
	event.Asset = d.Asset
	event.Amount = new(big.Int).Set(remaining)
	e.sink.Emit(event)

	e.logger.Sugar().Infow("unclaimed funds recovered",
		"id", id, "amount", remaining.String())

	return remaining, nil
}

// GetDistribution returns the distribution record for id.
func (e *Engine) GetDistribution(id uint64) (*types.Distribution, error) {
	d, err := e.store.GetDistribution(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load distribution")
	}
	if d == nil {
		return nil, ErrUnknownDistribution
	}
	return d, nil
}

// ListDistributions returns every distribution, ascending by id.
func (e *Engine) ListDistributions() ([]*types.Distribution, error) {
	return e.store.ListDistributions()
}

// RemainingUnclaimed returns totalAllocated - claimedAmount (minus any
// recovered sweep) for a distribution.
func (e *Engine) RemainingUnclaimed(id uint64) (*big.Int, error) {
	d, err := e.GetDistribution(id)
	if err != nil {
		return nil, err
	}
	return d.Remaining(), nil
}

// IsClaimable reports whether claims are currently accepted for id.
// Unknown distributions are simply not claimable.
func (e *Engine) IsClaimable(id uint64) (bool, error) {
	d, err := e.store.GetDistribution(id)
	if err != nil {
		return false, errors.Wrap(err, "failed to load distribution")
	}
	if d == nil {
		return false, nil
	}
	return d.Claimable(e.clock.Now()), nil
}

// HasClaimed reports whether claimant already claimed from distribution id.
func (e *Engine) HasClaimed(id uint64, claimant common.Address) (bool, error) {
	return e.store.HasClaimed(id, claimant)
}
