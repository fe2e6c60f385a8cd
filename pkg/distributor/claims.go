package distributor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stonework-labs/merkledrop-go/pkg/events"
	"github.com/stonework-labs/merkledrop-go/pkg/merkle"
	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Claim verifies a membership proof and pays out the claimant's allocation
// exactly once. The operation is atomic: either the nullifier is set, the
// claimed amount recorded and the funds transferred, or nothing happened.
//
// The nullifier commits before the transfer executes (checks, effects, then
// interactions), and a failed transfer rolls the commit back so a claim
// can never be burned without the funds moving.
func (e *Engine) Claim(claimant common.Address, id uint64, amount *big.Int, proof [][32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.validateClaim(claimant, id, amount, proof, e.clock.Now())
	if err != nil {
		return err
	}

	if err := e.commitClaim(d, claimant, amount); err != nil {
		return err
	}

	if err := e.custodian.Transfer(d.Asset, e.custodyAccount, claimant, amount); err != nil {
		e.rollbackClaim(d, claimant, amount)
		return errors.Wrapf(ErrTransferFailed, "claim payout: %v", err)
	}

	e.emitClaim(d, claimant, amount)
	return nil
}

// ClaimBatch applies the single-claim logic to each element with
// all-or-nothing semantics: every element is validated before any state
// changes, the custody account must cover the whole batch per asset
// before the first payout executes, and a payout failure unwinds the
// ledger and reverses the transfers already executed in this batch.
func (e *Engine) ClaimBatch(claimant common.Address, ids []uint64, amounts []*big.Int, proofs [][][32]byte) error {
	if len(ids) != len(amounts) || len(ids) != len(proofs) {
		return ErrArityMismatch
	}
	if len(ids) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	// Phase 1: validate everything before touching anything. seen catches
	// the same distribution claimed twice in one batch; with duplicates
	// rejected, validateClaim's own supply check covers each element.
	ds := make([]*types.Distribution, len(ids))
	batchTotals := make(map[types.AssetID]*big.Int)
	seen := make(map[uint64]bool)
	for i, id := range ids {
		if seen[id] {
			return ErrAlreadyClaimed
		}
		seen[id] = true

		d, err := e.validateClaim(claimant, id, amounts[i], proofs[i], now)
		if err != nil {
			return err
		}
		ds[i] = d

		total := batchTotals[d.Asset]
		if total == nil {
			total = big.NewInt(0)
		}
		batchTotals[d.Asset] = new(big.Int).Add(total, amounts[i])
	}

	// The custody account must cover the whole batch per asset before
	// the first payout executes.
	for asset, total := range batchTotals {
		balance, err := e.custodian.BalanceOf(asset, e.custodyAccount)
		if err != nil {
			return errors.Wrap(err, "custody balance query failed")
		}
		if balance.Cmp(total) < 0 {
			return ErrInsufficientCustody
		}
	}

	// Phase 2: commit nullifiers and accounting for every element, then
	// execute the payouts.
	committed := 0
	for i := range ids {
		if err := e.commitClaim(ds[i], claimant, amounts[i]); err != nil {
			if unwindErr := e.unwindBatch(claimant, ds, amounts, committed, 0); unwindErr != nil {
				return errors.Wrapf(err, "batch reversal incomplete: %v", unwindErr)
			}
			return err
		}
		committed++
	}

	transferred := 0
	for i := range ids {
		if err := e.custodian.Transfer(ds[i].Asset, e.custodyAccount, claimant, amounts[i]); err != nil {
			if unwindErr := e.unwindBatch(claimant, ds, amounts, committed, transferred); unwindErr != nil {
				return errors.Wrapf(ErrTransferFailed, "claim payout: %v; batch reversal incomplete: %v", err, unwindErr)
			}
			return errors.Wrapf(ErrTransferFailed, "claim payout: %v", err)
		}
		transferred++
	}

	for i := range ids {
		e.emitClaim(ds[i], claimant, amounts[i])
	}
	return nil
}

// VerifyProofOnly runs the leaf/proof check without touching state. Used
// for client-side pre-validation. Unknown distributions yield false, not
// an error.
func (e *Engine) VerifyProofOnly(id uint64, claimant common.Address, amount *big.Int, proof [][32]byte) (bool, error) {
	d, err := e.store.GetDistribution(id)
	if err != nil {
		return false, errors.Wrap(err, "failed to load distribution")
	}
	if d == nil || d.Root == types.ZeroRoot {
		return false, nil
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, nil
	}

	leaf := merkle.HashLeaf(claimant, amount)
	return e.verifier.Verify(d.Root, leaf, proof), nil
}

// validateClaim runs the ordered gate sequence for one claim element and
// returns the distribution it applies to. Callers hold the engine mutex.
func (e *Engine) validateClaim(claimant common.Address, id uint64, amount *big.Int, proof [][32]byte, now int64) (*types.Distribution, error) {
	d, err := e.store.GetDistribution(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load distribution")
	}
	if d == nil || d.Root == types.ZeroRoot {
		return nil, ErrUnknownDistribution
	}
	if !d.Active {
		return nil, ErrDistributionPaused
	}
	if now < d.StartTime {
		return nil, ErrNotStarted
	}
	if now > d.EndTime {
		return nil, ErrEnded
	}

	claimed, err := e.store.HasClaimed(id, claimant)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read claim flag")
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	leaf := merkle.HashLeaf(claimant, amount)
	if !e.verifier.Verify(d.Root, leaf, proof) {
		return nil, ErrInvalidProof
	}

	// Defensive: the tree is built off-engine and trusted only via the
	// root, so the supply cap is enforced here regardless.
	newClaimed := new(big.Int).Add(d.ClaimedAmount, amount)
	if newClaimed.Cmp(d.TotalAllocated) > 0 {
		return nil, ErrSupplyExceeded
	}

	return d, nil
}

// commitClaim sets the nullifier and records the claimed amount. This is
// the irrevocable effect; it happens before the payout executes.
func (e *Engine) commitClaim(d *types.Distribution, claimant common.Address, amount *big.Int) error {
	if err := e.store.SetClaimed(d.ID, claimant); err != nil {
		return errors.Wrap(err, "failed to set claim flag")
	}

	d.ClaimedAmount = new(big.Int).Add(d.ClaimedAmount, amount)
	if err := e.store.PutDistribution(d); err != nil {
		// Leave no half-commit behind.
		if clearErr := e.store.ClearClaimed(d.ID, claimant); clearErr != nil {
			e.logger.Sugar().Errorw("failed to clear claim flag after store failure",
				"id", d.ID, "claimant", claimant.Hex(), "error", clearErr)
		}
		d.ClaimedAmount = new(big.Int).Sub(d.ClaimedAmount, amount)
		return errors.Wrap(err, "failed to store distribution")
	}

	return nil
}

// rollbackClaim undoes commitClaim after a failed payout so the claim
// right survives.
func (e *Engine) rollbackClaim(d *types.Distribution, claimant common.Address, amount *big.Int) {
	d.ClaimedAmount = new(big.Int).Sub(d.ClaimedAmount, amount)
	if err := e.store.PutDistribution(d); err != nil {
		e.logger.Sugar().Errorw("failed to roll back claimed amount",
			"id", d.ID, "error", err)
	}
	if err := e.store.ClearClaimed(d.ID, claimant); err != nil {
		e.logger.Sugar().Errorw("failed to clear claim flag on rollback",
			"id", d.ID, "claimant", claimant.Hex(), "error", err)
	}
}

// unwindBatch reverses a partially applied batch: fund reversal for the
// first transferred elements, then ledger rollback for the committed
// ones. An element whose reversal fails keeps its commit: the claimant
// holds those funds, so clearing the nullifier would hand out a second
// claim. The first reversal failure is returned so the caller surfaces
// the partially applied batch instead of papering over it.
func (e *Engine) unwindBatch(claimant common.Address, ds []*types.Distribution, amounts []*big.Int, committed, transferred int) error {
	var firstErr error
	reversed := make([]bool, committed)
	for i := transferred - 1; i >= 0; i-- {
		if err := e.custodian.Transfer(ds[i].Asset, claimant, e.custodyAccount, amounts[i]); err != nil {
			e.logger.Sugar().Errorw("failed to reverse batch payout",
				"id", ds[i].ID, "claimant", claimant.Hex(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reversed[i] = true
	}
	for i := committed - 1; i >= 0; i-- {
		if i < transferred && !reversed[i] {
			continue
		}
		e.rollbackClaim(ds[i], claimant, amounts[i])
	}
	return firstErr
}

func (e *Engine) emitClaim(d *types.Distribution, claimant common.Address, amount *big.Int) {
	now := e.clock.Now()

	event := events.New(events.TypeClaimAccepted, now)
	event.DistributionID = d.ID
	event.Asset = d.Asset
	event.Amount = new(big.Int).Set(amount)
	event.Claimant = claimant
	e.sink.Emit(event)

	e.logger.Sugar().Infow("claim accepted",
		"id", d.ID,
		"claimant", claimant.Hex(),
		"amount", amount.String(),
	)
}
