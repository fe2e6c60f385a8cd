package distributor

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stonework-labs/merkledrop-go/pkg/events"
	"github.com/stonework-labs/merkledrop-go/pkg/ledger/memory"
	"github.com/stonework-labs/merkledrop-go/pkg/merkle"
	"github.com/stonework-labs/merkledrop-go/pkg/testutil"
)

func TestClaim(t *testing.T) {
	alloc := testutil.TestAllocations()
	a, b := alloc[0], alloc[1]

	f := newFixture(t)
	id := f.createDefault(t)
	f.clock.Set(1500)

	proofA, err := f.tree.ProofFor(a.Address)
	require.NoError(t, err)

	t.Run("valid claim pays out", func(t *testing.T) {
		require.NoError(t, f.engine.Claim(a.Address, id, a.Amount, proofA))

		balance, err := f.vault.BalanceOf(usdc, a.Address)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(100)))

		d, err := f.engine.GetDistribution(id)
		require.NoError(t, err)
		require.Zero(t, d.ClaimedAmount.Cmp(big.NewInt(100)))

		claimed, err := f.engine.HasClaimed(id, a.Address)
		require.NoError(t, err)
		require.True(t, claimed)

		accepted := f.sink.OfType(events.TypeClaimAccepted)
		require.Len(t, accepted, 1)
		require.Equal(t, a.Address, accepted[0].Claimant)
		require.Zero(t, accepted[0].Amount.Cmp(big.NewInt(100)))
	})

	t.Run("second claim rejected", func(t *testing.T) {
		err := f.engine.Claim(a.Address, id, a.Amount, proofA)
		require.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	t.Run("borrowed proof rejected", func(t *testing.T) {
		// B presenting A's (amount, proof) pair fails the leaf check
		err := f.engine.Claim(b.Address, id, a.Amount, proofA)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("wrong amount rejected", func(t *testing.T) {
		proofB, err := f.tree.ProofFor(b.Address)
		require.NoError(t, err)

		err = f.engine.Claim(b.Address, id, big.NewInt(201), proofB)
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("remaining recipients can still claim", func(t *testing.T) {
		proofB, err := f.tree.ProofFor(b.Address)
		require.NoError(t, err)
		require.NoError(t, f.engine.Claim(b.Address, id, b.Amount, proofB))

		d, err := f.engine.GetDistribution(id)
		require.NoError(t, err)
		require.Zero(t, d.ClaimedAmount.Cmp(big.NewInt(300)))
	})
}

func TestClaimGates(t *testing.T) {
	alloc := testutil.TestAllocations()
	a := alloc[0]

	f := newFixture(t)
	id := f.createDefault(t)

	proofA, err := f.tree.ProofFor(a.Address)
	require.NoError(t, err)

	t.Run("unknown distribution", func(t *testing.T) {
		err := f.engine.Claim(a.Address, 42, a.Amount, proofA)
		require.ErrorIs(t, err, ErrUnknownDistribution)
	})

	t.Run("paused", func(t *testing.T) {
		f.clock.Set(1500)
		require.NoError(t, f.engine.SetActive(testutil.AdminAddress, id, false))

		err := f.engine.Claim(a.Address, id, a.Amount, proofA)
		require.ErrorIs(t, err, ErrDistributionPaused)

		require.NoError(t, f.engine.SetActive(testutil.AdminAddress, id, true))
	})

	t.Run("window boundaries", func(t *testing.T) {
		f.clock.Set(999)
		require.ErrorIs(t, f.engine.Claim(a.Address, id, a.Amount, proofA), ErrNotStarted)

		f.clock.Set(2001)
		require.ErrorIs(t, f.engine.Claim(a.Address, id, a.Amount, proofA), ErrEnded)

		// Claims succeed exactly at the inclusive bounds
		f.clock.Set(1000)
		require.NoError(t, f.engine.Claim(a.Address, id, a.Amount, proofA))

		b := alloc[1]
		proofB, err := f.tree.ProofFor(b.Address)
		require.NoError(t, err)
		f.clock.Set(2000)
		require.NoError(t, f.engine.Claim(b.Address, id, b.Amount, proofB))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		c := alloc[2]
		proofC, err := f.tree.ProofFor(c.Address)
		require.NoError(t, err)

		f.clock.Set(1500)
		require.ErrorIs(t, f.engine.Claim(c.Address, id, big.NewInt(0), proofC), ErrInvalidAmount)
		require.ErrorIs(t, f.engine.Claim(c.Address, id, nil, proofC), ErrInvalidAmount)
		require.ErrorIs(t, f.engine.Claim(c.Address, id, big.NewInt(-1), proofC), ErrInvalidAmount)
	})
}

func TestClaimSupplyCap(t *testing.T) {
	// The committed total deliberately undercuts the allocation sum, so the
	// third claim must trip the on-engine supply check even though its
	// proof is valid.
	alloc := testutil.TestAllocations()

	vault := testutil.FundedVault(t, usdc, 400)
	clock := testutil.NewFakeClock(500)
	engine, err := New(memory.NewMemoryStore(), vault, testutil.AdminAddress, testutil.CustodyAddress,
		WithClock(clock))
	require.NoError(t, err)

	tree, err := merkle.NewTree(alloc)
	require.NoError(t, err)

	id, err := engine.CreateDistribution(testutil.AdminAddress, tree.Root, big.NewInt(400), usdc, 1000, 2000)
	require.NoError(t, err)

	clock.Set(1500)
	for _, entry := range alloc[:2] {
		proof, err := tree.ProofFor(entry.Address)
		require.NoError(t, err)
		require.NoError(t, engine.Claim(entry.Address, id, entry.Amount, proof))
	}

	c := alloc[2]
	proofC, err := tree.ProofFor(c.Address)
	require.NoError(t, err)
	err = engine.Claim(c.Address, id, c.Amount, proofC)
	require.ErrorIs(t, err, ErrSupplyExceeded)

	// The rejected claim left no trace
	claimed, err := engine.HasClaimed(id, c.Address)
	require.NoError(t, err)
	require.False(t, claimed)

	d, err := engine.GetDistribution(id)
	require.NoError(t, err)
	require.Zero(t, d.ClaimedAmount.Cmp(big.NewInt(300)))
}

func TestClaimTransferFailureRollsBack(t *testing.T) {
	alloc := testutil.TestAllocations()
	a := alloc[0]

	vault := testutil.FundedVault(t, usdc, 600)
	failing := testutil.NewFailingCustodian(vault)
	clock := testutil.NewFakeClock(500)
	engine, err := New(memory.NewMemoryStore(), failing, testutil.AdminAddress, testutil.CustodyAddress,
		WithClock(clock))
	require.NoError(t, err)

	tree, err := merkle.NewTree(alloc)
	require.NoError(t, err)

	id, err := engine.CreateDistribution(testutil.AdminAddress, tree.Root, big.NewInt(600), usdc, 1000, 2000)
	require.NoError(t, err)

	clock.Set(1500)
	proofA, err := tree.ProofFor(a.Address)
	require.NoError(t, err)

	failing.FailNext(1)
	err = engine.Claim(a.Address, id, a.Amount, proofA)
	require.ErrorIs(t, err, ErrTransferFailed)

	// Claim succeeded XOR nothing happened: the nullifier is clear, the
	// accounting untouched, and the claim right intact.
	claimed, err := engine.HasClaimed(id, a.Address)
	require.NoError(t, err)
	require.False(t, claimed)

	d, err := engine.GetDistribution(id)
	require.NoError(t, err)
	require.Zero(t, d.ClaimedAmount.Sign())

	balance, err := vault.BalanceOf(usdc, a.Address)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	// The same claim goes through once the custodian recovers
	require.NoError(t, engine.Claim(a.Address, id, a.Amount, proofA))
	balance, err = vault.BalanceOf(usdc, a.Address)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(100)))
}

func TestClaimBatch(t *testing.T) {
	alloc := testutil.TestAllocations()
	a := alloc[0]

	t.Run("arity mismatch", func(t *testing.T) {
		f := newFixture(t)
		err := f.engine.ClaimBatch(a.Address, []uint64{1, 2}, []*big.Int{big.NewInt(1)}, nil)
		require.ErrorIs(t, err, ErrArityMismatch)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.engine.ClaimBatch(a.Address, nil, nil, nil))
	})

	t.Run("claims across distributions", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.vault.Mint(usdc, testutil.CustodyAddress, big.NewInt(600)))

		first := f.createDefault(t)
		second := f.createDefault(t)

		f.clock.Set(1500)
		proofA, err := f.tree.ProofFor(a.Address)
		require.NoError(t, err)

		err = f.engine.ClaimBatch(a.Address,
			[]uint64{first, second},
			[]*big.Int{a.Amount, a.Amount},
			[][][32]byte{proofA, proofA})
		require.NoError(t, err)

		balance, err := f.vault.BalanceOf(usdc, a.Address)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(200)))

		for _, id := range []uint64{first, second} {
			claimed, err := f.engine.HasClaimed(id, a.Address)
			require.NoError(t, err)
			require.True(t, claimed)
		}

		require.Len(t, f.sink.OfType(events.TypeClaimAccepted), 2)
	})

	t.Run("one invalid element fails the whole batch", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.vault.Mint(usdc, testutil.CustodyAddress, big.NewInt(600)))

		first := f.createDefault(t)
		second := f.createDefault(t)

		f.clock.Set(1500)
		proofA, err := f.tree.ProofFor(a.Address)
		require.NoError(t, err)

		// Second element claims the wrong amount
		err = f.engine.ClaimBatch(a.Address,
			[]uint64{first, second},
			[]*big.Int{a.Amount, big.NewInt(101)},
			[][][32]byte{proofA, proofA})
		require.ErrorIs(t, err, ErrInvalidProof)

		// No partial application: element one was not claimed either
		claimed, err := f.engine.HasClaimed(first, a.Address)
		require.NoError(t, err)
		require.False(t, claimed)

		balance, err := f.vault.BalanceOf(usdc, a.Address)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())

		require.Empty(t, f.sink.OfType(events.TypeClaimAccepted))
	})

	t.Run("duplicate distribution in batch rejected", func(t *testing.T) {
		f := newFixture(t)
		id := f.createDefault(t)

		f.clock.Set(1500)
		proofA, err := f.tree.ProofFor(a.Address)
		require.NoError(t, err)

		err = f.engine.ClaimBatch(a.Address,
			[]uint64{id, id},
			[]*big.Int{a.Amount, a.Amount},
			[][][32]byte{proofA, proofA})
		require.ErrorIs(t, err, ErrAlreadyClaimed)

		claimed, err := f.engine.HasClaimed(id, a.Address)
		require.NoError(t, err)
		require.False(t, claimed)
	})

	t.Run("mid-batch transfer failure unwinds everything", func(t *testing.T) {
		vault := testutil.FundedVault(t, usdc, 1200)
		failing := testutil.NewFailingCustodian(vault)
		clock := testutil.NewFakeClock(500)
		sink := events.NewCaptureSink()
		engine, err := New(memory.NewMemoryStore(), failing, testutil.AdminAddress, testutil.CustodyAddress,
			WithClock(clock), WithSink(sink))
		require.NoError(t, err)

		tree, err := merkle.NewTree(testutil.TestAllocations())
		require.NoError(t, err)

		first, err := engine.CreateDistribution(testutil.AdminAddress, tree.Root, big.NewInt(600), usdc, 1000, 2000)
		require.NoError(t, err)
		second, err := engine.CreateDistribution(testutil.AdminAddress, tree.Root, big.NewInt(600), usdc, 1000, 2000)
		require.NoError(t, err)

		clock.Set(1500)
		proofA, err := tree.ProofFor(a.Address)
		require.NoError(t, err)

		// First payout succeeds, second fails; the unwind reverses the
		// first payout too. Failures hit payouts only, so the reversal
		// back into custody goes through.
		failing.FailOnlyFrom(testutil.CustodyAddress)
		failing.FailAfter(1)
		err = engine.ClaimBatch(a.Address,
			[]uint64{first, second},
			[]*big.Int{a.Amount, a.Amount},
			[][][32]byte{proofA, proofA})
		require.ErrorIs(t, err, ErrTransferFailed)
		failing.Disarm()

		balance, err := vault.BalanceOf(usdc, a.Address)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())

		custodyBalance, err := vault.BalanceOf(usdc, testutil.CustodyAddress)
		require.NoError(t, err)
		require.Zero(t, custodyBalance.Cmp(big.NewInt(1200)))

		for _, id := range []uint64{first, second} {
			claimed, err := engine.HasClaimed(id, a.Address)
			require.NoError(t, err)
			require.False(t, claimed)

			d, err := engine.GetDistribution(id)
			require.NoError(t, err)
			require.Zero(t, d.ClaimedAmount.Sign())
		}

		require.Empty(t, sink.OfType(events.TypeClaimAccepted))

		// The batch succeeds wholesale once the custodian recovers
		err = engine.ClaimBatch(a.Address,
			[]uint64{first, second},
			[]*big.Int{a.Amount, a.Amount},
			[][][32]byte{proofA, proofA})
		require.NoError(t, err)
	})

	t.Run("insufficient custody fails the batch before any payout", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.vault.Mint(usdc, testutil.CustodyAddress, big.NewInt(600)))

		first := f.createDefault(t)
		second := f.createDefault(t)

		// Drain custody below the batch total of 200. Each element alone
		// still fits the supply cap, so only the upfront balance check
		// can catch this.
		require.NoError(t, f.vault.Transfer(usdc, testutil.CustodyAddress, testutil.AdminAddress, big.NewInt(1100)))

		f.clock.Set(1500)
		proofA, err := f.tree.ProofFor(a.Address)
		require.NoError(t, err)

		err = f.engine.ClaimBatch(a.Address,
			[]uint64{first, second},
			[]*big.Int{a.Amount, a.Amount},
			[][][32]byte{proofA, proofA})
		require.ErrorIs(t, err, ErrInsufficientCustody)

		// Rejected before any commit or payout
		for _, id := range []uint64{first, second} {
			claimed, err := f.engine.HasClaimed(id, a.Address)
			require.NoError(t, err)
			require.False(t, claimed)
		}
		balance, err := f.vault.BalanceOf(usdc, a.Address)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())
		require.Empty(t, f.sink.OfType(events.TypeClaimAccepted))
	})

	t.Run("reversal failure surfaces and keeps paid elements committed", func(t *testing.T) {
		vault := testutil.FundedVault(t, usdc, 1200)
		failing := testutil.NewFailingCustodian(vault)
		clock := testutil.NewFakeClock(500)
		engine, err := New(memory.NewMemoryStore(), failing, testutil.AdminAddress, testutil.CustodyAddress,
			WithClock(clock))
		require.NoError(t, err)

		tree, err := merkle.NewTree(testutil.TestAllocations())
		require.NoError(t, err)

		first, err := engine.CreateDistribution(testutil.AdminAddress, tree.Root, big.NewInt(600), usdc, 1000, 2000)
		require.NoError(t, err)
		second, err := engine.CreateDistribution(testutil.AdminAddress, tree.Root, big.NewInt(600), usdc, 1000, 2000)
		require.NoError(t, err)

		clock.Set(1500)
		proofA, err := tree.ProofFor(a.Address)
		require.NoError(t, err)

		// The custodian fails everything after the first payout,
		// including the unwind's reversal of that payout.
		failing.FailAfter(1)
		err = engine.ClaimBatch(a.Address,
			[]uint64{first, second},
			[]*big.Int{a.Amount, a.Amount},
			[][][32]byte{proofA, proofA})
		require.ErrorIs(t, err, ErrTransferFailed)
		require.ErrorContains(t, err, "reversal incomplete")
		failing.Disarm()

		// The claimant kept the first payout, so its nullifier and
		// accounting stay committed; the unpaid second element rolled
		// back cleanly.
		balance, err := vault.BalanceOf(usdc, a.Address)
		require.NoError(t, err)
		require.Zero(t, balance.Cmp(big.NewInt(100)))

		claimed, err := engine.HasClaimed(first, a.Address)
		require.NoError(t, err)
		require.True(t, claimed)

		d, err := engine.GetDistribution(first)
		require.NoError(t, err)
		require.Zero(t, d.ClaimedAmount.Cmp(big.NewInt(100)))

		claimed, err = engine.HasClaimed(second, a.Address)
		require.NoError(t, err)
		require.False(t, claimed)

		d, err = engine.GetDistribution(second)
		require.NoError(t, err)
		require.Zero(t, d.ClaimedAmount.Sign())

		// Funds are conserved either way.
		custodyBalance, err := vault.BalanceOf(usdc, testutil.CustodyAddress)
		require.NoError(t, err)
		require.Zero(t, custodyBalance.Cmp(big.NewInt(1100)))
	})
}

func TestVerifyProofOnly(t *testing.T) {
	alloc := testutil.TestAllocations()
	a, b := alloc[0], alloc[1]

	f := newFixture(t)
	id := f.createDefault(t)

	proofA, err := f.tree.ProofFor(a.Address)
	require.NoError(t, err)

	t.Run("valid pair", func(t *testing.T) {
		ok, err := f.engine.VerifyProofOnly(id, a.Address, a.Amount, proofA)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unknown distribution is false, not an error", func(t *testing.T) {
		ok, err := f.engine.VerifyProofOnly(42, a.Address, a.Amount, proofA)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("wrong claimant", func(t *testing.T) {
		ok, err := f.engine.VerifyProofOnly(id, b.Address, a.Amount, proofA)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		ok, err := f.engine.VerifyProofOnly(id, a.Address, big.NewInt(0), proofA)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("no state was touched", func(t *testing.T) {
		claimed, err := f.engine.HasClaimed(id, a.Address)
		require.NoError(t, err)
		require.False(t, claimed)
	})
}

func TestPermissiveVerifierOption(t *testing.T) {
	// Simulation wiring: the injected verifier accepts any proof, so a
	// claimant without a real proof gets through. Never a production path.
	a := testutil.TestAllocations()[0]

	vault := testutil.FundedVault(t, usdc, 600)
	clock := testutil.NewFakeClock(500)
	engine, err := New(memory.NewMemoryStore(), vault, testutil.AdminAddress, testutil.CustodyAddress,
		WithClock(clock), WithVerifier(testutil.PermissiveVerifier{}))
	require.NoError(t, err)

	root := [32]byte{0x01}
	id, err := engine.CreateDistribution(testutil.AdminAddress, root, big.NewInt(600), usdc, 1000, 2000)
	require.NoError(t, err)

	clock.Set(1500)
	require.NoError(t, engine.Claim(a.Address, id, big.NewInt(50), nil))

	// The nullifier still binds even under permissive verification
	err = engine.Claim(a.Address, id, big.NewInt(50), nil)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimedAmountMonotonic(t *testing.T) {
	// Across an arbitrary mix of successes and failures the accumulator
	// never decreases.
	alloc := testutil.TestAllocations()

	f := newFixture(t)
	id := f.createDefault(t)
	f.clock.Set(1500)

	last := big.NewInt(0)
	check := func() {
		d, err := f.engine.GetDistribution(id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, d.ClaimedAmount.Cmp(last), 0)
		last = d.ClaimedAmount
	}

	proofA, err := f.tree.ProofFor(alloc[0].Address)
	require.NoError(t, err)

	_ = f.engine.Claim(alloc[0].Address, id, big.NewInt(999), proofA) // invalid proof
	check()
	require.NoError(t, f.engine.Claim(alloc[0].Address, id, alloc[0].Amount, proofA))
	check()
	_ = f.engine.Claim(alloc[0].Address, id, alloc[0].Amount, proofA) // double claim
	check()
	proofB, err := f.tree.ProofFor(alloc[1].Address)
	require.NoError(t, err)
	require.NoError(t, f.engine.Claim(alloc[1].Address, id, alloc[1].Amount, proofB))
	check()
}

func TestCustodyConservation(t *testing.T) {
	// engineCustody + sum(claimed) stays equal to sum(totalAllocated)
	// while claims proceed, and adjusts by the swept amount on recovery.
	alloc := testutil.TestAllocations()

	f := newFixture(t)
	id := f.createDefault(t)
	f.clock.Set(1500)

	total := big.NewInt(600)
	checkConservation := func() {
		d, err := f.engine.GetDistribution(id)
		require.NoError(t, err)
		custodyBalance, err := f.vault.BalanceOf(usdc, testutil.CustodyAddress)
		require.NoError(t, err)

		sum := new(big.Int).Add(custodyBalance, d.ClaimedAmount)
		if d.RecoveredAmount != nil {
			sum.Add(sum, d.RecoveredAmount)
		}
		require.Zero(t, sum.Cmp(total))
	}

	checkConservation()
	for _, entry := range alloc {
		proof, err := f.tree.ProofFor(entry.Address)
		require.NoError(t, err)
		require.NoError(t, f.engine.Claim(entry.Address, id, entry.Amount, proof))
		checkConservation()
	}
}
