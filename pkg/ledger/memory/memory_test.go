package memory

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

func testDistribution(id uint64) *types.Distribution {
	return &types.Distribution{
		ID:             id,
		Root:           [32]byte{byte(id)},
		Asset:          "USDC",
		TotalAllocated: big.NewInt(1000),
		ClaimedAmount:  big.NewInt(0),
		Active:         true,
		StartTime:      100,
		EndTime:        200,
	}
}

func TestNextIDMonotonic(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	for want := uint64(1); want <= 5; want++ {
		id, err := store.NextID()
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
}

func TestPutGetDistribution(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	d := testDistribution(1)
	require.NoError(t, store.PutDistribution(d))

	got, err := store.GetDistribution(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, d.Root, got.Root)
	require.Zero(t, d.TotalAllocated.Cmp(got.TotalAllocated))

	// Missing id is nil, not an error
	got, err = store.GetDistribution(42)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPutDistributionDeepCopies(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	d := testDistribution(1)
	require.NoError(t, store.PutDistribution(d))

	// Mutating the caller's record must not affect the stored one
	d.ClaimedAmount.SetInt64(999)
	d.Active = false

	got, err := store.GetDistribution(1)
	require.NoError(t, err)
	require.Zero(t, got.ClaimedAmount.Sign())
	require.True(t, got.Active)

	// Mutating a returned record must not affect the store either
	got.ClaimedAmount.SetInt64(500)
	again, err := store.GetDistribution(1)
	require.NoError(t, err)
	require.Zero(t, again.ClaimedAmount.Sign())
}

func TestListDistributionsSorted(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	for _, id := range []uint64{3, 1, 2} {
		require.NoError(t, store.PutDistribution(testDistribution(id)))
	}

	list, err := store.ListDistributions()
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, d := range list {
		require.Equal(t, uint64(i+1), d.ID)
	}
}

func TestClaimFlags(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	alice := common.BigToAddress(big.NewInt(1))
	bob := common.BigToAddress(big.NewInt(2))

	claimed, err := store.HasClaimed(1, alice)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, store.SetClaimed(1, alice))

	claimed, err = store.HasClaimed(1, alice)
	require.NoError(t, err)
	require.True(t, claimed)

	// Other claimant and other distribution are unaffected
	claimed, err = store.HasClaimed(1, bob)
	require.NoError(t, err)
	require.False(t, claimed)

	claimed, err = store.HasClaimed(2, alice)
	require.NoError(t, err)
	require.False(t, claimed)

	// Rollback path
	require.NoError(t, store.ClearClaimed(1, alice))
	claimed, err = store.HasClaimed(1, alice)
	require.NoError(t, err)
	require.False(t, claimed)

	// ClearClaimed is idempotent
	require.NoError(t, store.ClearClaimed(1, alice))
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.HealthCheck())
	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	require.Error(t, store.HealthCheck())
	_, err := store.NextID()
	require.Error(t, err)
	require.Error(t, store.PutDistribution(testDistribution(1)))
	_, err = store.GetDistribution(1)
	require.Error(t, err)
	_, err = store.ListDistributions()
	require.Error(t, err)
	require.Error(t, store.SetClaimed(1, common.Address{}))
	_, err = store.HasClaimed(1, common.Address{})
	require.Error(t, err)
}
