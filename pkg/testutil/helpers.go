package testutil

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/stonework-labs/merkledrop-go/pkg/custody"
	"github.com/stonework-labs/merkledrop-go/pkg/merkle"
	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Admin and custody addresses shared by engine fixtures.
var (
	AdminAddress   = common.HexToAddress("0xAd111111111111111111111111111111111111Ad")
	CustodyAddress = common.HexToAddress("0xCc111111111111111111111111111111111111Cc")
)

// FakeClock is a settable Clock for window-boundary tests.
type FakeClock struct {
	mu  sync.Mutex
	now int64
}

// NewFakeClock creates a clock frozen at the given unix time.
func NewFakeClock(now int64) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an absolute time.
func (c *FakeClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by delta seconds.
func (c *FakeClock) Advance(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
}

// PermissiveVerifier accepts every proof. It exists for simulation
// harnesses only and must never be wired into a production engine.
type PermissiveVerifier struct{}

func (PermissiveVerifier) Verify(root [32]byte, leaf [32]byte, proof [][32]byte) bool {
	return true
}

var _ merkle.Verifier = PermissiveVerifier{}

// FailingCustodian wraps a real custodian and fails transfers on demand,
// for exercising the engine's rollback paths.
type FailingCustodian struct {
	Inner custody.Custodian

	mu sync.Mutex
	// failNext makes the next n transfers fail.
	failNext int
	// armedAfter fails every transfer once failAfter calls succeeded.
	failAfter  int
	callCount  int
	armedAfter bool
	// onlyFrom restricts injected failures to transfers out of one
	// account, so reversals back into it still go through.
	onlyFrom    common.Address
	hasOnlyFrom bool
}

// NewFailingCustodian wraps inner with controllable failure injection.
func NewFailingCustodian(inner custody.Custodian) *FailingCustodian {
	return &FailingCustodian{Inner: inner}
}

// FailNext makes the next n Transfer calls fail.
func (f *FailingCustodian) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// FailAfter makes every Transfer call fail once n calls have succeeded.
func (f *FailingCustodian) FailAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = n
	f.armedAfter = true
	f.callCount = 0
}

// FailOnlyFrom restricts injected failures to transfers whose source is
// addr. Typically the custody account: payouts fail, reversals succeed.
func (f *FailingCustodian) FailOnlyFrom(addr common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlyFrom = addr
	f.hasOnlyFrom = true
}

// Disarm clears all injected failures.
func (f *FailingCustodian) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = 0
	f.armedAfter = false
	f.hasOnlyFrom = false
}

func (f *FailingCustodian) BalanceOf(asset types.AssetID, holder common.Address) (*big.Int, error) {
	return f.Inner.BalanceOf(asset, holder)
}

func (f *FailingCustodian) Transfer(asset types.AssetID, from, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	if f.hasOnlyFrom && from != f.onlyFrom {
		f.mu.Unlock()
		return f.Inner.Transfer(asset, from, to, amount)
	}
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return errors.New("injected transfer failure")
	}
	if f.armedAfter {
		if f.callCount >= f.failAfter {
			f.mu.Unlock()
			return errors.New("injected transfer failure")
		}
		f.callCount++
	}
	f.mu.Unlock()
	return f.Inner.Transfer(asset, from, to, amount)
}

var _ custody.Custodian = (*FailingCustodian)(nil)

// FundedVault creates a vault with the custody account already holding
// amount units of asset.
func FundedVault(t *testing.T, asset types.AssetID, amount int64) *custody.Vault {
	t.Helper()
	vault := custody.NewVault()
	if err := vault.Mint(asset, CustodyAddress, big.NewInt(amount)); err != nil {
		t.Fatalf("failed to fund vault: %v", err)
	}
	return vault
}

// TestAllocations returns the three-recipient allocation set used across
// the scenario tests: A:100, B:200, C:300.
func TestAllocations() []types.Allocation {
	return []types.Allocation{
		{Address: common.HexToAddress("0xA0000000000000000000000000000000000000A1"), Amount: big.NewInt(100)},
		{Address: common.HexToAddress("0xB0000000000000000000000000000000000000B2"), Amount: big.NewInt(200)},
		{Address: common.HexToAddress("0xC0000000000000000000000000000000000000C3"), Amount: big.NewInt(300)},
	}
}
