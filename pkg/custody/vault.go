package custody

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Vault is an in-memory Custodian keeping per-asset balance books. It backs
// tests, simulations and single-process deployments; production systems
// wrap their token layer in the Custodian interface instead.
type Vault struct {
	mu sync.RWMutex

	// asset -> holder -> balance
	books map[types.AssetID]map[common.Address]*big.Int
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		books: make(map[types.AssetID]map[common.Address]*big.Int),
	}
}

// Mint credits newly issued units to a holder. Used to fund the engine's
// custody account before distributions are created.
func (v *Vault) Mint(asset types.AssetID, to common.Address, amount *big.Int) error {
	if !asset.Valid() {
		return ErrInvalidAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.credit(asset, to, amount)
	return nil
}

// BalanceOf returns the holder's balance, zero if unknown.
func (v *Vault) BalanceOf(asset types.AssetID, holder common.Address) (*big.Int, error) {
	if !asset.Valid() {
		return nil, ErrInvalidAsset
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	book := v.books[asset]
	if book == nil || book[holder] == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(book[holder]), nil
}

// Transfer moves amount from one holder to another, failing without effect
// if the sender's balance is insufficient.
func (v *Vault) Transfer(asset types.AssetID, from, to common.Address, amount *big.Int) error {
	if !asset.Valid() {
		return ErrInvalidAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	book := v.books[asset]
	if book == nil || book[from] == nil || book[from].Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	book[from].Sub(book[from], amount)
	v.credit(asset, to, amount)
	return nil
}

// TotalSupply returns the sum of all balances of an asset. Conservation
// checks in tests rely on this staying constant across transfers.
func (v *Vault) TotalSupply(asset types.AssetID) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total := big.NewInt(0)
	for _, balance := range v.books[asset] {
		total.Add(total, balance)
	}
	return total
}

// credit assumes the lock is held.
func (v *Vault) credit(asset types.AssetID, to common.Address, amount *big.Int) {
	if v.books[asset] == nil {
		v.books[asset] = make(map[common.Address]*big.Int)
	}
	if v.books[asset][to] == nil {
		v.books[asset][to] = big.NewInt(0)
	}
	v.books[asset][to].Add(v.books[asset][to], amount)
}

var _ Custodian = (*Vault)(nil)
