// Package custody provides the fungible-asset transfer primitive consumed
// by the distribution engine. The engine never moves funds itself; it asks
// a Custodian, and a failed transfer aborts the enclosing claim.
package custody

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

var (
	ErrInvalidAsset      = errors.New("custody: invalid asset")
	ErrInvalidAmount     = errors.New("custody: amount must be positive")
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
)

// Custodian moves asset units between holders and answers balance queries.
// Transfers are synchronous: they either complete or return an error within
// the call, never suspend.
//
// Transfers are directional (explicit from/to) so the engine can compensate
// a partially applied batch by moving funds back into custody.
type Custodian interface {
	// BalanceOf returns the balance held by holder. Missing holders have a
	// zero balance, not an error.
	BalanceOf(asset types.AssetID, holder common.Address) (*big.Int, error)

	// Transfer moves amount of asset from one holder to another.
	// Fails without any effect if from holds less than amount.
	Transfer(asset types.AssetID, from, to common.Address, amount *big.Int) error
}
