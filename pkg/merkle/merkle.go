package merkle

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashLeaf computes the leaf commitment for one allocation:
// keccak256(address (20 bytes) || amount (32 bytes, big-endian)).
// Binding both fields means any change to either invalidates the proof.
func HashLeaf(addr common.Address, amount *big.Int) [32]byte {
	data := make([]byte, 0, 20+32)
	data = append(data, addr.Bytes()...)
	data = append(data, common.BigToHash(amount).Bytes()...)

	hash := crypto.Keccak256Hash(data)
	return [32]byte(hash)
}

// combine hashes a node pair in sorted order: keccak256(min || max).
// Sorting makes the combinator commutative, so proofs carry no left/right
// position bits.
func combine(a, b [32]byte) [32]byte {
	data := make([]byte, 64)
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(data[0:32], a[:])
		copy(data[32:64], b[:])
	} else {
		copy(data[0:32], b[:])
		copy(data[32:64], a[:])
	}

	hash := crypto.Keccak256Hash(data)
	return [32]byte(hash)
}

// VerifyProof folds the sibling sequence over the leaf and accepts iff the
// result equals root. An empty proof therefore verifies exactly when the
// leaf is itself the root (single-leaf tree).
func VerifyProof(root [32]byte, leaf [32]byte, proof [][32]byte) bool {
	current := leaf
	for _, sibling := range proof {
		current = combine(current, sibling)
	}
	return current == root
}

// Verifier decides whether a membership proof is acceptable for a root.
// The engine takes one at construction; production wiring always uses
// Keccak256Verifier. Alternate strategies exist for simulation harnesses
// only and never ship on a production code path.
type Verifier interface {
	Verify(root [32]byte, leaf [32]byte, proof [][32]byte) bool
}

// Keccak256Verifier is the production Verifier backed by VerifyProof.
type Keccak256Verifier struct{}

func (Keccak256Verifier) Verify(root [32]byte, leaf [32]byte, proof [][32]byte) bool {
	return VerifyProof(root, leaf, proof)
}
