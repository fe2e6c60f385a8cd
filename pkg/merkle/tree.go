package merkle

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Tree is a binary Merkle tree over an allocation set. It lives off-engine:
// the distribution engine only ever consumes the root and per-recipient
// proofs, but tooling and tests need the full structure to generate them.
type Tree struct {
	// Allocations in leaf order (sorted by address).
	Allocations []types.Allocation
	// Leaves holds the hashed allocations in the same order.
	Leaves [][32]byte
	// Root is the commitment over all leaves.
	Root [32]byte

	levels [][][32]byte
}

// NewTree builds a tree from allocations. Entries are sorted by address
// first so the same allocation set always yields the same root regardless
// of input order. With an odd number of nodes at any level the last node is
// paired with itself.
func NewTree(allocations []types.Allocation) (*Tree, error) {
	if len(allocations) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty allocation list")
	}

	sorted := sortAllocations(allocations)

	leaves := make([][32]byte, len(sorted))
	for i, alloc := range sorted {
		if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("allocation for %s has non-positive amount", alloc.Address.Hex())
		}
		leaves[i] = HashLeaf(alloc.Address, alloc.Amount)
	}

	levels := make([][][32]byte, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			left := currentLevel[i]
			right := left
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}
			nextLevel = append(nextLevel, combine(left, right))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &Tree{
		Allocations: sorted,
		Leaves:      leaves,
		Root:        currentLevel[0],
		levels:      levels,
	}, nil
}

// Proof returns the sibling hashes for the leaf at the given index, ordered
// leaf to root. Because the combinator is commutative the proof carries no
// position information.
func (t *Tree) Proof(leafIndex int) ([][32]byte, error) {
	if leafIndex < 0 || leafIndex >= len(t.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(t.Leaves))
	}

	proof := make([][32]byte, 0, len(t.levels)-1)
	index := leafIndex

	for level := 0; level < len(t.levels)-1; level++ {
		currentLevel := t.levels[level]

		siblingIndex := index + 1
		if index%2 == 1 {
			siblingIndex = index - 1
		}
		// Odd node count: the last node was paired with itself.
		if siblingIndex >= len(currentLevel) {
			siblingIndex = index
		}

		proof = append(proof, currentLevel[siblingIndex])
		index = index / 2
	}

	return proof, nil
}

// ProofFor returns the proof for the allocation belonging to addr.
func (t *Tree) ProofFor(addr common.Address) ([][32]byte, error) {
	for i, alloc := range t.Allocations {
		if alloc.Address == addr {
			return t.Proof(i)
		}
	}
	return nil, fmt.Errorf("no allocation for address %s", addr.Hex())
}

// sortAllocations copies and sorts allocations by address ascending so tree
// construction is deterministic for every builder of the same set.
func sortAllocations(allocations []types.Allocation) []types.Allocation {
	sorted := make([]types.Allocation, len(allocations))
	copy(sorted, allocations)

	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Address.Bytes(), sorted[j].Address.Bytes()) < 0
	})

	return sorted
}
