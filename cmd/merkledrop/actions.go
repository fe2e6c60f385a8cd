package main

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/stonework-labs/merkledrop-go/pkg/merkle"
	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// treeArtifact is the JSON shape emitted by `tree build`. Proof siblings are
// ordered leaf to root, matching what the claim verifier expects.
type treeArtifact struct {
	Root        string           `json:"root"`
	Allocations []allocationJSON `json:"allocations"`
}

type allocationJSON struct {
	Address string   `json:"address"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

func runTreeBuild(c *cli.Context) error {
	allocations, err := readAllocationCSV(c.String("input"))
	if err != nil {
		return err
	}

	tree, err := merkle.NewTree(allocations)
	if err != nil {
		return errors.Wrap(err, "failed to build tree")
	}

	artifact := treeArtifact{
		Root:        hashHex(tree.Root),
		Allocations: make([]allocationJSON, 0, len(tree.Allocations)),
	}
	for i, alloc := range tree.Allocations {
		proof, err := tree.Proof(i)
		if err != nil {
			return err
		}
		proofHex := make([]string, len(proof))
		for j, sibling := range proof {
			proofHex[j] = hashHex(sibling)
		}
		artifact.Allocations = append(artifact.Allocations, allocationJSON{
			Address: alloc.Address.Hex(),
			Amount:  alloc.Amount.String(),
			Proof:   proofHex,
		})
	}

	encoded, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode tree artifact")
	}
	encoded = append(encoded, '\n')

	if output := c.String("output"); output != "" {
		if err := os.WriteFile(output, encoded, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", output)
		}
		fmt.Printf("Wrote root %s and %d proofs to %s\n", artifact.Root, len(artifact.Allocations), output)
		return nil
	}

	fmt.Print(string(encoded))
	return nil
}

func runProofVerify(c *cli.Context) error {
	root, err := parseHash(c.String("root"))
	if err != nil {
		return errors.Wrap(err, "invalid root")
	}

	if !common.IsHexAddress(c.String("address")) {
		return fmt.Errorf("invalid address: %s", c.String("address"))
	}
	addr := common.HexToAddress(c.String("address"))

	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid amount: %s", c.String("amount"))
	}

	siblings := c.StringSlice("sibling")
	proof := make([][32]byte, len(siblings))
	for i, s := range siblings {
		proof[i], err = parseHash(s)
		if err != nil {
			return errors.Wrapf(err, "invalid sibling %d", i)
		}
	}

	if merkle.VerifyProof(root, merkle.HashLeaf(addr, amount), proof) {
		fmt.Println("Proof is valid")
		return nil
	}
	return fmt.Errorf("proof is invalid")
}

func runLedgerList(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to open ledger store")
	}
	defer func() { _ = store.Close() }()

	distributions, err := store.ListDistributions()
	if err != nil {
		return errors.Wrap(err, "failed to list distributions")
	}

	if len(distributions) == 0 {
		fmt.Println("No distributions found")
		return nil
	}

	for _, dist := range distributions {
		status := "paused"
		if dist.Active {
			status = "active"
		}
		fmt.Printf("#%d  asset=%s  root=%s  total=%s  claimed=%s  remaining=%s  window=[%d,%d]  %s\n",
			dist.ID, dist.Asset, hashHex(dist.Root),
			dist.TotalAllocated, dist.ClaimedAmount, dist.Remaining(),
			dist.StartTime, dist.EndTime, status)
	}
	return nil
}

// readAllocationCSV parses address,amount rows. A header row is tolerated and
// skipped when the first column is not a hex address.
func readAllocationCSV(path string) ([]types.Allocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	allocations := make([]types.Allocation, 0, len(records))
	for i, record := range records {
		if i == 0 && !common.IsHexAddress(record[0]) {
			continue
		}
		if !common.IsHexAddress(record[0]) {
			return nil, fmt.Errorf("row %d: invalid address %q", i+1, record[0])
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(record[1]), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("row %d: invalid amount %q", i+1, record[1])
		}
		allocations = append(allocations, types.Allocation{
			Address: common.HexToAddress(record[0]),
			Amount:  amount,
		})
	}

	if len(allocations) == 0 {
		return nil, fmt.Errorf("no allocations found in %s", path)
	}
	return allocations, nil
}

func hashHex(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, err
	}
	if len(decoded) != 32 {
		return h, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}
