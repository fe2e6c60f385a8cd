package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/stonework-labs/merkledrop-go/pkg/config"
	"github.com/stonework-labs/merkledrop-go/pkg/ledger"
	badgerstore "github.com/stonework-labs/merkledrop-go/pkg/ledger/badger"
	memorystore "github.com/stonework-labs/merkledrop-go/pkg/ledger/memory"
	redisstore "github.com/stonework-labs/merkledrop-go/pkg/ledger/redis"
)

func main() {
	app := &cli.App{
		Name:  "merkledrop",
		Usage: "Merkle distribution tooling",
		Description: `Off-engine tooling for Merkle-committed token distributions.

This tool covers the off-chain side of a distribution:
- Building the commitment tree and per-recipient proofs from a CSV
- Verifying a single proof against a published root
- Inspecting the distribution ledger`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "tree",
				Usage: "Commitment tree operations",
				Subcommands: []*cli.Command{
					{
						Name:  "build",
						Usage: "Build a tree and proofs from a CSV of address,amount rows",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "input",
								Aliases:  []string{"i"},
								Usage:    "CSV file with one address,amount row per allocation",
								Required: true,
							},
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output JSON file (defaults to stdout)",
							},
						},
						Action: runTreeBuild,
					},
				},
			},
			{
				Name:  "proof",
				Usage: "Proof operations",
				Subcommands: []*cli.Command{
					{
						Name:  "verify",
						Usage: "Verify one membership proof against a root",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "root",
								Usage:    "Commitment root (0x-prefixed hex)",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "address",
								Usage:    "Claimant address",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "amount",
								Usage:    "Allocated amount (decimal)",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:  "sibling",
								Usage: "Proof sibling hash, repeatable, leaf to root",
							},
						},
						Action: runProofVerify,
					},
				},
			},
			{
				Name:  "ledger",
				Usage: "Ledger inspection",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List all distributions in the configured ledger store",
						Flags:  storeFlags(),
						Action: runLedgerList,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Ledger backend: memory, badger or redis",
			EnvVars: []string{config.EnvStoreType},
		},
		&cli.StringFlag{
			Name:    "badger-dir",
			Usage:   "Badger data directory",
			EnvVars: []string{config.EnvBadgerDir},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis server address (host:port)",
			EnvVars: []string{config.EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number (0-15)",
			EnvVars: []string{config.EnvRedisDB},
		},
		&cli.StringFlag{
			Name:    "admin-address",
			Usage:   "Engine admin address",
			EnvVars: []string{config.EnvAdminAddress},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvVerbose},
		},
	}
}

// buildConfig starts from the environment and lets flags override it.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.FromEnv()

	if c.IsSet("store") {
		cfg.StoreType = config.StoreType(c.String("store"))
	}
	if c.IsSet("badger-dir") {
		cfg.BadgerDir = c.String("badger-dir")
	}
	if c.IsSet("redis-address") {
		cfg.RedisAddress = c.String("redis-address")
	}
	if c.IsSet("redis-password") {
		cfg.RedisPassword = c.String("redis-password")
	}
	if c.IsSet("redis-db") {
		cfg.RedisDB = c.Int("redis-db")
	}
	if c.IsSet("admin-address") {
		cfg.AdminAddress = c.String("admin-address")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore builds the configured ledger backend.
func openStore(cfg *config.Config, logger *zap.Logger) (ledger.Store, error) {
	switch cfg.StoreType {
	case config.StoreTypeMemory:
		return memorystore.NewMemoryStore(), nil
	case config.StoreTypeBadger:
		return badgerstore.NewBadgerStore(cfg.BadgerDir, logger)
	case config.StoreTypeRedis:
		return redisstore.NewRedisStore(&redisstore.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}
