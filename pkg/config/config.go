package config

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for distributor configuration
const (
	EnvStoreType     = "DISTRIBUTOR_STORE_TYPE"
	EnvBadgerDir     = "DISTRIBUTOR_BADGER_DIR"
	EnvRedisAddress  = "DISTRIBUTOR_REDIS_ADDRESS"
	EnvRedisPassword = "DISTRIBUTOR_REDIS_PASSWORD"
	EnvRedisDB       = "DISTRIBUTOR_REDIS_DB"
	EnvAdminAddress  = "DISTRIBUTOR_ADMIN_ADDRESS"
	EnvVerbose       = "DISTRIBUTOR_VERBOSE"
)

// StoreType selects the ledger backend.
type StoreType string

func (s StoreType) String() string {
	return string(s)
}

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// Config holds the complete configuration for the distribution engine and
// its tooling.
type Config struct {
	// Ledger backend
	StoreType StoreType `json:"store_type"`
	BadgerDir string    `json:"badger_dir"`

	// Redis connection (StoreTypeRedis only)
	RedisAddress  string `json:"redis_address"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db"`

	// AdminAddress is the single identity allowed to run administrative
	// operations against the engine.
	AdminAddress string `json:"admin_address"`

	// Operational settings
	Verbose bool `json:"verbose"`
}

// FromEnv builds a Config from the DISTRIBUTOR_* environment, applying
// defaults for anything unset. The result still needs Validate.
func FromEnv() *Config {
	cfg := &Config{
		StoreType:     StoreType(envOr(EnvStoreType, string(StoreTypeMemory))),
		BadgerDir:     envOr(EnvBadgerDir, "./distributor-data"),
		RedisAddress:  os.Getenv(EnvRedisAddress),
		RedisPassword: os.Getenv(EnvRedisPassword),
		AdminAddress:  os.Getenv(EnvAdminAddress),
	}

	if db, err := strconv.Atoi(os.Getenv(EnvRedisDB)); err == nil {
		cfg.RedisDB = db
	}
	if verbose, err := strconv.ParseBool(os.Getenv(EnvVerbose)); err == nil {
		cfg.Verbose = verbose
	}

	return cfg
}

// Validate checks the configuration, aggregating every problem found.
func (c *Config) Validate() error {
	var allErrors field.ErrorList

	switch c.StoreType {
	case StoreTypeMemory, StoreTypeBadger, StoreTypeRedis:
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("storeType"), c.StoreType,
			[]string{string(StoreTypeMemory), string(StoreTypeBadger), string(StoreTypeRedis)}))
	}

	if c.StoreType == StoreTypeBadger && c.BadgerDir == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("badgerDir"), "badgerDir is required for the badger store"))
	}

	if c.StoreType == StoreTypeRedis {
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for the redis store"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDB"), c.RedisDB, "must be between 0 and 15"))
		}
	}

	if c.AdminAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("adminAddress"), "adminAddress is required"))
	} else if !common.IsHexAddress(c.AdminAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("adminAddress"), c.AdminAddress, "must be a hex address"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Admin returns the parsed admin address. Call Validate first.
func (c *Config) Admin() common.Address {
	return common.HexToAddress(c.AdminAddress)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
