package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stonework-labs/merkledrop-go/pkg/ledger"
	"github.com/stonework-labs/merkledrop-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixDistribution = "drop:dist:"
	keyPrefixClaim        = "drop:claim:"
	keyLastID             = "drop:metadata:last_id"
	keySchemaVersion      = "drop:metadata:schema_version"
	currentSchemaVersion  = "v1"

	// Index set for listing (Redis doesn't support prefix iteration natively)
	keySetDistributions = "drop:distributions:index"
)

// RedisStore is a Redis-backed implementation of ledger.Store, suitable for
// deployments where the ledger must be shared or survive host loss.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// Config holds the configuration for connecting to Redis
type Config struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys, for multi-tenant
	// setups. If empty, keys use the default "drop:" namespace.
	KeyPrefix string
}

// NewRedisStore creates a new Redis-backed ledger and pings the server.
func NewRedisStore(cfg *Config, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis ledger initialized", "address", cfg.Address, "db", cfg.DB)

	return rs, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisStore) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

func (r *RedisStore) distributionKey(id uint64) string {
	return r.prefixKey(fmt.Sprintf("%s%d", keyPrefixDistribution, id))
}

func (r *RedisStore) claimKey(id uint64, claimant common.Address) string {
	return r.prefixKey(fmt.Sprintf("%s%d:%s", keyPrefixClaim, id, claimant.Hex()))
}

// NextID allocates the next distribution id using an atomic counter.
func (r *RedisStore) NextID() (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()
	next, err := r.client.Incr(ctx, r.prefixKey(keyLastID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate distribution id: %w", err)
	}

	return uint64(next), nil
}

// PutDistribution inserts or overwrites a distribution record.
func (r *RedisStore) PutDistribution(d *types.Distribution) error {
	if d == nil {
		return fmt.Errorf("cannot store nil Distribution")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()

	data, err := ledger.MarshalDistribution(d)
	if err != nil {
		return fmt.Errorf("failed to marshal Distribution: %w", err)
	}

	// Store value and index membership in one pipeline
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.distributionKey(d.ID), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetDistributions), d.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Distribution: %w", err)
	}

	return nil
}

// GetDistribution retrieves a distribution by id, nil if absent.
func (r *RedisStore) GetDistribution(id uint64) (*types.Distribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()

	data, err := r.client.Get(ctx, r.distributionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Distribution: %w", err)
	}

	return ledger.UnmarshalDistribution(data)
}

// ListDistributions returns all distributions sorted by id.
func (r *RedisStore) ListDistributions() ([]*types.Distribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keySetDistributions)

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list distribution ids: %w", err)
	}

	if len(ids) == 0 {
		return []*types.Distribution{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.prefixKey(fmt.Sprintf("%s%s", keyPrefixDistribution, id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Distributions: %w", err)
	}

	var distributions []*types.Distribution
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for Distribution", "key", keys[i])
			continue
		}

		d, err := ledger.UnmarshalDistribution([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Distribution, skipping",
				"key", keys[i], "error", err)
			continue
		}

		distributions = append(distributions, d)
	}

	sort.Slice(distributions, func(i, j int) bool {
		return distributions[i].ID < distributions[j].ID
	})

	return distributions, nil
}

// SetClaimed marks (id, claimant) as claimed.
func (r *RedisStore) SetClaimed(id uint64, claimant common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()
	return r.client.Set(ctx, r.claimKey(id, claimant), "1", 0).Err()
}

// ClearClaimed removes the claimed flag (rollback path only). Idempotent.
func (r *RedisStore) ClearClaimed(id uint64, claimant common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()
	return r.client.Del(ctx, r.claimKey(id, claimant)).Err()
}

// HasClaimed reports whether (id, claimant) has claimed.
func (r *RedisStore) HasClaimed(id uint64, claimant common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("ledger store is closed")
	}

	ctx := context.Background()
	n, err := r.client.Exists(ctx, r.claimKey(id, claimant)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read claim flag: %w", err)
	}

	return n > 0, nil
}

// Close closes the Redis connection. Idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Infow("Redis ledger closed")
	return nil
}

// HealthCheck pings the Redis server.
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("ledger store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

var _ ledger.Store = (*RedisStore)(nil)
