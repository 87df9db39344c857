// Package cache keeps product copies, login sessions and idempotency keys in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/Troha7/E-store/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	productKeyFormat     = "product:%d"
	sessionKeyFormat     = "session:%s"
	idempotentKeyFormat  = "idempotent-key:%s:%s"
	defaultProductTTL    = time.Minute
	defaultIdempotentTTL = 24 * time.Hour
)

type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	return &ProductCache{rdb: rdb, ttl: ttl}
}

// Get returns (nil, nil) on a miss.
func (c *ProductCache) Get(ctx context.Context, id int64) (*entity.Product, error) {
	// Read from cache
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(productKeyFormat, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product entity.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		logger.Error().Err(err).Msgf("Error unmarshalling product %d", id)
		return nil, err
	}
	return &product, nil
}

func (c *ProductCache) Set(ctx context.Context, product *entity.Product) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(productKeyFormat, product.ID), raw, c.ttl).Err()
}

func (c *ProductCache) Delete(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf(productKeyFormat, id)).Err()
}

// SessionStore keeps the JWT of a logged-in user under the user's email.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func (s *SessionStore) Set(ctx context.Context, email, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, fmt.Sprintf(sessionKeyFormat, email), token, ttl).Err()
}

// Get returns "" when there is no session.
func (s *SessionStore) Get(ctx context.Context, email string) (string, error) {
	token, err := s.rdb.Get(ctx, fmt.Sprintf(sessionKeyFormat, email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// IdempotencyGuard remembers request keys so a retried request is not applied twice.
type IdempotencyGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyGuard(rdb *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = defaultIdempotentTTL
	}
	return &IdempotencyGuard{rdb: rdb, ttl: ttl}
}

// Claim records key under scope and reports whether this is its first use. An empty key is
// always accepted.
func (g *IdempotencyGuard) Claim(ctx context.Context, scope, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	ok, err := g.rdb.SetNX(ctx, fmt.Sprintf(idempotentKeyFormat, scope, key), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		logger.Error().Err(err).Msgf("Error claiming idempotent key %s", key)
		return false, err
	}
	if !ok {
		logger.Warn().Msgf("Idempotent key %s was already used for %s", key, scope)
	}
	return ok, nil
}

// Release forgets a claimed key so the request can be retried after a failure.
func (g *IdempotencyGuard) Release(ctx context.Context, scope, key string) error {
	if key == "" {
		return nil
	}
	return g.rdb.Del(ctx, fmt.Sprintf(idempotentKeyFormat, scope, key)).Err()
}
