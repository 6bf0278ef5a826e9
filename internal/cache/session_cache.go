// Package cache implements the Redis-backed session cache. One keyspace holds
// three namespaces:
//
//	<token>          – blacklist entry, value "blacklisted"
//	<email>          – JSON projection of a user record (read-through)
//	attempts:<ip>    – failed-login counter
//	block:<ip>       – login block flag
//
// Every process sharing the Redis instance sees the same revocations and
// throttling state; the relational store has no notion of either.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session-service/internal/model"
)

// ErrUnavailable wraps every Redis failure other than a missing key.
var ErrUnavailable = errors.New("session cache unavailable")

const (
	blacklistValue = "blacklisted"
	blockValue     = "blocked"
	attemptsPrefix = "attempts:"
	blockPrefix    = "block:"
)

// Config tunes TTLs and throttling. Prefix is prepended to every key and is
// empty by default.
type Config struct {
	Prefix      string
	UserTTL     time.Duration
	MaxAttempts int
	BlockWindow time.Duration
}

// SessionCache is safe for concurrent use; all state lives in Redis.
type SessionCache struct {
	rdb redis.UniversalClient
	cfg Config
}

// New returns a SessionCache using rdb. Zero config values fall back to
// 300s user TTL, 3 attempts and a 300s block window.
func New(rdb redis.UniversalClient, cfg Config) *SessionCache {
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = 300 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BlockWindow <= 0 {
		cfg.BlockWindow = 300 * time.Second
	}
	return &SessionCache{rdb: rdb, cfg: cfg}
}

func (c *SessionCache) key(parts ...string) string {
	k := c.cfg.Prefix
	for _, p := range parts {
		k += p
	}
	return k
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// ----- blacklist -----

// Blacklist stores token with the given TTL unless it is already present.
// It reports whether this call created the entry; existing entries keep
// their original TTL.
func (c *SessionCache) Blacklist(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	added, err := c.rdb.SetNX(ctx, c.key(token), blacklistValue, ttl).Result()
	if err != nil {
		return false, unavailable("blacklist", err)
	}
	return added, nil
}

// IsBlacklisted reports whether token has a blacklist entry.
func (c *SessionCache) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(token)).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

// ----- user cache -----

// cachedUser is the minimal projection kept in Redis. Balance and activity
// timestamps are left out because they change on every login.
type cachedUser struct {
	ID           uint64  `json:"id"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"password"`
	Role         string  `json:"role"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	IsBlocked    bool    `json:"block_status"`
	IsDeleted    bool    `json:"is_deleted"`
}

// SetUser caches u under its email for the configured user TTL.
func (c *SessionCache) SetUser(ctx context.Context, u *model.User) error {
	payload, err := json.Marshal(cachedUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsBlocked:    u.IsBlocked,
		IsDeleted:    u.IsDeleted,
	})
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key(u.Email), payload, c.cfg.UserTTL).Err(); err != nil {
		return unavailable("set user", err)
	}
	return nil
}

// GetUser returns the cached projection for email. A missing or undecodable
// entry is reported as a miss (nil, false, nil).
func (c *SessionCache) GetUser(ctx context.Context, email string) (*model.User, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable("get user", err)
	}
	var cu cachedUser
	if err := json.Unmarshal(raw, &cu); err != nil || cu.Email == "" {
		return nil, false, nil
	}
	return &model.User{
		ID:           cu.ID,
		Email:        cu.Email,
		PasswordHash: cu.PasswordHash,
		Role:         cu.Role,
		FirstName:    cu.FirstName,
		LastName:     cu.LastName,
		IsBlocked:    cu.IsBlocked,
		IsDeleted:    cu.IsDeleted,
	}, true, nil
}

// InvalidateUser drops the cached record so the next lookup reads the store.
func (c *SessionCache) InvalidateUser(ctx context.Context, email string) error {
	if err := c.rdb.Del(ctx, c.key(email)).Err(); err != nil {
		return unavailable("del user", err)
	}
	return nil
}

// ----- login throttling -----

// RegisterFailure counts a failed login from ip. The first failure in a window
// attaches the block-window TTL to the counter. Reaching MaxAttempts sets the
// block flag and deletes the counter; the return value reports that case.
//
// INCR and EXPIRE are separate commands: two racing first failures may both
// set the TTL, which only stretches the window slightly.
func (c *SessionCache) RegisterFailure(ctx context.Context, ip string) (bool, error) {
	attemptsKey := c.key(attemptsPrefix, ip)
	n, err := c.rdb.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return false, unavailable("incr attempts", err)
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, attemptsKey, c.cfg.BlockWindow).Err(); err != nil {
			return false, unavailable("expire attempts", err)
		}
	}
	if n < int64(c.cfg.MaxAttempts) {
		return false, nil
	}
	if err := c.rdb.Set(ctx, c.key(blockPrefix, ip), blockValue, c.cfg.BlockWindow).Err(); err != nil {
		return false, unavailable("set block", err)
	}
	if err := c.rdb.Del(ctx, attemptsKey).Err(); err != nil {
		return true, unavailable("del attempts", err)
	}
	return true, nil
}

// IsBlocked checks the block flag only; the counter is irrelevant here.
func (c *SessionCache) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(blockPrefix, ip)).Result()
	if err != nil {
		return false, unavailable("exists block", err)
	}
	return n > 0, nil
}

// Attempts returns the current failure count for ip (0 when absent).
func (c *SessionCache) Attempts(ctx context.Context, ip string) (int, error) {
	n, err := c.rdb.Get(ctx, c.key(attemptsPrefix, ip)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable("get attempts", err)
	}
	return n, nil
}
