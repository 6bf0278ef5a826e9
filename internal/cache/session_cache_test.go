package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-session-service/internal/model"
)

func newTestCache(t *testing.T, cfg Config) (*SessionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestBlacklist(t *testing.T) {
	c, mr := newTestCache(t, Config{})
	ctx := context.Background()

	ok, err := c.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	added, err := c.Blacklist(ctx, "tok", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.Blacklist(ctx, "tok", time.Hour)
	require.NoError(t, err)
	assert.False(t, added, "second write must not replace the entry")
	assert.Equal(t, 15*time.Minute, mr.TTL("tok"))

	val, err := mr.Get("tok")
	require.NoError(t, err)
	assert.Equal(t, "blacklisted", val)

	ok, err = c.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(15 * time.Minute)
	ok, err = c.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserCache(t *testing.T) {
	c, mr := newTestCache(t, Config{UserTTL: 5 * time.Minute})
	ctx := context.Background()
	first := "Ann"

	_, hit, err := c.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, hit)

	u := &model.User{ID: 7, Email: "a@example.com", PasswordHash: "h", Role: model.RoleUser, FirstName: &first, Balance: 500}
	require.NoError(t, c.SetUser(ctx, u))
	assert.Equal(t, 5*time.Minute, mr.TTL("a@example.com"))

	got, hit, err := c.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, "h", got.PasswordHash)
	assert.Equal(t, "Ann", *got.FirstName)
	assert.Zero(t, got.Balance, "balance is not part of the projection")

	require.NoError(t, c.InvalidateUser(ctx, "a@example.com"))
	_, hit, err = c.GetUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, mr.Set("b@example.com", "{not json"))
	_, hit, err = c.GetUser(ctx, "b@example.com")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRegisterFailure_BlocksAtThreshold(t *testing.T) {
	c, mr := newTestCache(t, Config{MaxAttempts: 3, BlockWindow: 300 * time.Second})
	ctx := context.Background()
	ip := "1.1.1.1"

	blocked, err := c.RegisterFailure(ctx, ip)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, 300*time.Second, mr.TTL("attempts:"+ip))

	blocked, err = c.RegisterFailure(ctx, ip)
	require.NoError(t, err)
	assert.False(t, blocked)
	n, err := c.Attempts(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	isBlocked, err := c.IsBlocked(ctx, ip)
	require.NoError(t, err)
	assert.False(t, isBlocked)

	blocked, err = c.RegisterFailure(ctx, ip)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.False(t, mr.Exists("attempts:"+ip), "counter is deleted once blocked")
	assert.Equal(t, 300*time.Second, mr.TTL("block:"+ip))

	isBlocked, err = c.IsBlocked(ctx, ip)
	require.NoError(t, err)
	assert.True(t, isBlocked)

	other, err := c.IsBlocked(ctx, "2.2.2.2")
	require.NoError(t, err)
	assert.False(t, other)

	mr.FastForward(300 * time.Second)
	isBlocked, err = c.IsBlocked(ctx, ip)
	require.NoError(t, err)
	assert.False(t, isBlocked)
}

func TestRegisterFailure_WindowExpires(t *testing.T) {
	c, mr := newTestCache(t, Config{MaxAttempts: 3, BlockWindow: time.Minute})
	ctx := context.Background()

	_, err := c.RegisterFailure(ctx, "1.1.1.1")
	require.NoError(t, err)
	_, err = c.RegisterFailure(ctx, "1.1.1.1")
	require.NoError(t, err)

	mr.FastForward(time.Minute)
	blocked, err := c.RegisterFailure(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, blocked, "counter restarted after the window")
}

func TestPrefix(t *testing.T) {
	c, mr := newTestCache(t, Config{Prefix: "auth:"})
	ctx := context.Background()

	_, err := c.Blacklist(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("auth:tok"))

	_, err = c.RegisterFailure(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("auth:attempts:1.1.1.1"))
}

func TestUnavailable(t *testing.T) {
	c, mr := newTestCache(t, Config{})
	mr.Close()

	_, err := c.IsBlacklisted(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.RegisterFailure(context.Background(), "1.1.1.1")
	assert.ErrorIs(t, err, ErrUnavailable)
}
