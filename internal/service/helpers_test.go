package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-session-service/internal/cache"
	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/token"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func sharedKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []queue.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc    *AuthService
	users  *repository.MemoryUserRepo
	cache  *cache.SessionCache
	mr     *miniredis.Miniredis
	tokens *token.Service
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore builds the service over a memory repo. wrap, when set,
// decorates the repo before the service sees it.
func newFixtureWithStore(t *testing.T, wrap func(*repository.MemoryUserRepo) repository.TxUserStore) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions := cache.New(rdb, cache.Config{
		UserTTL:     300 * time.Second,
		MaxAttempts: 3,
		BlockWindow: 300 * time.Second,
	})
	tokens, err := token.NewService(token.Config{
		PrivateKey: sharedKey(t),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	users := repository.NewMemoryUserRepo()
	var store repository.TxUserStore = users
	if wrap != nil {
		store = wrap(users)
	}
	events := &recordingPublisher{}
	svc, err := NewAuthService(store, utils.NewHasher(bcrypt.MinCost), tokens, sessions, events,
		logging.Discard(), Options{LoginBonus: 100, TrustedIP: "127.0.0.1"})
	require.NoError(t, err)

	return &fixture{svc: svc, users: users, cache: sessions, mr: mr, tokens: tokens, events: events}
}

func (f *fixture) register(t *testing.T, email, password, first, last string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Email: email, Password: password, FirstName: first, LastName: last,
	})
	require.NoError(t, err)
	return u
}

// flakyStore fails the first `failures` password updates with ErrConflict.
// onConflict runs after the failed transaction has rolled back.
type flakyStore struct {
	*repository.MemoryUserRepo
	failures   int
	onConflict func()
}

func (f *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, s repository.UserStore) error) error {
	err := f.MemoryUserRepo.InTx(ctx, func(ctx context.Context, s repository.UserStore) error {
		return fn(ctx, &flakyTx{UserStore: s, parent: f})
	})
	if err != nil && f.onConflict != nil {
		f.onConflict()
		f.onConflict = nil
	}
	return err
}

type flakyTx struct {
	repository.UserStore
	parent *flakyStore
}

func (t *flakyTx) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	if t.parent.failures > 0 {
		t.parent.failures--
		return fmt.Errorf("%w: Deadlock found when trying to get lock", repository.ErrConflict)
	}
	return t.UserStore.UpdatePassword(ctx, id, hash)
}
