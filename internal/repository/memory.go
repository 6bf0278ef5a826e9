package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/auth-session-service/internal/model"
)

// MemoryUserRepo is an in-process UserStore. InTx serialises transactions and
// restores the previous state when fn fails.
type MemoryUserRepo struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	users  map[uint64]*model.User
	nextID uint64
	now    func() time.Time
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:  make(map[uint64]*model.User),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ TxUserStore = (*MemoryUserRepo)(nil)

func clone(u *model.User) *model.User {
	c := *u
	if u.FirstName != nil {
		v := *u.FirstName
		c.FirstName = &v
	}
	if u.LastName != nil {
		v := *u.LastName
		c.LastName = &v
	}
	return &c
}

func (m *MemoryUserRepo) snapshot() (map[uint64]*model.User, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[uint64]*model.User, len(m.users))
	for id, u := range m.users {
		cp[id] = clone(u)
	}
	return cp, m.nextID
}

func (m *MemoryUserRepo) InTx(ctx context.Context, fn func(ctx context.Context, s UserStore) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	users, next := m.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.restore(users, next)
			panic(p)
		}
		if err != nil {
			m.restore(users, next)
		}
	}()
	return fn(ctx, m)
}

func (m *MemoryUserRepo) restore(users map[uint64]*model.User, next uint64) {
	m.mu.Lock()
	m.users, m.nextID = users, next
	m.mu.Unlock()
}

func (m *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = model.NormalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *model.User
	for _, u := range m.users {
		if u.Email != email {
			continue
		}
		switch {
		case best == nil:
			best = u
		case best.IsDeleted && !u.IsDeleted:
			best = u
		case best.IsDeleted == u.IsDeleted && u.ID > best.ID:
			best = u
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return clone(best), nil
}

func (m *MemoryUserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryUserRepo) ExistsActive(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(model.NormalizeEmail(email)) != nil, nil
}

func (m *MemoryUserRepo) activeLocked(email string) *model.User {
	for _, u := range m.users {
		if u.Email == email && !u.IsDeleted {
			return u
		}
	}
	return nil
}

func (m *MemoryUserRepo) Create(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.Email = model.NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !u.IsDeleted && m.activeLocked(u.Email) != nil {
		return ErrEmailExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now()
	}
	u.UpdatedAt = u.CreatedAt
	u.LastActivityAt = u.CreatedAt
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = clone(u)
	return nil
}

// update applies fn to the live row with id.
func (m *MemoryUserRepo) update(ctx context.Context, id uint64, fn func(u *model.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = m.now()
	return nil
}

func (m *MemoryUserRepo) RecordLogin(ctx context.Context, id uint64, bonus int64, at time.Time) error {
	return m.update(ctx, id, func(u *model.User) {
		u.Balance += bonus
		u.LastActivityAt = at.UTC()
	})
}

func (m *MemoryUserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return m.update(ctx, id, func(u *model.User) { u.PasswordHash = hash })
}

func (m *MemoryUserRepo) UpdateProfile(ctx context.Context, in *model.User) error {
	p := clone(in)
	return m.update(ctx, in.ID, func(u *model.User) {
		u.FirstName, u.LastName = p.FirstName, p.LastName
	})
}

// SoftDelete marks the account deleted. Account removal has no HTTP surface;
// operators and tests use it directly.
func (m *MemoryUserRepo) SoftDelete(ctx context.Context, id uint64) error {
	return m.update(ctx, id, func(u *model.User) { u.IsDeleted = true })
}

// SetBlocked toggles the administrative block flag.
func (m *MemoryUserRepo) SetBlocked(ctx context.Context, id uint64, blocked bool) error {
	return m.update(ctx, id, func(u *model.User) { u.IsBlocked = blocked })
}
