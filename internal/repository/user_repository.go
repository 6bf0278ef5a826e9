package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/auth-session-service/internal/database"
	"github.com/iliyamo/auth-session-service/internal/model"
)

// MySQL server error numbers we translate.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

const userColumns = "id,email,password_hash,role,first_name,last_name,balance,is_blocked,is_deleted,created_at,updated_at,last_activity_at"

// UserRepo is the MySQL-backed UserStore. A repo returned by InTx runs every
// statement on the open transaction.
type UserRepo struct {
	DB   *sql.DB
	q    database.DBTX
	inTx bool
}

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db, q: db} }

var _ TxUserStore = (*UserRepo)(nil)

// InTx runs fn in a single transaction. Nested calls reuse the outer one.
func (r *UserRepo) InTx(ctx context.Context, fn func(ctx context.Context, s UserStore) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, &UserRepo{DB: r.DB, q: tx, inTx: true})
	})
}

func translate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry:
			return ErrEmailExists
		case errLockDeadlock, errLockWaitTimeout:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		}
	}
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u           model.User
		first, last sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &first, &last,
		&u.Balance, &u.IsBlocked, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt, &u.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if first.Valid {
		u.FirstName = &first.String
	}
	if last.Valid {
		u.LastName = &last.String
	}
	return &u, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// FindByEmail fetches a user by normalized email, live rows first.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? ORDER BY is_deleted ASC, id DESC LIMIT 1",
		model.NormalizeEmail(email))
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

func (r *UserRepo) ExistsActive(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE email=? AND is_deleted=0 LIMIT 1",
		model.NormalizeEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts u and sets its ID. Timestamps are taken from u when set.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = model.NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	u.LastActivityAt = u.CreatedAt

	res, err := r.q.ExecContext(ctx,
		"INSERT INTO users (email,password_hash,role,first_name,last_name,balance,is_blocked,is_deleted,created_at,updated_at,last_activity_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)",
		u.Email, u.PasswordHash, u.Role, nullable(u.FirstName), nullable(u.LastName),
		u.Balance, u.IsBlocked, u.IsDeleted, u.CreatedAt, u.UpdatedAt, u.LastActivityAt)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

func (r *UserRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) RecordLogin(ctx context.Context, id uint64, bonus int64, at time.Time) error {
	return r.exec(ctx,
		"UPDATE users SET balance=balance+?, last_activity_at=? WHERE id=? AND is_deleted=0",
		bonus, at.UTC(), id)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return r.exec(ctx,
		"UPDATE users SET password_hash=? WHERE id=? AND is_deleted=0",
		hash, id)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, u *model.User) error {
	return r.exec(ctx,
		"UPDATE users SET first_name=?, last_name=? WHERE id=? AND is_deleted=0",
		nullable(u.FirstName), nullable(u.LastName), u.ID)
}
