// Package service implements the authentication flow and the permission gate
// on top of the user store, the session cache and the token service.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/token"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// SessionStore is the Redis-backed state the flow depends on.
type SessionStore interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration) (bool, error)
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	SetUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, email string) (*model.User, bool, error)
	InvalidateUser(ctx context.Context, email string) error
	RegisterFailure(ctx context.Context, ip string) (bool, error)
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// Options holds flow tunables.
type Options struct {
	// LoginBonus is credited on every successful login of a non-admin user
	// with both names set.
	LoginBonus int64
	// TrustedIP bypasses the login block check.
	TrustedIP string
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService orchestrates register, login, logout, refresh and password
// changes.
type AuthService struct {
	users    repository.TxUserStore
	hasher   PasswordHasher
	tokens   *token.Service
	sessions SessionStore
	events   queue.Publisher
	log      logging.Logger
	opts     Options
	now      func() time.Time

	// dummyHash is compared against when the email is unknown, so a miss
	// costs the same bcrypt work as a wrong password.
	dummyHash string
}

func NewAuthService(
	users repository.TxUserStore,
	hasher PasswordHasher,
	tokens *token.Service,
	sessions SessionStore,
	events queue.Publisher,
	log logging.Logger,
	opts Options,
) (*AuthService, error) {
	if events == nil {
		events = queue.LogPublisher{Log: log}
	}
	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		events:    events,
		log:       log,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}, nil
}

// RegisterInput carries the registration form. Names are optional.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func optionalName(field, v string) (*string, error) {
	if v == "" {
		return nil, nil
	}
	if err := utils.ValidateName(v); err != nil {
		return nil, invalid(field, err)
	}
	return &v, nil
}

// Register creates a user with role user, zero balance, not blocked and not
// deleted.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := model.NormalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email", errors.New("value is not a valid email address"))
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return nil, invalid("password", err)
	}
	first, err := optionalName("first_name", in.FirstName)
	if err != nil {
		return nil, err
	}
	last, err := optionalName("last_name", in.LastName)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		FirstName:    first,
		LastName:     last,
	}

	err = s.users.InTx(ctx, func(ctx context.Context, st repository.UserStore) error {
		exists, err := st.ExistsActive(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateAccount
		}
		return st.Create(ctx, u)
	})
	if errors.Is(err, repository.ErrEmailExists) {
		err = ErrDuplicateAccount
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			s.log.Warn(ctx, "registration failed: user already exists", "email", email)
		}
		return nil, err
	}

	ev := queue.NewEvent(queue.EventUserRegistered)
	ev.UserID, ev.Email = u.ID, u.Email
	s.publish(ctx, ev)
	return u, nil
}

// Login authenticates email/password from ip and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*TokenPair, error) {
	email = model.NormalizeEmail(email)

	if ip != s.opts.TrustedIP {
		blocked, err := s.sessions.IsBlocked(ctx, ip)
		if err != nil {
			return nil, err
		}
		if blocked {
			s.log.Warn(ctx, "login refused: ip blocked after too many failed attempts", "ip", ip)
			return nil, ErrTooManyAttempts
		}
	}

	pair, err := s.authenticate(ctx, email, password, ip, true)
	if errors.Is(err, errStaleRecord) {
		// cached record outlived its row; drop it and decide from the store
		if err := s.sessions.InvalidateUser(ctx, email); err != nil {
			return nil, err
		}
		pair, err = s.authenticate(ctx, email, password, ip, false)
	}
	if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, errStaleRecord) {
		if ferr := s.failLogin(ctx, email, ip); ferr != nil {
			return nil, ferr
		}
		return nil, ErrInvalidCredentials
	}
	return pair, err
}

// errStaleRecord reports that the record a login was checked against no
// longer matches a live row.
var errStaleRecord = errors.New("stale user record")

// authenticate resolves the user (cache first when useCache is set), checks
// the password and account state, then records the login in a transaction.
// bcrypt runs before the transaction opens.
func (s *AuthService) authenticate(ctx context.Context, email, password, ip string, useCache bool) (*TokenPair, error) {
	var u *model.User
	if useCache {
		u = s.cachedUser(ctx, email)
	}
	if u == nil {
		found, err := s.users.FindByEmail(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			s.log.Warn(ctx, "login failed: user not found", "email", email, "ip", ip)
			return nil, ErrInvalidCredentials
		}
		if err != nil {
			return nil, err
		}
		u = found
		if cerr := s.sessions.SetUser(ctx, u); cerr != nil {
			s.log.Warn(ctx, "user cache write failed", "email", email, "err", cerr)
		}
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		s.log.Warn(ctx, "login failed: incorrect password", "email", email, "ip", ip)
		return nil, ErrInvalidCredentials
	}
	if u.IsDeleted {
		s.log.Warn(ctx, "login failed: deleted account", "email", email)
		return nil, ErrAccountDeleted
	}
	if u.IsBlocked {
		s.log.Warn(ctx, "login failed: blocked account", "email", email)
		return nil, ErrAccountBlocked
	}

	var bonus int64
	if u.HasFullName() && !u.IsAdmin() {
		bonus = s.opts.LoginBonus
	}
	err := s.users.InTx(ctx, func(ctx context.Context, st repository.UserStore) error {
		err := st.RecordLogin(ctx, u.ID, bonus, s.now())
		if errors.Is(err, repository.ErrNotFound) {
			return errStaleRecord
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.issuePair(u.Email)
}

// failLogin records the failure against ip and emits the matching events.
func (s *AuthService) failLogin(ctx context.Context, email, ip string) error {
	blocked, err := s.sessions.RegisterFailure(ctx, ip)
	if err != nil {
		return err
	}
	ev := queue.NewEvent(queue.EventLoginFailed)
	ev.Email, ev.IP = email, ip
	s.publish(ctx, ev)
	if blocked {
		s.log.Warn(ctx, "ip blocked after too many failed login attempts", "ip", ip)
		ev := queue.NewEvent(queue.EventIPBlocked)
		ev.IP = ip
		s.publish(ctx, ev)
	}
	return nil
}

func (s *AuthService) issuePair(subject string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(subject)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(subject)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// cachedUser returns the cached record or nil. Cache errors degrade to a miss.
func (s *AuthService) cachedUser(ctx context.Context, email string) *model.User {
	u, ok, err := s.sessions.GetUser(ctx, email)
	if err != nil {
		s.log.Warn(ctx, "user cache read failed", "email", email, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	return u
}

// Logout blacklists raw. The entry lives for the access-token lifetime, or
// for the token's remaining lifetime when that is longer.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	listed, err := s.sessions.IsBlacklisted(ctx, raw)
	if err != nil {
		return err
	}
	if listed {
		s.log.Warn(ctx, "logout attempt with already blacklisted token")
		return ErrAlreadyBlacklisted
	}

	ttl := s.tokens.AccessTTL()
	var email string
	if claims, err := s.tokens.Decode(raw); err == nil {
		if rem := s.tokens.Remaining(claims); rem > ttl {
			ttl = rem
		}
		email = claims.Email
	}

	added, err := s.sessions.Blacklist(ctx, raw, ttl)
	if err != nil {
		return err
	}
	if !added {
		return ErrAlreadyBlacklisted
	}

	ev := queue.NewEvent(queue.EventLoggedOut)
	ev.Email = email
	s.publish(ctx, ev)
	return nil
}

// Refresh rotates one half of the pair. An access token yields a new refresh
// token; a refresh token yields a new access token. The presented token is
// returned unchanged in its own slot.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	claims, err := s.checkToken(ctx, raw)
	if err != nil {
		return nil, err
	}

	switch claims.Type {
	case token.Access:
		refresh, err := s.tokens.IssueRefresh(claims.Email)
		if err != nil {
			return nil, fmt.Errorf("issue refresh token: %w", err)
		}
		return &TokenPair{AccessToken: raw, RefreshToken: refresh}, nil
	case token.Refresh:
		access, err := s.tokens.IssueAccess(claims.Email)
		if err != nil {
			return nil, fmt.Errorf("issue access token: %w", err)
		}
		return &TokenPair{AccessToken: access, RefreshToken: raw}, nil
	default:
		return nil, ErrInvalidToken
	}
}

// checkToken runs the blacklist and signature checks shared by Refresh and
// ResolveIdentity.
func (s *AuthService) checkToken(ctx context.Context, raw string) (*token.Claims, error) {
	listed, err := s.sessions.IsBlacklisted(ctx, raw)
	if err != nil {
		return nil, err
	}
	if listed {
		s.log.Warn(ctx, "blacklisted token presented")
		return nil, ErrTokenBlacklisted
	}
	claims, err := s.tokens.Decode(raw)
	switch {
	case errors.Is(err, token.ErrExpired):
		return nil, ErrTokenExpired
	case err != nil:
		s.log.Warn(ctx, "token validation failed", "err", err)
		return nil, ErrTokenMalformed
	}
	if claims.Email == "" || claims.Subject == "" {
		s.log.Warn(ctx, "token validation failed: invalid payload")
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ChangePassword replaces the password of u after checking current. The new
// hash is computed before the transaction opens.
func (s *AuthService) ChangePassword(ctx context.Context, u *model.User, current, next string) error {
	if !s.hasher.Verify(current, u.PasswordHash) {
		s.log.Warn(ctx, "password change failed: incorrect current password", "email", u.Email)
		return ErrInvalidCredentials
	}
	if err := utils.ValidatePassword(next); err != nil {
		return invalid("new_password", err)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.users.InTx(ctx, func(ctx context.Context, st repository.UserStore) error {
		return st.UpdatePassword(ctx, u.ID, hash)
	})
	if errors.Is(err, repository.ErrConflict) {
		s.log.Error(ctx, "conflict while changing password; retrying", "email", u.Email, "err", err)
		err = s.users.InTx(ctx, func(ctx context.Context, st repository.UserStore) error {
			fresh, err := st.FindByEmail(ctx, u.Email)
			if err != nil {
				return err
			}
			if fresh.IsDeleted {
				return repository.ErrNotFound
			}
			return st.UpdatePassword(ctx, fresh.ID, hash)
		})
	}
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Error(ctx, "user vanished while changing password", "email", u.Email)
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	u.PasswordHash = hash

	if err := s.sessions.InvalidateUser(ctx, u.Email); err != nil {
		return fmt.Errorf("invalidate cached user: %w", err)
	}

	ev := queue.NewEvent(queue.EventPasswordChange)
	ev.UserID, ev.Email = u.ID, u.Email
	s.publish(ctx, ev)
	return nil
}

func (s *AuthService) publish(ctx context.Context, ev queue.AuthEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn(ctx, "publish auth event failed", "type", string(ev.Type), "err", err)
	}
}
