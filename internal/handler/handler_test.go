package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-session-service/internal/cache"
	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/service"
	"github.com/iliyamo/auth-session-service/internal/token"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

type testServer struct {
	e     *echo.Echo
	mr    *miniredis.Miniredis
	users *repository.MemoryUserRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := token.NewService(token.Config{PrivateKey: testKey, AccessTTL: 15 * time.Minute, RefreshTTL: 30 * 24 * time.Hour})
	require.NoError(t, err)
	users := repository.NewMemoryUserRepo()
	log := logging.Discard()
	svc, err := service.NewAuthService(users, utils.NewHasher(bcrypt.MinCost), tokens,
		cache.New(rdb, cache.Config{MaxAttempts: 3}), queue.LogPublisher{Log: log}, log,
		service.Options{LoginBonus: 100, TrustedIP: "127.0.0.1"})
	require.NoError(t, err)

	e := echo.New()
	e.IPExtractor = echo.ExtractIPDirect()
	a := NewAuthHandler(svc, log)
	u := NewUserHandler(svc, log)
	e.POST("/register", a.Register)
	e.POST("/login", a.Login)
	e.POST("/logout", a.Logout)
	e.POST("/refresh", a.Refresh)
	e.POST("/change_password", a.ChangePassword, middleware.JWTAuth(svc))
	e.GET("/me", u.Me, middleware.JWTAuth(svc))
	e.PATCH("/me", u.UpdateMe, middleware.JWTAuth(svc))

	return &testServer{e: e, mr: mr, users: users}
}

type call struct {
	method, path, bearer, ip string
	json                     any
	form                     url.Values
}

func (s *testServer) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	switch {
	case c.form != nil:
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	case c.json != nil:
		b, err := json.Marshal(c.json)
		require.NoError(t, err)
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(string(b)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	default:
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	if c.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.bearer)
	}
	ip := c.ip
	if ip == "" {
		ip = "10.0.0.1"
	}
	req.RemoteAddr = ip + ":4321"

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func (s *testServer) login(t *testing.T, email, password string) (string, string) {
	t.Helper()
	rec, body := s.do(t, call{method: http.MethodPost, path: "/login",
		form: url.Values{"email": {email}, "password": {password}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body["access_token"].(string), body["refresh_token"].(string)
}

const (
	email    = "a@example.com"
	password = "Abcdef1!"
)

func TestRegisterHandler(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, call{method: http.MethodPost, path: "/register",
		json: map[string]string{"email": email, "password": password, "first_name": "Ann"}})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "User successfully registered", body["detail"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/register",
		json: map[string]string{"email": email, "password": password}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user with this email already exists", body["error"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/register",
		json: map[string]string{"email": "b@example.com", "password": "short"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "password", body["field"])

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/register", json: map[string]string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLoginHandler(t *testing.T) {
	s := newTestServer(t)
	s.do(t, call{method: http.MethodPost, path: "/register", json: map[string]string{"email": email, "password": password}})

	rec, body := s.do(t, call{method: http.MethodPost, path: "/login",
		form: url.Values{"email": {email}, "password": {password}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])

	for i := 0; i < 3; i++ {
		rec, body = s.do(t, call{method: http.MethodPost, path: "/login", ip: "1.1.1.1",
			json: map[string]string{"email": email, "password": "Wrong1!x"}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid username or password", body["error"])
	}
	rec, _ = s.do(t, call{method: http.MethodPost, path: "/login", ip: "1.1.1.1",
		json: map[string]string{"email": email, "password": password}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginHandler_IgnoresForwardedFor(t *testing.T) {
	s := newTestServer(t)
	s.do(t, call{method: http.MethodPost, path: "/register", json: map[string]string{"email": email, "password": password}})

	for i := 0; i < 3; i++ {
		s.do(t, call{method: http.MethodPost, path: "/login", ip: "1.1.1.1",
			json: map[string]string{"email": email, "password": "Wrong1!x"}})
	}

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(url.Values{"email": {email}, "password": {password}}.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(echo.HeaderXForwardedFor, "9.9.9.9")
	req.RemoteAddr = "1.1.1.1:4321"
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogoutAndRefreshHandlers(t *testing.T) {
	s := newTestServer(t)
	s.do(t, call{method: http.MethodPost, path: "/register", json: map[string]string{"email": email, "password": password}})
	access, refresh := s.login(t, email, password)

	rec, body := s.do(t, call{method: http.MethodPost, path: "/refresh", bearer: refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, refresh, body["refresh_token"])
	assert.NotEqual(t, access, body["access_token"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/refresh", bearer: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, access, body["access_token"])

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/logout"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = s.do(t, call{method: http.MethodPost, path: "/logout", bearer: access})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", body["msg"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/logout", bearer: access})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token is already blacklisted", body["error"])

	rec, _ = s.do(t, call{method: http.MethodGet, path: "/me", bearer: access})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, call{method: http.MethodPost, path: "/refresh", bearer: access})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, call{method: http.MethodPost, path: "/refresh", bearer: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordHandler(t *testing.T) {
	s := newTestServer(t)
	s.do(t, call{method: http.MethodPost, path: "/register", json: map[string]string{"email": email, "password": password}})
	access, _ := s.login(t, email, password)

	rec, _ := s.do(t, call{method: http.MethodPost, path: "/change_password", bearer: access,
		form: url.Values{"current_password": {"Wrong1!x"}, "new_password": {"NewPass1!"}}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(t, call{method: http.MethodPost, path: "/change_password", bearer: access,
		form: url.Values{"current_password": {password}, "new_password": {"weak"}}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "new_password", body["field"])

	rec, body = s.do(t, call{method: http.MethodPost, path: "/change_password", bearer: access,
		form: url.Values{"current_password": {password}, "new_password": {"NewPass1!"}}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password successfully changed", body["msg"])

	rec, _ = s.do(t, call{method: http.MethodPost, path: "/login",
		form: url.Values{"email": {email}, "password": {password}}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	s.login(t, email, "NewPass1!")
}

func TestProfileHandlers(t *testing.T) {
	s := newTestServer(t)
	s.do(t, call{method: http.MethodPost, path: "/register",
		json: map[string]string{"email": email, "password": password, "first_name": "Ann", "last_name": "Lee"}})
	access, _ := s.login(t, email, password)

	rec, body := s.do(t, call{method: http.MethodGet, path: "/me", bearer: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, email, body["email"])
	assert.Equal(t, float64(100), body["balance"])

	rec, body = s.do(t, call{method: http.MethodPatch, path: "/me", bearer: access,
		json: map[string]any{"last_name": ""}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["last_name"])
	assert.Equal(t, "Ann", body["first_name"])

	rec, _ = s.do(t, call{method: http.MethodPatch, path: "/me", bearer: access, json: map[string]any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = s.do(t, call{method: http.MethodPatch, path: "/me", bearer: access,
		json: map[string]any{"first_name": "A1"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "first_name", body["field"])
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{service.ErrDuplicateAccount, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrAccountDeleted, http.StatusUnauthorized},
		{service.ErrAccountBlocked, http.StatusForbidden},
		{service.ErrTooManyAttempts, http.StatusForbidden},
		{service.ErrTokenExpired, http.StatusUnauthorized},
		{service.ErrTokenMalformed, http.StatusUnauthorized},
		{service.ErrTokenBlacklisted, http.StatusUnauthorized},
		{service.ErrAlreadyBlacklisted, http.StatusUnauthorized},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrNotAuthorized, http.StatusNotFound},
		{service.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", service.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.code, statusFor(tc.err), tc.err.Error())
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/ok", Health(map[string]Pinger{"redis": func(context.Context) error { return nil }}))
	e.GET("/bad", Health(map[string]Pinger{"mysql": func(context.Context) error { return errors.New("down") }}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "mysql unavailable")
}
