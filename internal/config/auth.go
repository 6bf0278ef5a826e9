package config

import (
	"time"
)

// AuthConfig carries token, password and login-throttling settings.
type AuthConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string // optional; derived from the private key when empty
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	BcryptCost     int

	MaxLoginAttempts int
	LoginBlockWindow time.Duration
	UserCacheTTL     time.Duration
	CachePrefix      string

	LoginBonus int64
	TrustedIP  string
}

// LoadAuthConfig reads AuthConfig. JWT_PRIVATE_KEY_PATH is required.
func LoadAuthConfig() AuthConfig {
	cfg := AuthConfig{
		PrivateKeyPath:   must("JWT_PRIVATE_KEY_PATH"),
		PublicKeyPath:    envStr("JWT_PUBLIC_KEY_PATH", ""),
		AccessTTL:        time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTTL:       time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
		BcryptCost:       envInt("BCRYPT_COST", 12),
		MaxLoginAttempts: envInt("MAX_LOGIN_ATTEMPTS", 3),
		LoginBlockWindow: envDur("LOGIN_BLOCK_WINDOW", 300*time.Second),
		UserCacheTTL:     envDur("USER_CACHE_TTL", 300*time.Second),
		CachePrefix:      envStr("CACHE_PREFIX", ""),
		LoginBonus:       int64(envInt("LOGIN_BONUS", 100)),
		TrustedIP:        envStr("LOGIN_TRUSTED_IP", "127.0.0.1"),
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.MaxLoginAttempts < 1 {
		cfg.MaxLoginAttempts = 3
	}
	if cfg.LoginBonus < 0 {
		cfg.LoginBonus = 0
	}
	return cfg
}
