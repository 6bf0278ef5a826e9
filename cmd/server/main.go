package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/auth-session-service/internal/cache"
	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/database"
	"github.com/iliyamo/auth-session-service/internal/handler"
	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/router"
	"github.com/iliyamo/auth-session-service/internal/service"
	"github.com/iliyamo/auth-session-service/internal/token"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

func main() {
	cfg := config.Load()
	authCfg := config.LoadAuthConfig()
	log := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, authCfg, log); err != nil {
		log.Error(ctx, "server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, authCfg config.AuthConfig, log logging.Logger) error {
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	health := map[string]handler.Pinger{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	var users repository.TxUserStore
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn(ctx, "using in-memory user store; data is lost on restart")
		users = repository.NewMemoryUserRepo()
	default:
		db, err := database.Open(ctx, database.Options{
			User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort,
			Name: cfg.DBName, MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
		}
		users = repository.NewUserRepo(db)
		health["mysql"] = db.PingContext
	}

	priv, err := token.LoadPrivateKey(authCfg.PrivateKeyPath)
	if err != nil {
		return err
	}
	tokCfg := token.Config{PrivateKey: priv, AccessTTL: authCfg.AccessTTL, RefreshTTL: authCfg.RefreshTTL}
	if authCfg.PublicKeyPath != "" {
		if tokCfg.PublicKey, err = token.LoadPublicKey(authCfg.PublicKeyPath); err != nil {
			return err
		}
	}
	tokens, err := token.NewService(tokCfg)
	if err != nil {
		return err
	}

	sessions := cache.New(rdb, cache.Config{
		Prefix:      authCfg.CachePrefix,
		UserTTL:     authCfg.UserCacheTTL,
		MaxAttempts: authCfg.MaxLoginAttempts,
		BlockWindow: authCfg.LoginBlockWindow,
	})

	qCfg := config.LoadQueueConfig()
	var events queue.Publisher = queue.LogPublisher{Log: log}
	if qCfg.Enabled {
		pub := queue.NewAMQPPublisher(qCfg.URL, qCfg.Queue, log)
		defer pub.Close()
		events = pub
		if qCfg.RunConsumer {
			consumer := &queue.AuditConsumer{URL: qCfg.URL, Queue: qCfg.Queue, Dir: qCfg.AuditLogDir, Log: log}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error(ctx, "audit consumer stopped", "err", err)
				}
			}()
		}
	}

	svc, err := service.NewAuthService(users, utils.NewHasher(authCfg.BcryptCost), tokens, sessions, events, log, service.Options{
		LoginBonus: authCfg.LoginBonus,
		TrustedIP:  authCfg.TrustedIP,
	})
	if err != nil {
		return err
	}

	e := router.New(log, cfg.TrustProxy)
	router.RegisterRoutes(e, health)
	router.RegisterAuth(e, handler.NewAuthHandler(svc, log), svc,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterUsers(e, handler.NewUserHandler(svc, log), svc)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", addr, "env", cfg.Env, "store", cfg.Store)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
