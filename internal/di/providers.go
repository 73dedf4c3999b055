package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/edu-session-service/internal/app"
	"github.com/sandeepkv93/edu-session-service/internal/config"
	"github.com/sandeepkv93/edu-session-service/internal/database"
	"github.com/sandeepkv93/edu-session-service/internal/health"
	"github.com/sandeepkv93/edu-session-service/internal/http/handler"
	"github.com/sandeepkv93/edu-session-service/internal/http/middleware"
	"github.com/sandeepkv93/edu-session-service/internal/http/router"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/repository"
	"github.com/sandeepkv93/edu-session-service/internal/security"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

// Logging pairs the process logger with its OTel provider (nil when log export is off).
type Logging struct {
	Logger   *slog.Logger
	Provider *sdklog.LoggerProvider
}

func provideLogging(ctx context.Context, cfg *config.Config) (Logging, error) {
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return Logging{}, err
	}
	slog.SetDefault(logger)
	return Logging{Logger: logger, Provider: lp}, nil
}

func provideLogger(l Logging) *slog.Logger { return l.Logger }

func provideObservability(ctx context.Context, cfg *config.Config, l Logging) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, l.Logger, l.Provider)
}

func provideDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	return database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
}

// provideRedis returns nil when no backend is configured to use redis.
func provideRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func provideUserRepository(db *gorm.DB) *repository.GormUserRepository {
	return repository.NewUserRepository(db)
}

func provideHasher(cfg *config.Config) *security.Hasher {
	return security.NewHasher(cfg.BcryptCost)
}

func provideSessionStore(cfg *config.Config, rdb redis.UniversalClient) service.SessionStore {
	if cfg.SessionStore == config.BackendRedis && rdb != nil {
		return service.NewRedisSessionStore(rdb, cfg.RedisKeyPrefix)
	}
	return service.NewInMemorySessionStore()
}

func provideAuthSettings(cfg *config.Config) service.AuthSettings {
	return service.AuthSettings{
		SigningSecret:        cfg.AuthSigningSecret,
		AllowEphemeralSecret: cfg.AuthAllowEphemeralSecret,
		Issuer:               cfg.AuthTokenIssuer,
		Audience:             cfg.AuthTokenAudience,
		TokenTTL:             cfg.AuthTokenTTL,
		SessionTTL:           cfg.AuthSessionTTL,
		EmbedFingerprint:     cfg.AuthEmbedFingerprint,
	}
}

func provideAuthService(settings service.AuthSettings, store service.SessionStore, users service.UserLookup, passwords service.PasswordHasher, logger *slog.Logger) (*service.AuthService, error) {
	return service.NewAuthService(settings, store, users, passwords, logger)
}

func provideRateLimitBackend(cfg *config.Config, rdb redis.UniversalClient) middleware.Limiter {
	if cfg.RateLimitBackend == config.BackendRedis && rdb != nil {
		return middleware.NewRedisFixedWindowLimiter(rdb, cfg.RedisKeyPrefix)
	}
	return middleware.NewLocalFixedWindowLimiter()
}

func provideReadiness(db *gorm.DB, rdb redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{
		health.CheckFunc{Name: "db", Fn: func(ctx context.Context) error {
			return database.Ping(ctx, db, time.Second)
		}},
	}
	if rdb != nil {
		checkers = append(checkers, health.CheckFunc{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

func provideRouterDependencies(cfg *config.Config, auth *service.AuthService, limiter middleware.Limiter, readiness *health.ProbeRunner) router.Dependencies {
	return router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(auth),
		UserHandler:       handler.NewUserHandler(),
		Authenticator:     auth,
		UserIDHeader:      cfg.AuthUserIDHeader,
		DevAuthBypass:     cfg.DevAuthBypass,
		OriginPolicy:      security.NewOriginPolicy(cfg.CORSAllowedOrigins),
		RateLimitBackend:  limiter,
		LoginRateLimitRPM: cfg.LoginRateLimitPerMin,
		APIRateLimitRPM:   cfg.APIRateLimitPerMin,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, dep router.Dependencies) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(dep),
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
	}
}

func provideApp(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, auth *service.AuthService, readiness *health.ProbeRunner, db *gorm.DB, rdb redis.UniversalClient) *app.App {
	closers := []app.CloseFunc{func() error { return database.Close(db) }}
	if rdb != nil {
		closers = append(closers, rdb.Close)
	}
	return app.New(cfg, logger, server, runtime, auth, readiness, closers...)
}
