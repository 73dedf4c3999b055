//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/edu-session-service/internal/app"
	"github.com/sandeepkv93/edu-session-service/internal/config"
	"github.com/sandeepkv93/edu-session-service/internal/repository"
	"github.com/sandeepkv93/edu-session-service/internal/security"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

var ProviderSet = wire.NewSet(
	provideLogging,
	provideLogger,
	provideObservability,
	provideDatabase,
	provideRedis,
	provideUserRepository,
	wire.Bind(new(service.UserLookup), new(*repository.GormUserRepository)),
	provideHasher,
	wire.Bind(new(service.PasswordHasher), new(*security.Hasher)),
	provideSessionStore,
	provideAuthSettings,
	provideAuthService,
	provideRateLimitBackend,
	provideReadiness,
	provideRouterDependencies,
	provideHTTPServer,
	provideApp,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
