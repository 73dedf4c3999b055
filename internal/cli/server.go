package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/edu-session-service/internal/config"
	"github.com/sandeepkv93/edu-session-service/internal/database"
	"github.com/sandeepkv93/edu-session-service/internal/di"
	"github.com/sandeepkv93/edu-session-service/internal/domain"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/repository"
	"github.com/sandeepkv93/edu-session-service/internal/security"
)

// LoadConfig is swapped in tests.
var LoadConfig = config.Load

func NewServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Session authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newUserCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			a.Logger.Info("starting service",
				"env", cfg.AppEnv,
				"session_store", cfg.SessionStore,
				"rate_limit_backend", cfg.RateLimitBackend,
				"ephemeral_secret", a.Auth.EphemeralSecret(),
			)
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the user table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), cmd.ErrOrStderr(), func(cfg *config.Config, db *gorm.DB, logger *slog.Logger) error {
				if err := database.Migrate(db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				logger.Info("migration complete", "driver", cfg.DatabaseDriver)
				return nil
			})
		},
	}
}

type userCreateOptions struct {
	username string
	email    string
	password string
	inactive bool
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage login accounts"}
	opts := &userCreateOptions{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Hash a password and insert a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				opts.password = os.Getenv("USER_PASSWORD")
			}
			if err := opts.validate(); err != nil {
				return err
			}
			return withDatabase(cmd.Context(), cmd.ErrOrStderr(), func(cfg *config.Config, db *gorm.DB, logger *slog.Logger) error {
				hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(opts.password))
				if err != nil {
					return fmt.Errorf("hash password: %w", err)
				}
				user := &domain.User{
					Username:     opts.username,
					Email:        opts.email,
					PasswordHash: hash,
					Active:       !opts.inactive,
				}
				if err := repository.NewUserRepository(db).Create(cmd.Context(), user); err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				logger.Info("user created", "user_id", user.ID, "username", user.Username)
				_, err = fmt.Fprintln(cmd.OutOrStdout(), user.ID)
				return err
			})
		},
	}
	create.Flags().StringVar(&opts.username, "username", "", "login username")
	create.Flags().StringVar(&opts.email, "email", "", "login email")
	create.Flags().StringVar(&opts.password, "password", "", "password (defaults to USER_PASSWORD)")
	create.Flags().BoolVar(&opts.inactive, "inactive", false, "create the account disabled")
	cmd.AddCommand(create)
	return cmd
}

func (o *userCreateOptions) validate() error {
	var errs []error
	if strings.TrimSpace(o.username) == "" {
		errs = append(errs, errors.New("--username is required"))
	}
	if !strings.Contains(o.email, "@") {
		errs = append(errs, errors.New("--email must be an email address"))
	}
	if len(o.password) < 8 {
		errs = append(errs, errors.New("password must be at least 8 characters"))
	}
	return errors.Join(errs...)
}

func withDatabase(ctx context.Context, logOut io.Writer, fn func(*config.Config, *gorm.DB, *slog.Logger) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logCfg := *cfg
	logCfg.OTELLogsEnabled = false
	logger, _, err := observability.NewLogger(ctx, &logCfg, logOut)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	return errors.Join(fn(cfg, db, logger), database.Close(db))
}
