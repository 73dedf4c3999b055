package authcheck

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/edu-session-service/internal/tools/common"
	"github.com/sandeepkv93/edu-session-service/internal/tools/loadgen"
	"github.com/sandeepkv93/edu-session-service/internal/tools/ui"
)

type options struct {
	baseURL      string
	identity     string
	password     string
	userIDHeader string
	envFile      string
	ci           bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "authcheck",
		Short: "Exercise the session API end to end",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := common.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			if opts.password == "" {
				opts.password = os.Getenv("AUTHCHECK_PASSWORD")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.identity, "identity", "", "username or email to log in with")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "", "password (defaults to AUTHCHECK_PASSWORD)")
	cmd.PersistentFlags().StringVar(&opts.userIDHeader, "user-id-header", "X-User-Id", "claimed identity header")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts), newLoadCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in, use the session, log out and confirm revocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.identity == "" || opts.password == "" {
				return fmt.Errorf("--identity and --password are required")
			}
			details, err := run(opts, "authcheck run", func(ctx context.Context) ([]string, error) {
				return RunFlow(ctx, NewClient(opts.baseURL, opts.userIDHeader, nil), opts.identity, opts.password)
			})
			return finish(opts, "authcheck run", details, err)
		},
	}
}

func newLoadCommand(opts *options) *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Generate mixed traffic against the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = opts.baseURL
			cfg.Identity = opts.identity
			cfg.Password = opts.password
			cfg.UserIDHeader = opts.userIDHeader
			details, err := run(opts, "authcheck load", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return res.Summary(), nil
			})
			return finish(opts, "authcheck load", details, err)
		},
	}
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: auth, session or mixed")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to generate traffic")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 10, "target requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "random seed for request selection")
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func finish(opts *options, title string, details []string, err error) error {
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		os.Exit(4)
	}
	return nil
}
