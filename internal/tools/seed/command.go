package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/database"
	"github.com/resumekit/resumekit/internal/tools/common"
	"github.com/resumekit/resumekit/internal/tools/ui"
)

type options struct {
	envFile   string
	demoEmail string
	ci        bool
}

func (o *options) resolveDemoEmail(cfg *config.Config) string {
	if o.demoEmail != "" {
		return o.demoEmail
	}
	return cfg.DemoAccountEmail
}

type action func(ctx context.Context, opts *options) ([]string, error)

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Database seed tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.demoEmail, "demo-email", "", "override demo account email")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		subcommand(opts, "apply", "Apply demo seed data", seedApply),
		subcommand(opts, "dry-run", "Show what seeding would do", seedDryRun),
		newVerifyEmailCommand(opts),
	)
	return cmd
}

func subcommand(opts *options, use, short string, fn action) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			title := "seed " + use
			details, err := present(opts, title, fn)
			if opts.ci {
				common.PrintCIResult(err == nil, title, details, err)
			}
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

func seedApply(_ context.Context, opts *options) ([]string, error) {
	cfg, db, err := openDatabase(opts.envFile)
	if err != nil {
		return nil, err
	}
	report, err := database.Seed(db, opts.resolveDemoEmail(cfg))
	if err != nil {
		return nil, err
	}
	if report.Noop {
		return []string{"nothing to seed"}, nil
	}
	return []string{
		fmt.Sprintf("accounts created: %d", report.CreatedAccounts),
		fmt.Sprintf("resumes created: %d", report.CreatedResumes),
	}, nil
}

func seedDryRun(_ context.Context, opts *options) ([]string, error) {
	cfg, _, err := openDatabase(opts.envFile)
	if err != nil {
		return nil, err
	}
	email := opts.resolveDemoEmail(cfg)
	if email == "" {
		return []string{"no demo email configured, seeding would be a no-op"}, nil
	}
	return []string{
		"would ensure demo account: " + email,
		"would ensure one demo resume for that account",
		"no mutation executed in dry-run mode",
	}, nil
}

func newVerifyEmailCommand(opts *options) *cobra.Command {
	var email string
	verify := func(_ context.Context, opts *options) ([]string, error) {
		if strings.TrimSpace(email) == "" {
			return nil, fmt.Errorf("email is required")
		}
		_, db, err := openDatabase(opts.envFile)
		if err != nil {
			return nil, err
		}
		if err := database.MarkEmailVerified(db, email); err != nil {
			return nil, err
		}
		return []string{"marked email verified: " + strings.TrimSpace(strings.ToLower(email))}, nil
	}

	cmd := subcommand(opts, "verify-email", "Mark an account email as verified", verify)
	cmd.Flags().StringVar(&email, "email", "", "email to mark verified")
	return cmd
}

func present(opts *options, title string, fn action) ([]string, error) {
	if opts.ci {
		return fn(context.Background(), opts)
	}
	return ui.Run(title, func(ctx context.Context) ([]string, error) {
		return fn(ctx, opts)
	})
}

func openDatabase(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
