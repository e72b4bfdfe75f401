package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/database"
	"github.com/resumekit/resumekit/internal/tools/common"
	"github.com/resumekit/resumekit/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		subcommand(opts, "up", "Apply schema migrations", migrateUp),
		subcommand(opts, "status", "Check migration prerequisites", migrateStatus),
		subcommand(opts, "plan", "Show migration plan (dry-run)", migratePlan),
	)
	return cmd
}

type step func(ctx context.Context, cfg *config.Config, db *gorm.DB) ([]string, error)

// subcommand wraps a step with the shared env/db setup, the interactive or CI
// presentation, and the tooling exit code.
func subcommand(opts *options, use, short string, fn step) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			title := "migrate " + use
			wrapped := func(ctx context.Context) ([]string, error) {
				cfg, db, err := openDatabase(opts.envFile)
				if err != nil {
					return nil, err
				}
				sqlDB, _ := db.DB()
				defer func() { _ = sqlDB.Close() }()
				return fn(ctx, cfg, db)
			}

			var details []string
			var err error
			if opts.ci {
				ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
				details, err = wrapped(ctx)
				cancel()
				common.PrintCIResult(err == nil, title, details, err)
			} else {
				_, err = ui.Run(title, wrapped)
			}
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

func migrateUp(ctx context.Context, cfg *config.Config, db *gorm.DB) ([]string, error) {
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return []string{"schema migration applied", "database: connected", "service: " + cfg.OTELServiceName}, nil
}

func migrateStatus(ctx context.Context, cfg *config.Config, db *gorm.DB) ([]string, error) {
	if err := pingDatabase(ctx, db); err != nil {
		return nil, err
	}
	return []string{"database reachable", "service: " + cfg.OTELServiceName, "migrations: ready"}, nil
}

func migratePlan(ctx context.Context, cfg *config.Config, db *gorm.DB) ([]string, error) {
	if err := pingDatabase(ctx, db); err != nil {
		return nil, err
	}
	return []string{
		"would apply AutoMigrate for domain models",
		"account, password_history_entry, session, resume",
		"no mutation executed in plan mode",
	}, nil
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
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
