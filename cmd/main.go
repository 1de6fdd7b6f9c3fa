package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lendinglibrary/internal/config"
	"lendinglibrary/internal/metrics"
	"lendinglibrary/internal/repositories"
	"lendinglibrary/internal/services"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := newRootCommand(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Lending library record keeper",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return cfg.Validate()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres:// URL or SQLite file path")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logrus level (debug, info, warn, error)")
	flags.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON log lines")
	flags.StringVar(&cfg.SeedAdminUsername, "seed-admin-username", cfg.SeedAdminUsername, "username of the administrator created on first start")
	flags.StringVar(&cfg.SeedAdminSecret, "seed-admin-secret", cfg.SeedAdminSecret, "password of the administrator created on first start")

	root.AddCommand(newServeCommand(cfg), newMigrateCommand(cfg), newSeedAdminCommand(cfg))
	return root
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := cfg.NewLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer repositories.Close(db)
			logger.Info("schema is up to date")
			return nil
		},
	}
}

func newSeedAdminCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the seed administrator if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := cfg.NewLogger()
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer repositories.Close(db)

			svc := newService(db, logger, metrics.Nop{})
			admin, err := svc.EnsureSeedAdmin(cmd.Context(), cfg.SeedAdminUsername, cfg.SeedAdminSecret)
			if err != nil {
				return err
			}
			logger.WithField("member_id", admin.ID).Infof("seed administrator is %q", admin.Username)
			return nil
		},
	}
}

// openDatabase connects and migrates so every command sees the current schema.
func openDatabase(cfg *config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := repositories.Open(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Error("failed to connect database")
		return nil, err
	}
	if err := repositories.Migrate(db); err != nil {
		_ = repositories.Close(db)
		logger.WithError(err).Error("failed to migrate database")
		return nil, err
	}
	return db, nil
}

func newService(db *gorm.DB, logger *logrus.Logger, rec metrics.Recorder) services.LibraryService {
	return services.NewLibraryService(db,
		repositories.NewMemberRepository(db),
		repositories.NewBookRepository(db),
		repositories.NewBorrowRepository(db),
		services.WithLogger(logger),
		services.WithMetrics(rec),
		services.WithHashCost(bcrypt.DefaultCost),
	)
}
