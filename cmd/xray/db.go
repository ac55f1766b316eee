package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/db"
	"github.com/cozy-creator/xray-classifier/internal/db/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Utility for database management",
}

func init() {
	setupMigrationCmd(dbCmd)
}

// withDB opens the configured database for the duration of fn.
func withDB(ctx context.Context, fn func(db *bun.DB) error) error {
	driver, err := db.NewConnection(ctx, config.GetConfig().DB)
	if err != nil {
		return err
	}
	defer driver.Close()

	return fn(driver.GetDB())
}

func withMigrator(ctx context.Context, fn func(migrator *migrate.Migrator) error) error {
	return withDB(ctx, func(db *bun.DB) error {
		return fn(migrate.NewMigrator(db, migrations.Migrations))
	})
}

func setupMigrationCmd(cmd *cobra.Command) {
	migrationCmd := &cobra.Command{
		Use:   "migration",
		Short: "Utility for handling database migrations",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "create migration tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				return migrator.Init(cmd.Context())
			})
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "migrate database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				if err := migrator.Init(cmd.Context()); err != nil {
					return err
				}
				if err := migrator.Lock(cmd.Context()); err != nil {
					return err
				}
				defer migrator.Unlock(cmd.Context()) //nolint:errcheck

				group, err := migrator.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				if group.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "there are no new migrations to run (database is up to date)\n")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated to %s\n", group)
				return nil
			})
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "rollback the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				if err := migrator.Lock(cmd.Context()); err != nil {
					return err
				}
				defer migrator.Unlock(cmd.Context()) //nolint:errcheck

				group, err := migrator.Rollback(cmd.Context())
				if err != nil {
					return err
				}
				if group.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "there are no groups to roll back\n")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", group)
				return nil
			})
		},
	}

	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				if err := migrator.Lock(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "locked\n")
				return nil
			})
		},
	}

	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				if err := migrator.Unlock(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked\n")
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of the migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				status, err := migrator.MigrationsWithStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrations: %s\n", status)
				fmt.Fprintf(cmd.OutOrStdout(), "unapplied migrations: %s\n", status.Unapplied())
				fmt.Fprintf(cmd.OutOrStdout(), "last migration group: %s\n", status.LastGroup())
				return nil
			})
		},
	}

	markAppliedCmd := &cobra.Command{
		Use:   "mark-applied",
		Short: "Mark all migrations as applied without actually running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(migrator *migrate.Migrator) error {
				group, err := migrator.Migrate(cmd.Context(), migrate.WithNopMigration())
				if err != nil {
					return err
				}
				if group.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "there are no new migrations to mark as applied\n")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "marked as applied %s\n", group)
				return nil
			})
		},
	}

	migrationCmd.AddCommand(
		initCmd,
		migrateCmd,
		rollbackCmd,
		lockCmd,
		unlockCmd,
		statusCmd,
		markAppliedCmd,
	)

	cmd.AddCommand(migrationCmd)
}
