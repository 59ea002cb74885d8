package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/selfdriving-car-go/log"
	cmdutil "github.com/mpapenbr/selfdriving-car-go/pkg/cmd/util"
	"github.com/mpapenbr/selfdriving-car-go/pkg/config"
	"github.com/mpapenbr/selfdriving-car-go/pkg/db/migrate"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&config.MigrationSourceURL,
		"migrationSourceUrl",
		"m",
		"",
		"url to migration files (default: embedded migrations)")

	return cmd
}

func startMigration(ctx context.Context) error {
	if _, _, err := cmdutil.SetupLogger(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cmdutil.WaitForDB(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	dbURL := prepareURLForDB(config.DB)
	if config.MigrationSourceURL == "" {
		log.Info("Using embedded migrations")
		if err := migrate.MigrateDb(dbURL); err != nil {
			return err
		}
	} else {
		log.Info("Using migrations files at", log.String("source", config.MigrationSourceURL))
		if err := migrate.MigrateFromSource(config.MigrationSourceURL, dbURL); err != nil {
			return err
		}
	}
	log.Info("Migration done")
	return nil
}

func prepareURLForDB(url string) string {
	options := "sslmode=disable"
	if strings.Contains(url, "sslmode=") {
		return url
	}
	if strings.Contains(url, "?") {
		return fmt.Sprintf("%s&%s", url, options)
	}
	return fmt.Sprintf("%s?%s", url, options)
}
