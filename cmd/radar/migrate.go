package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/internal/migration"
	"github.com/thep200/content-radar/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every radar table from migration.source into mysql",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	if config.Migration.Source.Host == "" {
		return fmt.Errorf("migration.source.host is not configured")
	}
	source := db.NewMysqlFor(config.Migration.Source)
	defer source.Close()
	target, err := openMysql(ctx)
	if err != nil {
		return err
	}
	defer target.Close()

	counts, err := migration.NewMigrator(logger, config, source, target).Run(ctx)
	for _, c := range counts {
		logger.Info(ctx, "Copied %d rows of %s", c.Rows, c.Table)
	}
	return err
}
