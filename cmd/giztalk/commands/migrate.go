package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/pkg/cli"
	"github.com/haivivi/giztalk/pkg/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect Postgres migrations",
	Long: `Apply or inspect the Postgres schema migrations.

Requires database.url or DATABASE_URL. The Badger store needs no
migrations.

Examples:
  giztalk migrate up
  giztalk migrate status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openPostgres(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "database is up to date")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openPostgres(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		status, err := db.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
		for _, s := range status {
			applied := "no"
			if s.Applied {
				applied = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, applied, s.Path)
		}
		return w.Flush()
	},
}

func openPostgres(cmd *cobra.Command) (*postgres.Store, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is not set (or set DATABASE_URL)")
	}
	return postgres.Open(cmd.Context(), cfg.Database.URL, slog.Default())
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

