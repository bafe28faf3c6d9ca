package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/fieldshare/surplus/db"
	"github.com/fieldshare/surplus/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// goose drives migrations through database/sql, so this is the one
		// place the process opens a *sql.DB alongside the pgxpool.Pool the
		// rest of the service uses natively.
		conn, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open migration connection: %w", err)
		}
		defer conn.Close()

		if err := db.Migrate(conn); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		fmt.Println("migrations applied")
		return nil
	},
}
