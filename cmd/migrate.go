package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/classroomgames/tugquiz/internal/config"
	"github.com/classroomgames/tugquiz/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		return storage.Migrate(context.Background(), cfg.PostgresDSN)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
