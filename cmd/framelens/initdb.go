package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/storage"
)

func newInitDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if err := storage.InitSchema(cmd.Context(), cfg.DatabaseURL); err != nil {
				return fmt.Errorf("initialize schema: %w", err)
			}

			fmt.Println("database schema ready")
			return nil
		},
	}
}
