package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/groundwork-io/groundwork/pkg/config"
	"github.com/groundwork-io/groundwork/pkg/stores"
)

const configSkeleton = `workspace: {
	name:        "default"
	environment: "dev"
}

resources: {
	// "app-data": {
	// 	type: "mem.object"
	// 	attributes: {
	// 		value: "hello"
	// 	}
	// }
}
`

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		Long: `Initialize a workspace in the current directory.

Creates a starter configuration file, a policies directory, and the state
database with its schema applied. Existing files are left untouched.`,
		Example: `  # Initialize with defaults
  groundwork init

  # Initialize with a custom state location
  groundwork init --state state/prod.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			created := false
			if len(configPaths) == 1 {
				path := configPaths[0]
				if _, err := os.Stat(path); os.IsNotExist(err) {
					if err := os.WriteFile(path, []byte(configSkeleton), 0o644); err != nil {
						return fmt.Errorf("failed to write %s: %w", path, err)
					}
					fmt.Printf("Created %s\n", path)
					created = true
				}
			}

			if err := os.MkdirAll("policies", 0o755); err != nil {
				return fmt.Errorf("failed to create policies directory: %w", err)
			}

			dbPath := resolveStatePath(config.WorkspaceConfig{})
			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to open state database: %w", err)
			}
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate state database: %w", err)
			}

			log.Info().Str("state", dbPath).Msg("Workspace initialized")
			if !created {
				fmt.Println("Workspace already initialized, state database is up to date")
			}
			return nil
		},
	}

	return cmd
}
