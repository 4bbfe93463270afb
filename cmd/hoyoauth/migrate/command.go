package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhoyo/hoyoauth/internal/business"
	"github.com/openhoyo/hoyoauth/internal/config"
)

func Cmd(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies the session schema migrations to the configured Postgres database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := business.MigrateMain(cmd.Context(), cfg); err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")

	return cmd
}
