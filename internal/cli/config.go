package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CedrosPay/paysim/internal/config"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			data, err := cfg.YAML()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "# Effective configuration (defaults + file + environment)")
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
