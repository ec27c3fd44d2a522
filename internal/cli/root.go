package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

// NewRootCommand builds the paysim command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "paysim",
		Short: "Payment gateway simulator",
		Long: `paysim runs payments through an in-process gateway sandbox.

Transactions are initiated, resolved and queried exactly as an integration
would against a hosted gateway, without any network traffic.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading config")

	root.AddCommand(newScenarioCommand(opts))
	root.AddCommand(newConfigCommand(opts))

	return root
}

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadEnvFile loads path into the environment; a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
