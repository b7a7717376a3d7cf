// Command kratos-echo runs the example application, the development identity
// provider and the container health check.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "kratos-echo",
	Short: "Ory Kratos sign-in for Echo applications",
	Long: `kratos-echo serves an example Echo application protected by Ory Kratos.

Example usage:
  kratos-echo devidp             # Start the development identity provider on :4433
  kratos-echo serve              # Start the example application on :3000
  kratos-echo healthcheck        # Probe the local application (for container health checks)
  kratos-echo key localhost:4433 # Print a publishable test key for a host`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, devidpCmd, healthcheckCmd, keyCmd)
}

// loadEnv loads path when it exists. Variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
