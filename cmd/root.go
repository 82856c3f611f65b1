package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-overlay/framework/app"
)

var (
	version  = app.Version
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Run the overlay service runtime",
	Long: `Run the overlay service runtime: an event bus with a service registry,
a dependency-injecting service container and the content cache/builder.

Configuration is read from the environment and from .env files.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&envFiles, "env", "e", nil,
		"env files to load (default: .env)")
}

// newApplication builds the application from the --env files.
func newApplication(ctx context.Context) (*app.Application, error) {
	return app.New(ctx, app.WithEnvFiles(envFiles...))
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
