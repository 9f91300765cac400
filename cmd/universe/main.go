// Command universe drives a local particle universe from the terminal. It
// runs the same command and query buses the API serves, over the SQLite or
// in-memory store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "universe",
		Short: "Run and inspect a local particle universe",
		Long: `universe spawns particles, advances the simulation and inspects
its state without the HTTP API.

State is kept in a SQLite file so consecutive invocations see the same
universe. Use --store memory for a throwaway run.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("store", config.StoreSQLite, "Store driver (sqlite or memory)")
	rootCmd.PersistentFlags().String("db", "particle-universe.db", "SQLite database path")
	rootCmd.PersistentFlags().String("tuning", "", "Simulation tuning file (YAML)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log at debug level")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSpawnCmd(),
		newListCmd(),
		newShowCmd(),
		newTickCmd(),
		newRunCmd(),
		newStateCmd(),
		newNeighborsCmd(),
		newCompatCmd(),
		newPreviewCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "universe version %s\n", version)
			}
		},
	}
}

// loadConfig reads the environment and applies the global flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	store, _ := cmd.Flags().GetString("store")
	db, _ := cmd.Flags().GetString("db")
	tuning, _ := cmd.Flags().GetString("tuning")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if store != config.StoreSQLite && store != config.StoreMemory {
		return nil, fmt.Errorf("unsupported store %q: use %s or %s", store, config.StoreSQLite, config.StoreMemory)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.StoreDriver = store
	cfg.SQLitePath = db
	if tuning != "" {
		cfg.SimulationConfigFile = tuning
	}
	cfg.EnableEventPublishing = false
	cfg.EnableMetrics = false
	cfg.EnableTracing = false
	cfg.EnableRateLimit = false
	cfg.LogLevel = "warn"
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// withContainer builds the application for one command and tears it down
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()
	defer func() { _ = container.Logger.Sync() }()

	return fn(ctx, container)
}

// emit writes v as JSON when --json is set, otherwise calls text
func emit(cmd *cobra.Command, v interface{}, text func(w io.Writer)) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}
