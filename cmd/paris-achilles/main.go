// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paris-achilles CLI: the launcher
// for the containerized SQL Server to DuckDB conversion job. It builds the
// conversion image, runs one batch container against a mounted data
// directory, and exits with the conversion process's own status code.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/james-cockayne/ParisAchilles/internal/config"
	"github.com/james-cockayne/ParisAchilles/internal/container"
	"github.com/james-cockayne/ParisAchilles/internal/journal"
	"github.com/james-cockayne/ParisAchilles/internal/launcher"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the paris-achilles CLI.
var rootCmd = &cobra.Command{
	Use:   "paris-achilles",
	Short: "Containerized SQL Server to DuckDB conversion job runner",
	Long: `paris-achilles builds and runs the Achilles SQL conversion job as a
single batch container. The host data directory is mounted read/write at
/app/data; the conversion program reads its inputs there and writes the
converted DuckDB artifacts back to the same directory.

The conversion process itself lives inside the image. This CLI only
orchestrates: build the image, run one container to completion, and exit
with the conversion process's status code.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paris-achilles.yaml or ~/.config/paris-achilles/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paris-achilles")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paris-achilles"))
		}
	}

	viper.SetEnvPrefix("PARIS_ACHILLES")
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// jobFlagKeys maps flag names to their viper configuration keys.
var jobFlagKeys = map[string]string{
	"image":         "image",
	"context-dir":   "context_dir",
	"data-dir":      "data_dir",
	"database-name": "database_name",
	"memory":        "memory",
	"env-dir":       "env_dir",
	"runtime":       "runtime",
	"state-dir":     "state_dir",
}

// addJobFlags registers the flags shared by build, run, and convert.
func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().String("image", config.DefaultImage, "image name:tag to build and run")
	cmd.Flags().String("context-dir", ".", "image build context directory")
	cmd.Flags().String("data-dir", "data", "host directory mounted read/write at /app/data")
	cmd.Flags().String("database-name", "", "DATABASE_NAME forwarded to the conversion process")
	cmd.Flags().String("memory", "", "container memory ceiling, e.g. 12g")
	cmd.Flags().String("env-dir", "", "directory of one-file-per-variable env files to forward")
	cmd.Flags().String("runtime", config.RuntimeAuto, "container runtime: auto, docker, or podman")
	cmd.Flags().String("state-dir", ".paris-achilles", "directory for the run journal")
}

// loadJob binds the executing command's flags into viper and materializes
// the job from the merged configuration. Binding happens here rather than
// at init time because build, run, and convert share the same keys and only
// the executing command's flag values may win. Callers validate the result
// with the check matching their scope (ValidateBuild or Validate).
func loadJob(cmd *cobra.Command) (config.Job, error) {
	for flag, key := range jobFlagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return config.Job{}, fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return config.Load(viper.GetViper())
}

// selectRuntime resolves the job's runtime preference.
func selectRuntime(job config.Job) (container.Runtime, error) {
	if job.Runtime == config.RuntimeAuto {
		return container.DetectRuntime()
	}
	return container.NamedRuntime(job.Runtime)
}

// newLauncher wires a launcher for the job. The journal is best-effort: a
// broken journal store degrades to no history rather than blocking a run.
func newLauncher(job config.Job) (*launcher.Launcher, func(), error) {
	rt, err := selectRuntime(job)
	if err != nil {
		return nil, nil, err
	}

	jnl, err := journal.Open(job.StateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: run journal unavailable: %v\n", err)
		jnl = nil
	}

	cleanup := func() {
		if jnl != nil {
			jnl.Close()
		}
	}
	return launcher.New(rt, jnl, os.Stdout, os.Stderr), cleanup, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var runErr *launcher.RunError
		if errors.As(err, &runErr) && runErr.Code > 0 {
			os.Exit(runErr.Code)
		}
		os.Exit(1)
	}
}
