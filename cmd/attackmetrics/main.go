package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexcodex/attackmetrics/config"
	"github.com/lexcodex/attackmetrics/sonar"
)

type rootOptions struct {
	configPath string
	envFile    string
	debug      bool
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err for the user and returns the process exit code.
func reportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var statusErr *sonar.StatusError
	if errors.As(err, &statusErr) {
		fmt.Fprintln(w, "Response text:", statusErr.Body)
		return 1
	}
	fmt.Fprintln(w, err)
	return 1
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	exportOpts := &exportOptions{}
	root := &cobra.Command{
		Use:           "attackmetrics",
		Short:         "Export SonarQube complexity metrics of generated attacks to CSV",
		Long:          exportLong,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, exportOpts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", envOrDefault("ATTACKMETRICS_CONFIG", config.DefaultConfigFile), "Path to YAML settings file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Path to .env file holding the API token")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Log HTTP requests and responses")
	addExportFlags(root, exportOpts)

	root.AddCommand(newExportCmd(opts), newCoverageCmd(), newHistoryCmd(opts))
	return root
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig merges the .env file, the YAML file and the global flags.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadEnv(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Debug = true
	}
	return cfg, nil
}
