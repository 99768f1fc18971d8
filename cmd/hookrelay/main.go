package main

import (
	"fmt"
	"os"

	"github.com/lhdbsbz/hookrelay/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "hookrelay",
		Short:        "Relay a browser chat to a workflow webhook",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOOKRELAY_HOME/config.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newProbeCmd(&configPath),
		newConfigCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Show version info",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "hookrelay v%s\n", version)
			},
		},
	)
	return root
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the example config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolveConfigPath(*configPath)
			if err := config.CreateFromExample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

// loadConfig loads .env, then the config file; a missing file yields the defaults
// resolved against HOOKRELAY_HOME.
func loadConfig(configPath string) (string, *config.Config, error) {
	config.LoadDotEnv()
	path := config.ResolveConfigPath(configPath)
	cfg, err := config.LoadOrDefault(path, config.ResolveHome())
	if err != nil {
		return path, nil, err
	}
	return path, cfg, nil
}
