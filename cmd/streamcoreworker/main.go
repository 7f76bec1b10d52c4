// Command streamcoreworker is the process entry point wrapping the
// worker-local query lifecycle API (spec §6: registerQuery/startQuery/
// stopQuery/queryStatus) behind a cobra CLI, in the oriys-nova daemon +
// HTTP-API pattern: `serve` runs the worker, the other subcommands are
// thin HTTP clients against a running `serve` instance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nebulastream/streamcore/config"
)

var (
	configFile string
	apiAddr    string
)

func main() {
	root := &cobra.Command{
		Use:   "streamcoreworker",
		Short: "streamcore worker-local execution runtime",
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (optional, defaults used otherwise)")
	root.PersistentFlags().StringVar(&apiAddr, "api", "http://localhost:8080", "Address of a running serve instance, for status/stop/destroy")

	root.AddCommand(
		serveCmd(),
		statusCmd(),
		stopCmd(),
		destroyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the precedence DefaultConfig -> file -> env
// (config.LoadFromFile already overlays onto defaults).
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}
