package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dmorgan81/circuitcraft/internal/circuit"
	"github.com/dmorgan81/circuitcraft/internal/config"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string

	v = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "circuitcraft",
	Short: "Turn plain language circuit descriptions into SVG schematics",
	Long: `circuitcraft serves a form that sends a circuit description to the
circuit generation API and shows the rendered SVG diagram.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("api-url", config.DefaultAPIURL, "base URL of the circuit generation API")
	flags.String("generator", circuit.DefaultGenerator, "generator backend used for new sessions")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	lo.Must0(v.BindPFlag("api_url", flags.Lookup("api-url")))
	lo.Must0(v.BindPFlag("generator_name", flags.Lookup("generator")))
	lo.Must0(v.BindPFlag("log_level", flags.Lookup("log-level")))

	rootCmd.AddCommand(serveCmd, generateCmd)
}

// setup loads configuration and returns a context carrying the logger.
func setup(cmd *cobra.Command) (context.Context, *config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("error reading %s: %w", configFile, err)
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(os.Stderr, log.ParseLevel(cfg.LogLevel))
	return log.NewContext(cmd.Context(), logger), cfg, nil
}
