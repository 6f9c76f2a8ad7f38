package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/playground/internal/infrastructure/config"
	"github.com/GriffinCanCode/playground/internal/infrastructure/logging"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "playground",
	Short: "Multi-language code playground runtime",
	Long: `Playground runs JavaScript, TypeScript, React, p5 and mock server code
(Express, Hono) in isolated contexts. Use it to serve the editor backend,
render sandbox documents, or run a snippet headlessly.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv(config.FileEnv), "TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	return cfg, nil
}

// cliLogger is quiet unless --verbose so command output stays parseable
func cliLogger(cfg *config.Config) (*logging.Logger, error) {
	if !verbose {
		return logging.NewNop(), nil
	}
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: true,
		OutputPaths: []string{"stderr"},
	})
}
