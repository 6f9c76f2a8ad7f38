package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/playground/internal/infrastructure/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playground backend",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
