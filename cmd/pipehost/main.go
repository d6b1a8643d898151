package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lei/pipehost/pkg/host"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipehost",
		Short: "Host-embedded pipeline runner",
	}
	cmd.AddCommand(serveCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var configPath string
	var port int
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in demo pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file (ignore error if file doesn't exist - env vars
			// might be set externally)
			_ = godotenv.Load()

			cfg := &host.Config{}
			if configPath != "" {
				loaded, err := host.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if debug {
				cfg.Logging.Level = "debug"
				cfg.Logging.Format = "text"
			}

			h, err := host.New(cfg, newDemoPipeline())
			if err != nil {
				return err
			}

			// Setup signal handling for graceful shutdown
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Start the host (blocks until shutdown)
			return h.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}
