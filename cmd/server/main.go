package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/microhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/server"
)

func main() {
	cfg := config.LoadOrDefault()

	// Flags override environment
	port := flag.String("port", cfg.Server.Port, "Server port")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	plugins := flag.String("plugins", cfg.Sandbox.PluginsFile, "Sandbox plugin declarations (yaml, toml or json)")
	pageURL := flag.String("page-url", cfg.Page.URL, "URL of the host page")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Sandbox.PluginsFile = *plugins
	cfg.Page.URL = *pageURL
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
