// Command storefront serves the storefront API: cart, ratings, saved
// addresses and session handling in front of the commerce backend.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/lumen-apothecary/storefront/internal/app"
	"github.com/lumen-apothecary/storefront/internal/config"
	"github.com/lumen-apothecary/storefront/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default config/storefront.yaml if present)")
	addr := flag.String("addr", "", "Listen address, overrides the config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *addr); err != nil {
		log.Fatalf("storefront: %v", err)
	}
}

func run(ctx context.Context, configPath, addr string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := logging.New("storefront", cfg.Logging.Level, cfg.Logging.Format)
	logger.WithField("commerce", cfg.Commerce.Backend).
		WithField("storage", cfg.Storage.Backend).
		Info("starting storefront")

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := application.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("storefront stopped")
	return nil
}
