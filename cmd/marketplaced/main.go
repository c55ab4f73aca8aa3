// Command marketplaced runs the marketplace service: the real-time websocket
// endpoint, the notification delivery worker, the optional outbox dispatcher
// and the expiry sweeper, all against one database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-marketplace/adapters/gologger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", os.Getenv("MARKETPLACE_CONFIG"), "path to a YAML config file")
	flag.Parse()
	if *showVersion {
		fmt.Printf("marketplaced version=%s commit=%s\n", version, commit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "marketplaced: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := LoadSettings(configPath)
	if err != nil {
		return err
	}
	_, logger := gologger.Resolve("marketplaced", nil, nil)

	d, err := newDaemon(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer d.close()

	logger.Info("marketplaced starting", "version", version, "addr", settings.HTTP.Addr)
	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info("marketplaced stopped")
	return nil
}
