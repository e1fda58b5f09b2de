// Package main is the entry point for the PondVision HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pondvision/internal/app"
	"github.com/dharsanguruparan/pondvision/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.ConfigureLogging(os.Stderr); err != nil {
		logrus.Fatalf("configure logging: %v", err)
	}
	srv, err := app.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("init server: %v", err)
	}
	// The context is cancelled on SIGINT/SIGTERM which shuts the server down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Serve(ctx); err != nil {
		logrus.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
