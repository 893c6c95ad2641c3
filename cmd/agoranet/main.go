package main

import (
	"context"
	"log"
	"time"

	"github.com/intercooperative/agoranet/internal/app"
	"github.com/intercooperative/agoranet/pkg/config"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	flags := config.ParseFlags()

	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup", err, eff.DBPath)
		return
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			logger.Error("server_failed", "error", err)
		}
	}

	if err := a.Shutdown(10 * time.Second); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("close_failed", "error", err)
	}
}
