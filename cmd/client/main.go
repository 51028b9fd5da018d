package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/techtrack/internal/buildinfo"
	"github.com/dmitrijs2005/techtrack/internal/client/cli"
	"github.com/dmitrijs2005/techtrack/internal/client/config"
	"github.com/dmitrijs2005/techtrack/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	logger, closer := logging.NewFileLogger(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	defer closer.Close()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	logger.Info(ctx, "client started", "api", cfg.APIBaseURL, "health_check", cfg.HealthCheck, "database", cfg.DatabasePath)
	app.Run(ctx)
}
