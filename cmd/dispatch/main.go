package main

import (
	"context"
	"flag"
	"os"

	"github.com/olzhask/ride-dispatch/config"
	_ "github.com/olzhask/ride-dispatch/docs"
	"github.com/olzhask/ride-dispatch/internal/app"
	"github.com/olzhask/ride-dispatch/pkg/logger"
)

var (
	helpFlag   = flag.Bool("help", false, "Show help message")
	configPath = flag.String("config-path", "config.yaml", "Path to the config yaml file")
)

func main() {
	flag.Parse()
	if *helpFlag {
		config.PrintHelp()
		return
	}

	ctx := context.Background()
	log := logger.InitLogger("dispatch", logger.LevelDebug)

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to configure application", err)
		config.PrintHelp()
		return
	}

	if cfg.Server.LogLevel != "" {
		log = logger.InitLogger("dispatch", cfg.Server.LogLevel)
	}

	app, err := app.NewApplication(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init application", err)
		os.Exit(1)
	}

	if err = app.Run(ctx); err != nil {
		log.Error(ctx, "failed to run application", err)
		os.Exit(1)
	}
}
