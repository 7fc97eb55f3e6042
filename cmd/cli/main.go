package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/civilforms/internal/buildinfo"
	"github.com/dmitrijs2005/civilforms/internal/client/cli"
	"github.com/dmitrijs2005/civilforms/internal/client/config"
	"github.com/dmitrijs2005/civilforms/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewText(os.Stderr, cfg.LogLevel)
	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
