package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/civilforms/internal/buildinfo"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/server"
	"github.com/dmitrijs2005/civilforms/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.NewJSON(os.Stdout, "info")

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
