package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/invoicekeeper/internal/buildinfo"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/cli"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/client"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/config"
	"github.com/dmitrijs2005/invoicekeeper/internal/client/services"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := client.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	tokens := services.NewTokenStore(db)
	api, err := client.NewHTTPClient(cfg.APIBaseURL,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		client.WithTokenSource(tokens),
		client.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer api.Close()

	log.Info(ctx, "starting", "api", cfg.APIBaseURL, "database", cfg.DatabasePath)

	app := cli.NewApp(cfg, api, tokens, log, os.Stdin, os.Stdout, os.Stderr)
	return app.Run(ctx)
}
