package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/config"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
	"github.com/Kanata-Kikuchi/mahjong-lite-server/server"
)

func main() {
	app := &cli.App{
		Name:  "mahjong-lite-server",
		Usage: "four-seat mahjong table relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   ".",
				Usage:   "directory holding config.yaml and .env",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "override server.http_address",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	// Load configuration
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.HTTPAddress = addr
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// Initialize Game Server
	gameServer, err := server.NewGameServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gameServer.Shutdown(shutdownCtx)
}
