package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nixxel-company-limited/zpl-bridge/config"
	"github.com/nixxel-company-limited/zpl-bridge/router"
	"github.com/nixxel-company-limited/zpl-bridge/server"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	v := config.NewViper(nil)
	fs := pflag.NewFlagSet("zpl-bridge", pflag.ExitOnError)
	if err := config.BindFlags(v, fs); err != nil {
		panic(err)
	}
	fs.Parse(os.Args[1:])

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(v, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Server will listen", zap.String("address", cfg.Listen))

	r := router.New(cfg.Factory(), cfg.Info.Keys)

	opts := server.DefaultOptions()
	opts.AllowedOrigins = cfg.AllowedOrigins
	svr := server.New(r, cfg.Listen, opts)
	if err := svr.StartAsync(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.Stringer("signal", sig))

	if err := svr.Stop(); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}
