package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/minesync/internal/config"
	"github.com/luciancaetano/minesync/internal/metrics"
	"github.com/luciancaetano/minesync/internal/websocket"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		rows, cols int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the loopback game server",
		Long: `Run a loopback game server on a rule-free board.

Clicks reveal the clicked cell, flags are announced in chat and hints
mark a cell safe. Prometheus metrics are served on /metrics.

Examples:
  minesync serve
  minesync serve --addr=127.0.0.1:9090 --rows=16 --cols=30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr, rows, cols)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from "+config.ConfigFileName+")")
	cmd.Flags().IntVar(&rows, "rows", 9, "Board rows")
	cmd.Flags().IntVar(&cols, "cols", 9, "Board columns")

	return cmd
}

func runServe(cmd *cobra.Command, addr string, rows, cols int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	codec, err := cfg.NewCodec()
	if err != nil {
		return err
	}

	serverCfg := &websocket.ServerConfig{
		Addr:            cfg.Server.Addr,
		Codec:           codec,
		RateLimitConfig: cfg.RateLimitConfig(),
		DisablePong:     cfg.Server.DisablePong,
		Logger:          logger,
		Metrics:         metrics.New(),
	}
	websocket.NewRoom(rows, cols).Attach(serverCfg)

	srv, err := websocket.NewServer(serverCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	info("Serving a %dx%d board on ws://%s/ws", rows, cols, cfg.Server.Addr)
	info("Press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
