// Command caddisd runs the caddis conversion daemon: the HTTP conversion API,
// the IPC control socket, and the stale workspace sweeper.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"caddis/internal/config"
	"caddis/internal/daemon"
	"caddis/internal/engine"
	"caddis/internal/ipc"
	"caddis/internal/jobs"
	"caddis/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewForDaemon(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := jobs.Open(cfg.Paths.RuntimeDir)
	if err != nil {
		logger.Error("open job registry", logging.Error(err))
		return
	}

	eng, err := engine.New(cfg, store, logger)
	if err != nil {
		logger.Error("create engine", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, eng, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("caddisd shutting down")
}
