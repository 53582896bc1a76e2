package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentmux/crewly/internal/app"
	"github.com/agentmux/crewly/internal/config"
	"github.com/agentmux/crewly/internal/logging"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel)

	sessionName := flag.String("session", "", "launch a single named session and register it with the daemon")
	command := flag.String("command", "", "shorthand: command to run in -session")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.GetInstance(cfg)
	a.Start()
	defer app.ClearInstance()

	if *sessionName != "" {
		if err := runOneShotSession(a, *sessionName, *command); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("crewlyd started", "home", cfg.CrewlyHome)
	<-ctx.Done()
	slog.Info("shutting down")
	a.Shutdown()
}
