package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/winterbear26/kiwiplates-watcher/internal/app"
	"github.com/winterbear26/kiwiplates-watcher/internal/config"
	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

func main() {
	var (
		cfgPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./platewatch.yaml", "path to config yaml")
	flag.BoolVar(&once, "once", false, "run a single pass and exit, ignoring the schedule")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	if once || !cfg.Schedule.Enabled {
		if _, err := a.RunOnce(ctx); err != nil {
			log.Error("run failed", logx.Err(err))
			os.Exit(1)
		}
		return
	}

	if err := a.RunDaemon(ctx); err != nil {
		log.Error("daemon failed", logx.Err(err))
		os.Exit(1)
	}
}
