// Command flagsync mirrors the REST Countries flag set into the local
// server directories: one e-ink sized BMP per country plus a JSON
// metadata sidecar and an index. It runs one pass by default; with a
// cron schedule (flag or config) it keeps re-running until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"epdiag/internal/config"
	"epdiag/internal/flags"
	appLog "epdiag/internal/log"
	"epdiag/internal/raster"
)

type flagConfig struct {
	configPath string
	baseURL    string
	cronSpec   string
	once       bool
	logLevel   string
}

func main() {
	cliFlags := parseFlags()
	appLog.SetLevel(cliFlags.logLevel)

	conf, err := config.Load(cliFlags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", cliFlags.configPath)
		os.Exit(1)
	}

	cronSpec := conf.Flags.Cron
	if cliFlags.cronSpec != "" {
		cronSpec = cliFlags.cronSpec
	}
	if cliFlags.once {
		cronSpec = ""
	}

	syncer := &flags.Syncer{
		Client:       flags.NewClient(cliFlags.baseURL),
		Rasterizer:   &raster.Chrome{},
		FlagsDir:     conf.Flags.FlagsDir,
		InfoDir:      conf.Flags.InfoDir,
		CanvasWidth:  conf.Flags.CanvasWidth,
		CanvasHeight: conf.Flags.CanvasHeight,
	}

	appLog.Info("flagsync starting",
		"flags_dir", syncer.FlagsDir,
		"info_dir", syncer.InfoDir,
		"canvas", conf.Flags.CanvasWidth,
		"cron", cronSpec,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	runOnce := func() bool {
		stats, err := syncer.Sync(ctx)
		if err != nil {
			appLog.Error("sync pass failed", err)
			return false
		}
		appLog.Info("sync pass complete",
			"processed", stats.Processed,
			"updated", stats.Updated,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)
		return true
	}

	ok := runOnce()
	if cronSpec == "" {
		if !ok {
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() { runOnce() }); err != nil {
		appLog.Error("invalid cron schedule", err, "cron", cronSpec)
		os.Exit(1)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("flagsync exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.baseURL, "base-url", "", "REST Countries base URL (default public endpoint)")
	flag.StringVar(&cfg.cronSpec, "cron", "", "Cron schedule for repeated syncs (overrides config)")
	flag.BoolVar(&cfg.once, "once", false, "Run a single sync pass even when a schedule is configured")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
