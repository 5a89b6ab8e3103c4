package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"calext/internal/config"
	"calext/internal/fetch"
	appLog "calext/internal/log"
	"calext/internal/store"
	"calext/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("calext starting", "version", "1.0.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI -listen overrides the config file if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"lookback_days", conf.LookbackDays,
		"horizon_days", conf.HorizonDays,
		"max_iterations", conf.MaxIterations,
		"calendar_count", len(conf.Calendars),
		"once", flags.once,
	)

	st := store.New()
	manager := fetch.NewManager(conf, st)

	if flags.once {
		os.Exit(runOnce(manager, st))
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	manager.Start()
	defer manager.Stop()

	// The refresh cron rolls the expansion window forward so cached
	// feeds stay expanded over the right date range between polls.
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, manager.RefreshWindow); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	if err := web.StartServer(ctx, conf, st, manager); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		os.Exit(1)
	}

	appLog.Info("calext exiting")
}

// runOnce performs a single fetch+parse cycle for every source and
// dumps the merged window to stdout as JSON.
func runOnce(manager *fetch.Manager, st *store.Store) int {
	manager.RunOnce()

	events := st.Events(manager.Window())
	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		appLog.Error("failed to marshal events", err)
		return 1
	}
	os.Stdout.Write(append(out, '\n'))
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calext/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch cycle, print events as JSON and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
