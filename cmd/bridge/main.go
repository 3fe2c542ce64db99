// Command bridge runs the single-user IRC front-end for a Slack workspace
// described by spec.md: it listens on localhost, and for the one attached
// IRC client it impersonates, authenticates to Slack over the Web and RTM
// APIs and translates between the two protocols until the client
// disconnects.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/slackirc/bridge/pkg/bridge"
	"github.com/slackirc/bridge/pkg/bridgeerr"
	"github.com/slackirc/bridge/pkg/config"
	"github.com/slackirc/bridge/pkg/ircd"
	"github.com/slackirc/bridge/pkg/logger"
	"github.com/slackirc/bridge/pkg/metrics"
	"github.com/slackirc/bridge/pkg/state"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		port       = flag.Int("port", 0, "TCP port to listen on (overrides config)")
		bindIP     = flag.String("bind-ip", "", "Address to listen on (overrides config)")
		tokenFile  = flag.String("token-file", "", "Path to a file containing the Slack token (overrides config)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		debug      = flag.Bool("debug", false, "Enable the debug metrics listener (overrides config)")
		debugAddr  = flag.String("debug-addr", "127.0.0.1:9008", "Address for the debug metrics listener")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("slackirc-bridge (development build)")
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return bridgeerr.ExitCode(err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *bindIP != "" {
		cfg.BindIP = *bindIP
	}
	if *tokenFile != "" {
		cfg.TokenFile = *tokenFile
	}
	if *debug {
		cfg.Debug = true
	}
	// Environment variables override command-line flags for each field
	// (spec.md §6), so this overlay runs last.
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return bridgeerr.ExitCode(err)
	}

	log, err := logger.New(logger.Config{
		Level:     *logLevel,
		Format:    *logFormat,
		Output:    "stderr",
		Suffix:    cfg.LogSuffix,
		Component: "bridge",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}

	ircSrv, err := ircd.Listen(cfg.BindIP, cfg.Port, log.WithComponent("ircd"))
	if err != nil {
		log.Error("failed to listen", "error", err)
		return bridgeerr.ExitCode(err)
	}
	defer ircSrv.Close()
	log.Info("listening for irc client", "addr", ircSrv.Addr())

	store := state.New(cfg.StatusFile, log.WithComponent("state"))

	var m *metrics.Metrics
	var debugSrv *http.Server
	if cfg.Debug {
		var handler http.Handler
		m, handler = newMetrics()
		debugSrv = startDebugListener(*debugAddr, handler, log.WithComponent("debug"))
	}

	core := bridge.New(cfg, log, ircSrv, store, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("signal received, shutting down")
		cancel()
		ircSrv.Close()
		if debugSrv != nil {
			debugSrv.Close()
		}
	}()

	runErr := core.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		log.Error("bridge exited", "error", runErr)
		return bridgeerr.ExitCode(runErr)
	}
	return 0
}
