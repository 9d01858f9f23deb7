package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prograhamer/go-anthostd/internal/antmetrics"
	"github.com/prograhamer/go-anthostd/internal/antnode"
	"github.com/prograhamer/go-anthostd/internal/usbtransport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultNetworkNumber = 0

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("ant-hostd %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)

	dev, err := usbtransport.Open(usbtransport.WithVendorProduct(cfg.vendorID, cfg.productID))
	if err != nil {
		l.Error("usb_open_error", "error", err)
		os.Exit(1)
	}

	node := antnode.New(dev,
		antnode.WithMaxChannels(byte(cfg.maxChannels)),
		antnode.WithWriteTimeout(cfg.writeTimeout),
		antnode.WithResponseWait(cfg.responseWait),
		antnode.WithLogger(l),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node.Start(ctx)

	if err := node.Reset(ctx); err != nil {
		l.Error("reset_error", "error", err)
		node.Stop()
		os.Exit(1)
	}
	if err := node.SetNetworkKey(ctx, defaultNetworkNumber, cfg.networkKey); err != nil {
		l.Error("set_network_key_error", "error", err)
		node.Stop()
		os.Exit(1)
	}
	caps, err := node.Capabilities(ctx)
	if err != nil {
		l.Error("capabilities_error", "error", err)
		node.Stop()
		os.Exit(1)
	}
	l.Info("ready", "max_channels", caps.MaxChannels, "max_networks", caps.MaxNetworks)

	if cfg.metricsAddr != "" {
		antmetrics.InitBuildInfo(version, commit, date)
		antmetrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
		srv := antmetrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	if cfg.consoleEnable {
		go func() {
			if err := runConsole(ctx, node); err != nil {
				l.Warn("console_error", "error", err)
			}
			cancel()
		}()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
		l.Info("shutdown_console")
	}
	cancel()
	node.Stop()
}
