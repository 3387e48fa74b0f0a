package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/meishild/mzbtir/internal/api"
	"github.com/meishild/mzbtir/internal/worker"
)

func serveCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll configured devices and serve commands over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				a.cfg.HTTP.Listen = listen
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address, empty to disable (default from config)")
	return cmd
}

func serve(parent context.Context, a *app) error {
	if len(a.cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := worker.NewRetainedStore()
	metrics := worker.NewMetrics(registry)
	opts := worker.Options{
		TopicPrefix:     a.cfg.TopicPrefix,
		DiscoveryPrefix: a.cfg.DiscoveryPrefix,
		MaxFailCount:    a.cfg.MaxFailCount,
		ReceiveTimeout:  a.cfg.Receive.Timeout,
	}
	w := worker.New(opts, store, metrics)

	for _, name := range a.cfg.DeviceNames() {
		client, err := a.client(name)
		if err != nil {
			return fmt.Errorf("device %s: %w", name, err)
		}
		w.AddDevice(name, client)
	}

	var rssi *worker.RSSIWorker
	if a.cfg.RSSI.Enabled {
		rssi = worker.NewRSSIWorker(opts, a.adapter, a.cfg.RSSI.ScanTime, store, metrics)
		for _, name := range a.cfg.DeviceNames() {
			rssi.AddDevice(name, resolveAddress(a.cfg, name))
		}
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() { errCh <- w.Run(ctx, a.cfg.Update.PollInterval) }()
	if rssi != nil {
		go func() { errCh <- rssi.Run(ctx, a.cfg.Update.PollInterval) }()
	}

	var srv *api.Server
	if a.cfg.HTTP.Listen != "" {
		srv = api.NewServer(w, store, registry)
		go func() { errCh <- srv.ListenAndServe(a.cfg.HTTP.Listen) }()
	}

	slog.Info("[WORKER] running", "devices", len(a.cfg.Devices), "poll_interval", a.cfg.Update.PollInterval, "rssi", rssi != nil)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-errCh:
		stop()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("[API] shutdown failed", "error", err)
		}
	}

	if runErr == nil || errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
