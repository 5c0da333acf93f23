// Package main is the entry point for gatewayd, the HTTP front door that
// dispatches every inbound command through dispatch.Dispatcher.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/byteness/sentinel-gateway/config"
	"github.com/byteness/sentinel-gateway/dispatch"
	"github.com/byteness/sentinel-gateway/metrics"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	settingsPath := os.Getenv("SENTINEL_SETTINGS")
	if settingsPath == "" {
		settingsPath = "/etc/sentinel/settings.yaml"
	}
	addr := os.Getenv("SENTINEL_LISTEN_ADDR")
	if addr == "" {
		addr = ":8443"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings, err := loadSettings(settingsPath)
	if err != nil {
		log.Fatalf("gatewayd: failed to load settings from %s: %v", settingsPath, err)
	}

	gw, err := config.Bootstrap(ctx, settings)
	if err != nil {
		log.Fatalf("gatewayd: bootstrap failed: %v", err)
	}
	defer gw.AuditWriter.Close()

	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	dispatcher := dispatch.NewDispatcher(gw.Security, gw.Instrumentation, gw.AuditWriter, recorder)
	registerCommands(dispatcher)

	srv := newServer(addr, dispatcher, recorder)

	go func() {
		log.Printf("gatewayd %s listening on %s", Version, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gatewayd: serve failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("gatewayd: graceful shutdown failed: %v", err)
	}
}

func loadSettings(path string) (config.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Settings{}, err
	}
	var settings config.Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}
