package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"canbridge/candrv"
	"canbridge/canserver"
	"canbridge/config"
	"canbridge/fanout"
	"canbridge/healthcheck"
	"canbridge/mqttdbg"
	"canbridge/status"
)

// Version info - increment based on change magnitude:
// Major (x.0.0): Breaking changes, major rewrites
// Minor (0.y.0): New features, significant enhancements
// Patch (0.0.z): Bug fixes, minor improvements
var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if lvl, err := log.ParseLevel(cfg.Logs.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Logs.Path != "" {
		logFile, err := os.OpenFile(cfg.Logs.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
		} else {
			log.Warnf("Failed to open log file %s: %v, logging to stderr", cfg.Logs.Path, err)
		}
	}

	log.Infof("Starting canbridge v%s", Version)
	log.Infof("  CAN interface: %s", cfg.CAN.Interface)
	log.Infof("  Backend: %s:%d", cfg.Backend.Host, cfg.Backend.Port)
	log.Infof("  Status port: %d", cfg.Status.Port)
	log.Infof("  MQTT diagnostics: %t", cfg.MQTT.Enabled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	bus, err := candrv.NewSocketCANBus(cfg.CAN.Interface)
	if err != nil {
		log.Fatalf("Failed to open CAN interface %s: %v", cfg.CAN.Interface, err)
	}
	defer bus.Close()

	srv := canserver.New(bus)

	var diag fanout.DiagSink
	if cfg.MQTT.Enabled {
		diag = mqttdbg.Log
	}
	bridge := fanout.New(srv, cfg.Backend.Host, cfg.Backend.Port, diag)

	go func() {
		<-ctx.Done()
		log.Info("Stopping CAN server and fan-out bridge")
		srv.Stop()
		bridge.Stop()
	}()

	go healthcheck.Run(ctx, srv.Registry())

	if cfg.Status.Port != 0 {
		statusSrv := status.New(cfg.Status.Port, status.RegistryAdapter{Registry: srv.Registry()}, bridge, cfg.KnownLabels())
		go func() {
			if err := statusSrv.Run(ctx); err != nil {
				log.Errorf("Status API error: %v", err)
			}
		}()
	}

	go srv.Run()

	bridge.Run()
}
