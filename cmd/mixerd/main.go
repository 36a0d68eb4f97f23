package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flight-control/mixerd/internal/audit"
	"github.com/flight-control/mixerd/internal/auth"
	"github.com/flight-control/mixerd/internal/commands"
	"github.com/flight-control/mixerd/internal/config"
	"github.com/flight-control/mixerd/internal/controls"
	"github.com/flight-control/mixerd/internal/device"
	"github.com/flight-control/mixerd/internal/jsonrpc"
	"github.com/flight-control/mixerd/internal/loop"
	"github.com/flight-control/mixerd/internal/maintenance"
	"github.com/flight-control/mixerd/internal/telemetry"
)

var version = "0.1.0"

func main() {
	log.Println("Starting mixerd...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.Logging.File != "" {
		logFile := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}
		defer logFile.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	log.Printf("Configuration: http=%d maintenance=%d rate=%dHz outputs=%d mixers=%d policy=%s auth=%v",
		cfg.Network.HTTP.Port, cfg.Network.Maintenance.Port, cfg.Loop.RateHz,
		cfg.Mixer.MaxOutputs, cfg.Mixer.MaxMixers, cfg.Mixer.Policy(), cfg.Auth.Enabled)

	table := controls.NewTable(cfg.Controls.StaleAfter())
	dev := device.New(device.Options{
		Limits:     cfg.Mixer.Limits(),
		LoadPolicy: cfg.Mixer.Policy(),
	})

	auditLogger, err := audit.NewLogger(cfg.Logging.AuditDir, audit.Rotation{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}

	var verifier *auth.Verifier
	if cfg.Auth.Enabled {
		verifier, err = auth.NewVerifier(auth.VerifierConfig{
			Algorithm:    cfg.Auth.Algorithm,
			SecretKey:    cfg.Auth.Secret,
			PublicKeyPEM: cfg.Auth.PublicKeyPEM,
		})
		if err != nil {
			log.Fatalf("Failed to create token verifier: %v", err)
		}
	}

	if cfg.Mixer.File != "" {
		if err := loadInitialMixers(dev, cfg.Mixer.File); err != nil {
			log.Fatalf("Failed to load mixer file: %v", err)
		}
	}

	var hub *telemetry.Hub
	var sinks []loop.Sink
	if cfg.Telemetry.Enabled {
		hub = telemetry.NewHub(telemetry.Options{
			Decimation:        cfg.Telemetry.Decimation,
			MaxOutputs:        cfg.Mixer.MaxOutputs,
			BufferSize:        cfg.Telemetry.BufferSize,
			HeartbeatInterval: time.Duration(cfg.Telemetry.HeartbeatSec) * time.Second,
		})
		hub.Start()
		sinks = append(sinks, hub)
	}

	runner := loop.NewRunner(table, dev, cfg.Mixer.MaxOutputs, cfg.Loop.RateHz, sinks...)

	dispatcher := commands.NewDispatcher(commands.Env{
		Device:     dev,
		Table:      table,
		Audit:      auditLogger,
		MaxOutputs: cfg.Mixer.MaxOutputs,
		Stats:      runner.Stats,
		OnChange: func(action string) {
			if hub == nil {
				return
			}
			hub.Publish(telemetry.Event{
				Type: "mixer",
				Data: map[string]interface{}{"action": action},
			})
		},
	})

	dispatcher.AddCustomCommand(commands.NewCustomCommandHandler("version", "Daemon version", true,
		func(ctx context.Context, params []string) (interface{}, error) {
			return map[string]string{"version": version}, nil
		}))

	var telemetryHandler http.Handler
	if hub != nil {
		telemetryHandler = hub
	}
	jsonrpcServer := jsonrpc.NewServer(cfg, dispatcher, verifier, telemetryHandler)

	httpPort := cfg.Network.HTTP.Port
	if cfg.Network.HTTP.DevMode {
		httpPort = 8080
		log.Println("Development mode: using port 8080")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           jsonrpcServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	maintenanceServer := maintenance.NewServer(cfg, dispatcher, dev)

	ctx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runner.Run(ctx)
	}()

	go func() {
		log.Printf("Starting HTTP server on port %d", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting maintenance TCP server on port %d", cfg.Network.Maintenance.Port)
		if err := maintenanceServer.ListenAndServe(); err != nil {
			log.Fatalf("Maintenance server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	if hub != nil {
		hub.Stop()
		log.Printf("Telemetry dropped %d samples", hub.Dropped())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := maintenanceServer.Close(); err != nil {
		log.Printf("Maintenance server shutdown error: %v", err)
	}

	stopLoop()
	<-loopDone

	if err := dev.Close(); err != nil {
		log.Printf("Device shutdown error: %v", err)
	}
	if err := auditLogger.Close(); err != nil {
		log.Printf("Audit log close error: %v", err)
	}

	stats := runner.Stats()
	log.Printf("Stopped after %d ticks (%d failsafe, %d truncated, %d overruns)",
		stats.Ticks, stats.FailsafeTicks, stats.TruncatedTicks, stats.Overruns)
}

func loadInitialMixers(dev *device.Device, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := dev.LoadBuffer(ctx, buf)
	if err != nil {
		return err
	}
	for _, e := range rep.Errors {
		log.Printf("Skipped mixer in %s: %v", path, e)
	}
	n, err := dev.OutputCount(ctx)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d mixers from %s (%d outputs)", rep.Loaded, path, n)
	return nil
}
