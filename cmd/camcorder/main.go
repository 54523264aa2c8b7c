package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wachiwi/pi-camcorder/cmd/camcorder/handlers"
	"github.com/wachiwi/pi-camcorder/pkg/board"
	"github.com/wachiwi/pi-camcorder/pkg/camera"
	"github.com/wachiwi/pi-camcorder/pkg/chime"
	"github.com/wachiwi/pi-camcorder/pkg/config"
	"github.com/wachiwi/pi-camcorder/pkg/coordinator"
	"github.com/wachiwi/pi-camcorder/pkg/library"
	"github.com/wachiwi/pi-camcorder/pkg/logger"
	"github.com/wachiwi/pi-camcorder/pkg/recorder"
	"github.com/wachiwi/pi-camcorder/pkg/settings"
	"github.com/wachiwi/pi-camcorder/pkg/stream"
	"github.com/wachiwi/pi-camcorder/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CAMCORDER_CONFIG"), "path to the YAML config file")
	addr := flag.String("addr", "", "listen address, overrides server host and port")
	flag.Parse()

	logger.Setup("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	logger.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, cfg.Telemetry.Interval)
	if err != nil {
		slog.Warn("Failed to set up telemetry", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	lib := library.New(cfg.Recording.Dir)
	if err := lib.EnsureDir(); err != nil {
		logger.Fatal("Failed to prepare recordings directory", "error", err)
	}

	store, err := settings.Open(filepath.Join(cfg.DataDir, "settings.json"), cfg.Recording.DefaultFPS, cfg.Recording.AllowedFPS)
	if err != nil {
		logger.Fatal("Failed to load settings", "error", err)
	}

	hw, err := board.Open(cfg.GPIO.Chip, cfg.GPIO.ButtonPin, cfg.GPIO.LEDPin)
	if err != nil {
		slog.Warn("GPIO unavailable, button and LED disabled", "error", err)
		hw = board.Mock()
	}

	driver, err := camera.NewDriver(cfg.Camera.Driver)
	if err != nil {
		hw.Close()
		logger.Fatal("Failed to create camera driver", "error", err)
	}
	cam := camera.NewManager(driver, cameraConfig(cfg.Camera.Streaming), cameraConfig(cfg.Camera.Recording))
	if err := cam.Open(); err != nil {
		hw.Close()
		logger.Fatal("Failed to start camera", "error", err)
	}

	var observers []coordinator.Observer
	if cfg.Chime.StartSound != "" || cfg.Chime.StopSound != "" {
		player, err := chime.New(cfg.Chime.StartSound, cfg.Chime.StopSound)
		if err != nil {
			slog.Warn("Chime disabled", "error", err)
		} else {
			observers = append(observers, player)
		}
	}

	indicator := board.NewIndicator(hw.LED, cfg.GPIO.BlinkInterval)
	rec := recorder.New(cam, lib.Dir(), cfg.Recording.Extension)
	coord := coordinator.New(rec, indicator, store, observers...)

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		board.NewMonitor(hw.Button, cfg.GPIO.PollInterval, cfg.GPIO.Debounce).Run(ctx, coord.Toggle)
	}()

	var scheduler *library.Scheduler
	if cfg.Retention.MaxAge > 0 {
		scheduler, err = library.NewScheduler(lib, cfg.Retention.Schedule, cfg.Retention.MaxAge, cfg.Retention.KeepLatest)
		if err != nil {
			slog.Warn("Retention disabled", "error", err)
		} else {
			scheduler.Start()
		}
	}

	secret := []byte(cfg.Server.SessionSecret)
	if len(secret) == 0 {
		// Flash cookies only live across one redirect; a per-boot secret is enough.
		secret = []byte(uuid.NewString())
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Deps{
		Frames:   stream.New(cam, store, cfg.Camera.Streaming.FPS),
		Settings: store,
		Library:  lib,
		Status:   coord,
		Camera:   cam,
	}, secret)

	listenAddr := cfg.ServerAddress()
	if *addr != "" {
		listenAddr = *addr
	}
	srv := &http.Server{
		Addr:        listenAddr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// Open preview streams end with the signal context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server is running", "addr", listenAddr, "recordings", lib.Dir())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-serveErr:
		slog.Error("Server failed", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
	<-monitorDone
	if err := coord.Close(shutdownCtx); err != nil {
		slog.Error("Recording did not finalize in time", "error", err)
	}
	indicator.Off()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := cam.Close(); err != nil {
		slog.Error("Failed to close camera", "error", err)
	}
	if err := hw.Close(); err != nil {
		slog.Error("Failed to release GPIO", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Failed to shut down telemetry", "error", err)
	}
	slog.Info("Shutdown complete")
}

func cameraConfig(p config.Profile) camera.Config {
	return camera.Config{
		Width:   p.Width,
		Height:  p.Height,
		FPS:     p.FPS,
		Bitrate: p.Bitrate,
		HFlip:   p.HFlip,
		VFlip:   p.VFlip,
	}
}
