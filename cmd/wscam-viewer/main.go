package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShellAddicted/wsCamera/internal/config"
	"github.com/ShellAddicted/wsCamera/internal/logger"
	"github.com/ShellAddicted/wsCamera/internal/metrics"
	"github.com/ShellAddicted/wsCamera/internal/monitor"
	"github.com/ShellAddicted/wsCamera/internal/resource"
	"github.com/ShellAddicted/wsCamera/internal/surface"
	"github.com/ShellAddicted/wsCamera/internal/viewer"
)

func main() {
	configPath := config.PathFromArgs(os.Args[1:])
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the file
	flag.String("config", configPath, "YAML config file")
	flag.StringVar(&cfg.Viewer.Endpoint, "endpoint", cfg.Viewer.Endpoint, "Stream WebSocket URL (ws:// or wss://)")
	flag.StringVar(&cfg.Viewer.SurfaceID, "surface", cfg.Viewer.SurfaceID, "Id of the image surface to render into")
	flag.BoolVar(&cfg.Viewer.AutoStart, "autostart", cfg.Viewer.AutoStart, "Start streaming immediately")
	flag.DurationVar(&cfg.Viewer.HandshakeTimeout, "handshake-timeout", cfg.Viewer.HandshakeTimeout, "WebSocket handshake timeout")
	flag.Int64Var(&cfg.Viewer.ReadLimit, "read-limit", cfg.Viewer.ReadLimit, "Maximum frame size in bytes (0 = unlimited)")
	flag.StringVar(&cfg.Monitor.Addr, "http", cfg.Monitor.Addr, "Monitor HTTP address")
	flag.StringVar(&cfg.Monitor.Origin, "origin", cfg.Monitor.Origin, "Origin used in display resource URLs")
	flag.DurationVar(&cfg.Monitor.StatusInterval, "status-interval", cfg.Monitor.StatusInterval, "Status SSE interval")
	flag.TextVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&cfg.Log.Color, "log-color", cfg.Log.Color, "Enable colored log output")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger.Init(cfg.Log.Level, os.Stderr, cfg.Log.Color)
	logger.Info("Main", "Log level: %s", cfg.Log.Level)

	doc := surface.NewDocument()
	img := doc.NewImage(cfg.Viewer.SurfaceID)
	store := resource.NewStore(cfg.Monitor.Origin)

	m := metrics.NewViewer()
	m.RegisterGaugeFunc("wscam_viewer_live_resources", "Display resources not yet revoked",
		func() float64 { return float64(store.Len()) })

	v := viewer.NewForDocument(cfg.Viewer.Endpoint, cfg.Viewer.SurfaceID, doc, store,
		viewer.WithMetrics(m),
		viewer.WithHandshakeTimeout(cfg.Viewer.HandshakeTimeout),
		viewer.WithReadLimit(cfg.Viewer.ReadLimit),
	)

	srv := monitor.NewServer(cfg.Monitor, v, img)
	httpServer := &http.Server{
		Addr:              cfg.Monitor.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Viewer.AutoStart {
		if err := v.StartContext(ctx); err != nil {
			// The monitor stays up so the stream can be started later
			logger.Warn("Main", "Auto start failed: %v", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Main", "Monitor listening on %s (surface %q, endpoint %s)",
			cfg.Monitor.Addr, cfg.Viewer.SurfaceID, cfg.Viewer.Endpoint)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Main", "Shutting down...")
		v.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("Main", "Viewer stopped")
}
