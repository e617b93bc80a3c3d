package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShellAddicted/wsCamera/internal/camera"
	"github.com/ShellAddicted/wsCamera/internal/config"
	"github.com/ShellAddicted/wsCamera/internal/logger"
)

func main() {
	configPath := config.PathFromArgs(os.Args[1:])
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the file
	flag.String("config", configPath, "YAML config file")
	flag.StringVar(&cfg.Camera.Addr, "http", cfg.Camera.Addr, "HTTP server address (serves /ws and the document root)")
	flag.StringVar(&cfg.Camera.DocumentRoot, "document-root", cfg.Camera.DocumentRoot, "Static files served at / (empty disables)")
	flag.StringVar(&cfg.Camera.Source, "source", cfg.Camera.Source, `Frame source: "pattern", "-" for an MJPEG stream on stdin, or an MJPEG file`)
	flag.IntVar(&cfg.Camera.Width, "width", cfg.Camera.Width, "Test pattern width")
	flag.IntVar(&cfg.Camera.Height, "height", cfg.Camera.Height, "Test pattern height")
	flag.IntVar(&cfg.Camera.FPS, "fps", cfg.Camera.FPS, "Test pattern frame rate")
	flag.IntVar(&cfg.Camera.Quality, "quality", cfg.Camera.Quality, "Test pattern JPEG quality")
	flag.IntVar(&cfg.Camera.QueueSize, "queue", cfg.Camera.QueueSize, "Frames buffered between capture and dispatch")
	flag.BoolVar(&cfg.Camera.ShowFPS, "show-fps", cfg.Camera.ShowFPS, "Log the capture frame rate every 60 frames")
	flag.TextVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&cfg.Log.Color, "log-color", cfg.Log.Color, "Enable colored log output")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger.Init(cfg.Log.Level, os.Stderr, cfg.Log.Color)

	src, closer, err := openSource(cfg.Camera)
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}
	defer closer.Close()

	srv := camera.NewServer(src, camera.Options{
		DocumentRoot: cfg.Camera.DocumentRoot,
		QueueSize:    cfg.Camera.QueueSize,
		ShowFPS:      cfg.Camera.ShowFPS,
	})

	httpServer := &http.Server{
		Addr:              cfg.Camera.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Main", "Camera server starting...")
	logger.Info("Main", "  Source: %s", cfg.Camera.Source)
	logger.Info("Main", "  HTTP server: %s (ws endpoint /ws)", cfg.Camera.Addr)
	logger.Info("Main", "  Document root: %s", cfg.Camera.DocumentRoot)
	logger.Info("Main", "  Log level: %s", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Main", "Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("Main", "Streaming stopped")
}

func openSource(cfg config.CameraConfig) (camera.Source, io.Closer, error) {
	switch cfg.Source {
	case "", "pattern":
		return camera.PatternSource{
			Width:   cfg.Width,
			Height:  cfg.Height,
			FPS:     cfg.FPS,
			Quality: cfg.Quality,
		}, io.NopCloser(nil), nil
	case "-":
		return camera.ReaderSource{R: os.Stdin}, io.NopCloser(nil), nil
	default:
		f, err := os.Open(cfg.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Source, err)
		}
		return camera.ReaderSource{R: f}, f, nil
	}
}
