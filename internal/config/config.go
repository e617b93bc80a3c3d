package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShellAddicted/wsCamera/internal/logger"
)

// Config is the runtime configuration shared by both commands.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Monitor MonitorConfig `yaml:"monitor"`
	Camera  CameraConfig  `yaml:"camera"`
}

// LogConfig controls the process-wide logger.
type LogConfig struct {
	Level logger.LogLevel `yaml:"level"`
	Color bool            `yaml:"color"`
}

// ViewerConfig describes the stream a viewer binds to.
type ViewerConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	SurfaceID        string        `yaml:"surface_id"`
	AutoStart        bool          `yaml:"auto_start"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// MonitorConfig defines the HTTP monitor that displays the surface.
type MonitorConfig struct {
	Addr           string        `yaml:"addr"`
	Origin         string        `yaml:"origin"`
	StatusInterval time.Duration `yaml:"status_interval"`
	KeepAlive      time.Duration `yaml:"keepalive"`
}

// CameraConfig defines the frame source server.
type CameraConfig struct {
	Addr         string `yaml:"addr"`
	DocumentRoot string `yaml:"document_root"`
	Source       string `yaml:"source"` // "pattern", "-" for stdin, or a file path
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	Quality      int    `yaml:"quality"`
	QueueSize    int    `yaml:"queue_size"`
	ShowFPS      bool   `yaml:"show_fps"`
}

// Default returns a config for the stock camera page: a 640x480
// 30fps MJPEG stream on :8000/ws viewed in an element called "camview".
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: logger.INFO,
			Color: true,
		},
		Viewer: ViewerConfig{
			Endpoint:         "ws://localhost:8000/ws",
			SurfaceID:        "camview",
			AutoStart:        true,
			HandshakeTimeout: 10 * time.Second,
			ReadLimit:        8 << 20,
		},
		Monitor: MonitorConfig{
			Addr:           ":8080",
			Origin:         "http://localhost:8080",
			StatusInterval: 2 * time.Second,
			KeepAlive:      5 * time.Second,
		},
		Camera: CameraConfig{
			Addr:         ":8000",
			DocumentRoot: "./documentRoot",
			Source:       "pattern",
			Width:        640,
			Height:       480,
			FPS:          30,
			Quality:      75,
			QueueSize:    5,
		},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Viewer.SurfaceID == "" {
		errs = append(errs, errors.New("viewer.surface_id must not be empty"))
	}
	if c.Viewer.ReadLimit < 0 {
		errs = append(errs, errors.New("viewer.read_limit must not be negative"))
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be positive, got %d", c.Camera.FPS))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		errs = append(errs, fmt.Errorf("camera.quality must be within 1..100, got %d", c.Camera.Quality))
	}
	if c.Camera.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("camera.queue_size must be positive, got %d", c.Camera.QueueSize))
	}
	if c.Monitor.StatusInterval <= 0 {
		errs = append(errs, errors.New("monitor.status_interval must be positive"))
	}
	return errors.Join(errs...)
}

// PathFromArgs returns the value of a -config flag in args, so the file can
// be loaded before the remaining flags override it.
func PathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
