package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claude/physiotrack/internal/models"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Backend   BackendConfig   `yaml:"backend"`
	User      UserConfig      `yaml:"user"`
	Camera    CameraConfig    `yaml:"camera"`
	Session   SessionConfig   `yaml:"session"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Media     MediaConfig     `yaml:"media"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	APIKey  string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// UserConfig identifies who sessions are saved for. An empty ID keeps
// results local.
type UserConfig struct {
	ID string `yaml:"id"`
}

type CameraConfig struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type SessionConfig struct {
	Exercise         models.Exercise `yaml:"exercise"`
	Ailment          string          `yaml:"ailment"`
	Side             string          `yaml:"side"`
	SampleInterval   time.Duration   `yaml:"sample_interval"`
	WatchdogInterval time.Duration   `yaml:"watchdog_interval"`
	PauseThreshold   time.Duration   `yaml:"pause_threshold"`
	FeedbackLimit    int             `yaml:"feedback_limit"`
	JPEGQuality      int             `yaml:"jpeg_quality"`
}

type OverlayConfig struct {
	Visibility float64 `yaml:"visibility"`
	FontPath   string  `yaml:"font_path"`
	FontSize   float64 `yaml:"font_size"`
}

// MediaConfig holds the reference media and audio cue tables.
type MediaConfig struct {
	Reference map[string]string `yaml:"reference"`
	Fallback  string            `yaml:"fallback"`
	Cues      map[string]string `yaml:"cues"`
	Player    []string          `yaml:"player"`
}

type LedgerConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads config from a YAML file, applies defaults, then environment
// variable overrides. Env vars use the prefix PHYSIOTRACK_:
//
//	PHYSIOTRACK_SERVER_HOST, PHYSIOTRACK_SERVER_PORT, PHYSIOTRACK_API_KEY,
//	PHYSIOTRACK_BACKEND_URL, PHYSIOTRACK_USER_ID,
//	PHYSIOTRACK_CAMERA_DEVICE, PHYSIOTRACK_SESSION_SIDE,
//	PHYSIOTRACK_TS_ENABLED, PHYSIOTRACK_TS_HOSTNAME, PHYSIOTRACK_LEDGER_DIR
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// FromEnv builds a config from defaults and environment variables only.
func FromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used for anything a file leaves unset.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Enabled: true, Host: "127.0.0.1", Port: 8090},
		Tailscale: TailscaleConfig{Hostname: "physiotrack", StateDir: "tsnet-state"},
		Backend:   BackendConfig{URL: "http://localhost:8000", Timeout: 30 * time.Second},
		Camera:    CameraConfig{Device: "0", Width: 640, Height: 480},
		Session: SessionConfig{
			Side:             string(models.SideAuto),
			SampleInterval:   500 * time.Millisecond,
			WatchdogInterval: time.Second,
			PauseThreshold:   5 * time.Second,
			FeedbackLimit:    20,
			JPEGQuality:      80,
		},
		Overlay: OverlayConfig{Visibility: 0.6, FontSize: 16},
		Ledger:  LedgerConfig{Dir: ".physiotrack"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PHYSIOTRACK_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PHYSIOTRACK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PHYSIOTRACK_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PHYSIOTRACK_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("PHYSIOTRACK_USER_ID"); v != "" {
		cfg.User.ID = v
	}
	if v := os.Getenv("PHYSIOTRACK_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("PHYSIOTRACK_SESSION_SIDE"); v != "" {
		cfg.Session.Side = v
	}
	if v := os.Getenv("PHYSIOTRACK_TS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("PHYSIOTRACK_TS_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("PHYSIOTRACK_LEDGER_DIR"); v != "" {
		cfg.Ledger.Dir = v
	}
}

func (c *Config) validate() error {
	if c.Server.Enabled && !c.Tailscale.Enabled && c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		return fmt.Errorf("backend.url must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Camera.Device == "" {
		return fmt.Errorf("camera.device is required")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera.width and camera.height must be positive")
	}
	if _, err := models.ParseSide(c.Session.Side); err != nil {
		return fmt.Errorf("session.side: %w", err)
	}
	if c.Session.SampleInterval <= 0 || c.Session.WatchdogInterval <= 0 || c.Session.PauseThreshold <= 0 {
		return fmt.Errorf("session intervals must be positive")
	}
	if c.Session.JPEGQuality < 1 || c.Session.JPEGQuality > 100 {
		return fmt.Errorf("session.jpeg_quality must be between 1 and 100")
	}
	if c.Overlay.Visibility < 0 || c.Overlay.Visibility >= 1 {
		return fmt.Errorf("overlay.visibility must be in [0, 1)")
	}
	if c.Session.Exercise.Name != "" {
		if err := c.Session.Exercise.Validate(); err != nil {
			return fmt.Errorf("session.exercise: %w", err)
		}
	}
	return nil
}

// Addr is the control API listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
