package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Media    MediaConfig
	Watcher  WatcherConfig
	Liveness LivenessConfig
	Playback PlaybackConfig
	WiFi     WiFiConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	PublicDir          string // optional static web UI directory; empty = not served
}

// MediaConfig holds the backing media directory settings.
type MediaConfig struct {
	Dir         string
	MaxUploadMB int64
}

// WatcherConfig holds directory-watch settings.
type WatcherConfig struct {
	DebounceMS int // quiet period before a filesystem event is acted on
}

// LivenessConfig holds heartbeat sweep settings.
type LivenessConfig struct {
	SweepIntervalSec int
	StaleAfterSec    int
	ReapControllers  bool // when false, controller sessions are exempt from the sweep
}

// PlaybackConfig holds command-handling policy.
type PlaybackConfig struct {
	StrictCommands bool // when true, unknown command types are rejected instead of echoed
}

// WiFiConfig holds optional network credentials for the join QR code.
type WiFiConfig struct {
	SSID     string
	Password string
	Security string // WPA, WEP or nopass
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			PublicDir:          getEnv("PUBLIC_DIR", "public"),
		},
		Media: MediaConfig{
			Dir:         getEnv("MEDIA_DIR", "media"),
			MaxUploadMB: int64(getEnvInt("MAX_UPLOAD_MB", 2048)),
		},
		Watcher: WatcherConfig{
			DebounceMS: getEnvInt("WATCH_DEBOUNCE_MS", 1000),
		},
		Liveness: LivenessConfig{
			SweepIntervalSec: getEnvInt("LIVENESS_SWEEP_SEC", 30),
			StaleAfterSec:    getEnvInt("LIVENESS_STALE_SEC", 90),
			ReapControllers:  getEnvBool("REAP_CONTROLLERS", false),
		},
		Playback: PlaybackConfig{
			StrictCommands: getEnvBool("COMMAND_STRICT", false),
		},
		WiFi: WiFiConfig{
			SSID:     getEnv("WIFI_SSID", ""),
			Password: getEnv("WIFI_PASSWORD", ""),
			Security: getEnv("WIFI_SECURITY", "WPA"),
		},
	}

	if cfg.Watcher.DebounceMS <= 0 {
		return nil, fmt.Errorf("WATCH_DEBOUNCE_MS must be positive, got %d", cfg.Watcher.DebounceMS)
	}
	if cfg.Liveness.StaleAfterSec <= 0 || cfg.Liveness.SweepIntervalSec <= 0 {
		return nil, fmt.Errorf("liveness intervals must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
