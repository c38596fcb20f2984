// Package config handles roomline configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for roomline.
type Config struct {
	// Client settings for tail and history.
	Client ClientConfig `yaml:"client" mapstructure:"client"`

	// Timeline store tuning.
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`

	// Server settings for the development room server.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// ClientConfig describes how to reach the chat service.
type ClientConfig struct {
	// ServerURL is the HTTP base URL of the chat API.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`

	// WSURL is the websocket base URL. Derived from ServerURL when empty.
	WSURL string `yaml:"ws_url" mapstructure:"ws_url"`

	RoomID int64 `yaml:"room_id" mapstructure:"room_id"`

	// Token is sent as a bearer token and as the websocket token parameter.
	Token string `yaml:"token" mapstructure:"token"`

	RequestTimeout    time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	Heartbeat         time.Duration `yaml:"heartbeat" mapstructure:"heartbeat"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
}

type TimelineConfig struct {
	PageSize int           `yaml:"page_size" mapstructure:"page_size"`
	Gap      time.Duration `yaml:"gap" mapstructure:"gap"`

	// ReleaseLoadingOnError clears the loading flag when the first page fails.
	ReleaseLoadingOnError bool `yaml:"release_loading_on_error" mapstructure:"release_loading_on_error"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`

	// DBPath is the SQLite history file. Empty means in-memory.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains terminal UI settings.
type TUIConfig struct {
	Theme string `yaml:"theme" mapstructure:"theme"`

	// LoadThreshold is how many lines from the top trigger an older page load.
	LoadThreshold int `yaml:"load_threshold" mapstructure:"load_threshold"`

	// Title is the base terminal title restored after a new-message flash.
	Title string `yaml:"title" mapstructure:"title"`

	// IdleAfter is how long without keyboard input before the room counts as unattended
	// and new messages flash the title. Zero disables it.
	IdleAfter time.Duration `yaml:"idle_after" mapstructure:"idle_after"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Client: ClientConfig{
			ServerURL:         "http://127.0.0.1:8088",
			RoomID:            1,
			RequestTimeout:    10 * time.Second,
			Heartbeat:         30 * time.Second,
			ReconnectInterval: 2 * time.Second,
		},
		Timeline: TimelineConfig{
			PageSize: 20,
			Gap:      5 * time.Minute,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8088",
			DBPath: filepath.Join(homeDir, ".local", "share", "roomline", "history.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			Theme:         "default",
			LoadThreshold: 3,
			Title:         "roomline",
			IdleAfter:     2 * time.Minute,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Client.RoomID <= 0 {
		return fmt.Errorf("client.room_id must be positive")
	}
	if c.Timeline.PageSize < 1 || c.Timeline.PageSize > 100 {
		return fmt.Errorf("timeline.page_size must be between 1 and 100")
	}
	if c.Timeline.Gap < time.Second {
		return fmt.Errorf("timeline.gap must be at least 1s")
	}
	if c.Client.RequestTimeout < 0 {
		return fmt.Errorf("client.request_timeout must not be negative")
	}
	if c.Client.ReconnectInterval < 100*time.Millisecond {
		return fmt.Errorf("client.reconnect_interval must be at least 100ms")
	}
	if c.TUI.LoadThreshold < 0 {
		return fmt.Errorf("tui.load_threshold must not be negative")
	}
	if c.TUI.IdleAfter < 0 {
		return fmt.Errorf("tui.idle_after must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}
	return nil
}

// ErrNoServerURL is returned by ValidateClient when no chat service is configured.
var ErrNoServerURL = errors.New("client.server_url is required")

// ValidateClient checks the settings only the client commands need.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Client.ServerURL) == "" {
		return ErrNoServerURL
	}
	return nil
}

// WebsocketURL returns the push endpoint base, deriving it from ServerURL when unset.
func (c *Config) WebsocketURL() string {
	if c.Client.WSURL != "" {
		return strings.TrimRight(c.Client.WSURL, "/")
	}
	base := strings.TrimRight(c.Client.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// EnsureDirectories creates the directories of configured files.
func (c *Config) EnsureDirectories() error {
	for _, file := range []string{c.Server.DBPath, c.Logging.File} {
		if file == "" || file == ":memory:" {
			continue
		}
		dir := filepath.Dir(file)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
