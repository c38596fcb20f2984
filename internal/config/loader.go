package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROOMLINE_CLIENT_TOKEN.
const EnvPrefix = "ROOMLINE"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// BindFlag lets a command-line flag override key when the flag was set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Server.DBPath = expandTilde(cfg.Server.DBPath)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "roomline"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "roomline"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Explicit bindings, Unmarshal ignores AutomaticEnv for keys it has not seen.
	for _, key := range configKeys {
		_ = v.BindEnv(key, EnvVar(key))
	}

	v.AutomaticEnv()
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("client.server_url", cfg.Client.ServerURL)
	v.SetDefault("client.ws_url", cfg.Client.WSURL)
	v.SetDefault("client.room_id", cfg.Client.RoomID)
	v.SetDefault("client.token", cfg.Client.Token)
	v.SetDefault("client.request_timeout", cfg.Client.RequestTimeout)
	v.SetDefault("client.heartbeat", cfg.Client.Heartbeat)
	v.SetDefault("client.reconnect_interval", cfg.Client.ReconnectInterval)

	v.SetDefault("timeline.page_size", cfg.Timeline.PageSize)
	v.SetDefault("timeline.gap", cfg.Timeline.Gap)
	v.SetDefault("timeline.release_loading_on_error", cfg.Timeline.ReleaseLoadingOnError)

	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.db_path", cfg.Server.DBPath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("tui.theme", cfg.TUI.Theme)
	v.SetDefault("tui.load_threshold", cfg.TUI.LoadThreshold)
	v.SetDefault("tui.title", cfg.TUI.Title)
	v.SetDefault("tui.idle_after", cfg.TUI.IdleAfter)
}

var configKeys = []string{
	"client.server_url",
	"client.ws_url",
	"client.room_id",
	"client.token",
	"client.request_timeout",
	"client.heartbeat",
	"client.reconnect_interval",
	"timeline.page_size",
	"timeline.gap",
	"timeline.release_loading_on_error",
	"server.listen",
	"server.db_path",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"tui.theme",
	"tui.load_threshold",
	"tui.title",
	"tui.idle_after",
}

// EnvVar converts a config key to its environment variable: client.token -> ROOMLINE_CLIENT_TOKEN.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// AllSettings returns the merged settings, for display.
func (l *Loader) AllSettings() map[string]any {
	return l.v.AllSettings()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}
