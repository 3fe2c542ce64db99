// Package config provides configuration management for the bridge.
// Supports TOML configuration files with command-line flag and environment
// variable overrides; environment variables take precedence over
// command-line flags per spec.md §6.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/slackirc/bridge/pkg/bridgeerr"
)

// Config is the configuration record the bridge core consumes. It mirrors
// the CLI surface of spec.md §6 field for field; the outer shell that
// parses argv is out of scope for this package: Load reads defaults and the
// TOML file, ApplyEnv overlays the environment, and cmd/bridge applies the
// command-line flags.
type Config struct {
	Port              int      `toml:"port" env:"SLACKIRC_PORT"`
	BindIP            string   `toml:"bind_ip" env:"SLACKIRC_BIND_IP"`
	OverrideLocalIP   bool     `toml:"override_local_ip" env:"OVERRIDE_LOCAL_IP"`
	TokenFile         string   `toml:"token_file" env:"SLACKIRC_TOKEN_FILE"`
	CookieFile        string   `toml:"cookie_file" env:"SLACKIRC_COOKIE_FILE"`
	Autojoin          bool     `toml:"autojoin" env:"SLACKIRC_AUTOJOIN"`
	NoUserlist        bool     `toml:"no_userlist" env:"SLACKIRC_NO_USERLIST"`
	IgnoredChannels   []string `toml:"ignored_channels" env:"SLACKIRC_IGNORED_CHANNELS"`
	DownloadsDir      string   `toml:"downloads_dir" env:"SLACKIRC_DOWNLOADS_DIR"`
	FormattedMaxLines int      `toml:"formatted_max_lines" env:"SLACKIRC_FORMATTED_MAX_LINES"`
	StatusFile        string   `toml:"status_file" env:"STATUS_FILE"`
	SilencedYellers   []string `toml:"silenced_yellers" env:"SLACKIRC_SILENCED_YELLERS"`
	NoRejoinOnMention bool     `toml:"no_rejoin_on_mention" env:"SLACKIRC_NO_REJOIN_ON_MENTION"`
	ControlSocketPath string   `toml:"control_socket_path" env:"SLACKIRC_CONTROL_SOCKET"`
	Debug             bool     `toml:"debug" env:"SLACKIRC_DEBUG"`
	LogSuffix         string   `toml:"log_suffix" env:"SLACKIRC_LOG_SUFFIX"`
}

// Default returns the baseline configuration before file/env/flag overlays.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Port:              9007,
		BindIP:            "127.0.0.1",
		Autojoin:          true,
		DownloadsDir:      filepath.Join(homeDir, ".slackirc", "downloads"),
		FormattedMaxLines: 5,
		StatusFile:        filepath.Join(homeDir, ".slackirc", "status.json"),
		ControlSocketPath: filepath.Join(homeDir, ".slackirc", "control.sock"),
	}
}

// Paths returns the default configuration file paths to check, in order.
func Paths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".slackirc", "config.toml"),
		filepath.Join("/etc", "slackirc", "config.toml"),
		"./config.toml",
	}
}

// Load builds a Config from Default plus the first existing file in Paths
// (or path, if non-empty). It does not apply environment or command-line
// overrides: per spec.md §6, "environment variables override command-line
// for each field", so the caller must apply flag overrides first and then
// ApplyEnv last, to give environment variables the final say.
func Load(path string) (*Config, error) {
	cfg := Default()

	candidates := Paths()
	if path != "" {
		candidates = []string{path}
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(p, cfg); err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.KindConfig, "parse config file "+p, err)
		}
		break
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg, field by field. Callers
// that also support command-line flags must apply this after the flag
// overlay so environment variables take precedence, per spec.md §6.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("SLACKIRC_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v, ok := os.LookupEnv("SLACKIRC_BIND_IP"); ok {
		cfg.BindIP = v
	}
	if _, ok := os.LookupEnv("OVERRIDE_LOCAL_IP"); ok {
		cfg.OverrideLocalIP = true
	}
	if v, ok := os.LookupEnv("SLACKIRC_TOKEN_FILE"); ok {
		cfg.TokenFile = v
	}
	if v, ok := os.LookupEnv("SLACKIRC_COOKIE_FILE"); ok {
		cfg.CookieFile = v
	}
	if v, ok := os.LookupEnv("SLACKIRC_AUTOJOIN"); ok {
		cfg.Autojoin = v != "" && v != "0" && v != "false"
	}
	if v, ok := os.LookupEnv("SLACKIRC_NO_USERLIST"); ok {
		cfg.NoUserlist = v != "" && v != "0" && v != "false"
	}
	if v, ok := os.LookupEnv("SLACKIRC_DOWNLOADS_DIR"); ok {
		cfg.DownloadsDir = v
	}
	if v, ok := os.LookupEnv("SLACKIRC_FORMATTED_MAX_LINES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FormattedMaxLines = n
		}
	}
	if v, ok := os.LookupEnv("STATUS_FILE"); ok {
		cfg.StatusFile = v
	}
	if v, ok := os.LookupEnv("SLACKIRC_NO_REJOIN_ON_MENTION"); ok {
		cfg.NoRejoinOnMention = v != "" && v != "0" && v != "false"
	}
	if v, ok := os.LookupEnv("SLACKIRC_CONTROL_SOCKET"); ok {
		cfg.ControlSocketPath = v
	}
	if v, ok := os.LookupEnv("SLACKIRC_DEBUG"); ok {
		cfg.Debug = v != "" && v != "0" && v != "false"
	}
	if v, ok := os.LookupEnv("SLACKIRC_LOG_SUFFIX"); ok {
		cfg.LogSuffix = v
	}
}

// Validate enforces the invariants of spec.md §6: a bind address outside
// 127.0.0.0/8 is refused unless OverrideLocalIP is set, required paths are
// present, and the downloads directory is writable (creating it if absent).
func (c *Config) Validate() error {
	if c.TokenFile == "" {
		return bridgeerr.New(bridgeerr.KindConfig, "token_file is required")
	}
	if _, err := os.Stat(c.TokenFile); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindConfig, "token file unreadable", err)
	}
	if c.CookieFile != "" {
		if _, err := os.Stat(c.CookieFile); err != nil {
			return bridgeerr.Wrap(bridgeerr.KindConfig, "cookie file unreadable", err)
		}
	}

	ip := net.ParseIP(c.BindIP)
	if ip == nil {
		return bridgeerr.New(bridgeerr.KindConfig, "bind_ip is not a valid IP address")
	}
	if !ip.IsLoopback() && !c.OverrideLocalIP {
		return bridgeerr.New(bridgeerr.KindConfig, "refusing to bind a non-loopback address without OVERRIDE_LOCAL_IP")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return bridgeerr.New(bridgeerr.KindConfig, "port must be between 1 and 65535")
	}

	if err := ensureWritableDir(c.DownloadsDir); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindConfig, "downloads_dir", err)
	}

	if c.StatusFile == "" {
		return bridgeerr.New(bridgeerr.KindConfig, "status_file is required")
	}
	if err := ensureWritableDir(filepath.Dir(c.StatusFile)); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindConfig, "status_file directory", err)
	}

	if c.ControlSocketPath != "" {
		if err := ensureWritableDir(filepath.Dir(c.ControlSocketPath)); err != nil {
			return bridgeerr.Wrap(bridgeerr.KindConfig, "control_socket_path directory", err)
		}
	}

	if c.FormattedMaxLines <= 0 {
		return bridgeerr.New(bridgeerr.KindConfig, "formatted_max_lines must be positive")
	}

	return nil
}

func ensureWritableDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o750)
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
