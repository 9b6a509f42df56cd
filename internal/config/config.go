// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// Encadri terminal client.
//
// Configuration sources, in order of precedence:
//   - ENCADRI_* environment variables
//   - ~/.encadri/config.toml
//   - Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bahadhay/encadri-tui/internal/util"
)

// Defaults.
const (
	DefaultChatHubPath         = "/hubs/chat"
	DefaultNotificationHubPath = "/hubs/notifications"
	DefaultHistoryLimit        = 50
	DefaultTypingIntervalSecs  = 3
	DefaultNotificationLimit   = 50
)

// ErrNoIdentity indicates the config carries no usable user identity.
var ErrNoIdentity = errors.New("identity.email is not configured")

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete client configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Identity IdentityConfig `toml:"identity"`
	Chat     ChatConfig     `toml:"chat"`
	UI       UIConfig       `toml:"ui"`
}

// ServerConfig locates the backend and its two hub endpoints.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. "https://api.encadri.example".
	BaseURL string `toml:"base_url"`
	// ChatHubPath is appended to BaseURL for the chat hub.
	ChatHubPath string `toml:"chat_hub_path"`
	// NotificationHubPath is appended to BaseURL for the notification hub.
	NotificationHubPath string `toml:"notification_hub_path"`
}

// IdentityConfig is the identity carried on hub connections.
type IdentityConfig struct {
	Email string `toml:"email"`
	Name  string `toml:"name"`
}

// ChatConfig tunes the chat view.
type ChatConfig struct {
	// HistoryLimit bounds the history fetch on a conversation switch.
	HistoryLimit int `toml:"history_limit"`
	// TypingIntervalSecs is the minimum gap between typing signals.
	TypingIntervalSecs int `toml:"typing_interval_secs"`
	// NotificationLimit bounds the notification list seeded on connect.
	NotificationLimit int `toml:"notification_limit"`
	// CacheEnabled turns the local sqlite history cache on.
	CacheEnabled bool `toml:"cache_enabled"`
	// CachePath overrides the cache location (default ~/.encadri/cache.db).
	CachePath string `toml:"cache_path"`
}

// UIConfig tunes presentation.
type UIConfig struct {
	// Theme selects the color theme: "dark" or "light".
	Theme string `toml:"theme"`
	// ShowTimestamps toggles per-message timestamps.
	ShowTimestamps bool `toml:"show_timestamps"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:             "http://localhost:5000",
			ChatHubPath:         DefaultChatHubPath,
			NotificationHubPath: DefaultNotificationHubPath,
		},
		Chat: ChatConfig{
			HistoryLimit:       DefaultHistoryLimit,
			TypingIntervalSecs: DefaultTypingIntervalSecs,
			NotificationLimit:  DefaultNotificationLimit,
			CacheEnabled:       true,
		},
		UI: UIConfig{
			Theme:          "dark",
			ShowTimestamps: true,
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// ConfigDir returns the configuration directory (~/.encadri).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".encadri"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config from the default location, applying defaults and
// environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from path. A missing file yields defaults
// plus environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// applyEnv applies ENCADRI_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("ENCADRI_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("ENCADRI_EMAIL"); v != "" {
		c.Identity.Email = v
	}
	if v := os.Getenv("ENCADRI_NAME"); v != "" {
		c.Identity.Name = v
	}
	if v := os.Getenv("ENCADRI_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chat.HistoryLimit = n
		}
	}
	if v := os.Getenv("ENCADRI_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chat.CacheEnabled = b
		}
	}
	if v := os.Getenv("ENCADRI_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// fillDefaults backfills zero values left by a sparse config file.
func (c *Config) fillDefaults() {
	if c.Server.ChatHubPath == "" {
		c.Server.ChatHubPath = DefaultChatHubPath
	}
	if c.Server.NotificationHubPath == "" {
		c.Server.NotificationHubPath = DefaultNotificationHubPath
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = DefaultHistoryLimit
	}
	if c.Chat.TypingIntervalSecs <= 0 {
		c.Chat.TypingIntervalSecs = DefaultTypingIntervalSecs
	}
	if c.Chat.NotificationLimit <= 0 {
		c.Chat.NotificationLimit = DefaultNotificationLimit
	}
	if c.UI.Theme == "" {
		c.UI.Theme = "dark"
	}
}

// Validate checks the config for use by the client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Identity.Email) == "" {
		return ErrNoIdentity
	}
	if _, err := mail.ParseAddress(c.Identity.Email); err != nil {
		return fmt.Errorf("identity.email %q is not a valid address: %w", c.Identity.Email, err)
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url %q must be http or https", c.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url %q has no host", c.Server.BaseURL)
	}
	return nil
}

// Save writes the config atomically to path.
func (c *Config) Save(path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}

// =============================================================================
// DERIVED ENDPOINTS
// =============================================================================

// ChatHubURL returns the websocket URL of the chat hub.
func (c *Config) ChatHubURL() string {
	return wsURL(c.Server.BaseURL, c.Server.ChatHubPath)
}

// NotificationHubURL returns the websocket URL of the notification hub.
func (c *Config) NotificationHubURL() string {
	return wsURL(c.Server.BaseURL, c.Server.NotificationHubPath)
}

// CachePath returns the sqlite cache location.
func (c *Config) CachePath() (string, error) {
	if c.Chat.CachePath != "" {
		return c.Chat.CachePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent and appends
// the hub path.
func wsURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
