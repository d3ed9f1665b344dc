// Package config handles configuration loading and validation for htmlmirror.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dannyswat/htmlmirror"
)

// Config holds the complete mirror configuration.
type Config struct {
	// DocumentID identifies the remote document; the mirror file is named after it.
	DocumentID string `toml:"document_id" json:"document_id" yaml:"document_id"`

	// Collection is the remote collection the document lives in.
	Collection string `toml:"collection" json:"collection" yaml:"collection"`

	// Host is the server address. A bare host:port is upgraded to wss://.
	Host string `toml:"host" json:"host" yaml:"host"`

	// MountDir is the directory holding the mirror file.
	MountDir string `toml:"mount_dir" json:"mount_dir" yaml:"mount_dir"`

	// Remote connection configuration.
	Remote RemoteConfig `toml:"remote" json:"remote" yaml:"remote"`

	// Watch configuration for the mirror file.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Markup configuration for rendering the tree.
	Markup MarkupConfig `toml:"markup" json:"markup" yaml:"markup"`
}

// RemoteConfig holds transport and retry settings.
type RemoteConfig struct {
	// ReconnectDelayMs is the fixed delay before a reconnect attempt.
	ReconnectDelayMs int `toml:"reconnect_delay_ms" json:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`

	// MaxReconnects caps consecutive failed reconnects. 0 retries forever.
	MaxReconnects int `toml:"max_reconnects" json:"max_reconnects" yaml:"max_reconnects"`

	// HandshakeTimeoutMs bounds the websocket handshake.
	HandshakeTimeoutMs int `toml:"handshake_timeout_ms" json:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`

	// MaxFrameSize is the largest inbound frame in bytes.
	MaxFrameSize int64 `toml:"max_frame_size" json:"max_frame_size" yaml:"max_frame_size"`
}

// WatchConfig holds file watching configuration.
type WatchConfig struct {
	// DebounceMs is how long the file must be quiet before it is read.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// MarkupConfig holds rendering configuration.
type MarkupConfig struct {
	// VoidTags are rendered without an end tag.
	VoidTags []string `toml:"void_tags" json:"void_tags" yaml:"void_tags"`

	// KeyPlaceholder is how the remote side stores KeyLiteral inside attribute names.
	KeyPlaceholder string `toml:"key_placeholder" json:"key_placeholder" yaml:"key_placeholder"`

	// KeyLiteral is the character KeyPlaceholder stands for.
	KeyLiteral string `toml:"key_literal" json:"key_literal" yaml:"key_literal"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		DocumentID: "contenteditable",
		Collection: "webstrates",
		Host:       "ws://localhost:7007",
		MountDir:   "./documents",
		Remote: RemoteConfig{
			ReconnectDelayMs:   1000,
			MaxReconnects:      0,
			HandshakeTimeoutMs: 10000,
			MaxFrameSize:       20 * 1024 * 1024,
		},
		Watch: WatchConfig{
			DebounceMs: 50,
		},
		Markup: MarkupConfig{
			VoidTags:       append([]string(nil), htmlmirror.DefaultVoidTags...),
			KeyPlaceholder: "&dot;",
			KeyLiteral:     ".",
		},
	}
}

// Load reads a configuration file, choosing the decoder by extension. A
// missing file yields the defaults. Environment overrides are applied and the
// result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadConfigFromFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with HTMLMIRROR_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("HTMLMIRROR_ID"); v != "" {
		c.DocumentID = v
	}
	if v := os.Getenv("HTMLMIRROR_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("HTMLMIRROR_DIR"); v != "" {
		c.MountDir = v
	}
	if v := os.Getenv("HTMLMIRROR_RECONNECT_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Remote.ReconnectDelayMs = ms
		}
	}
}

var hostScheme = regexp.MustCompile(`^wss?://`)

// NormalizeHost keeps an explicit ws:// or wss:// scheme and upgrades anything
// else to wss://.
func NormalizeHost(host string) string {
	if hostScheme.MatchString(host) {
		return host
	}
	return "wss://" + host
}

// URL returns the websocket endpoint for the configured host.
func (c *Config) URL() string {
	return NormalizeHost(c.Host) + "/ws/"
}

// MountPoint returns the path of the mirror file.
func (c *Config) MountPoint() string {
	return filepath.Join(c.MountDir, c.DocumentID+".html")
}

// EnsureMountDir creates the mirror directory if it does not exist.
func (c *Config) EnsureMountDir() error {
	if err := os.MkdirAll(c.MountDir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", c.MountDir, err)
	}
	return nil
}

// ReconnectDelay returns the reconnect delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Remote.ReconnectDelayMs) * time.Millisecond
}

// HandshakeTimeout returns the websocket handshake timeout as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Remote.HandshakeTimeoutMs) * time.Millisecond
}

// Debounce returns the watch debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}
