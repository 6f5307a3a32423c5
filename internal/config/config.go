// Package config provides configuration loading and defaults for safesave.
//
// Configuration is loaded from a TOML file in the user's data directory. It
// controls how saves are performed (permissions, reserved-name policy,
// in-place paths), where temporary files go, which read devices are mounted
// and how logging behaves.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/safesave/internal/atomicfile"
	"tools.zach/dev/safesave/internal/migrate"
	"tools.zach/dev/safesave/internal/paths"
)

// Reserved-name policies for [SaveConfig.ReservedNames].
const (
	ReservedAuto   = "auto"
	ReservedAlways = "always"
	ReservedNever  = "never"
)

// builtinSchemes are served by built-in devices and cannot be sandboxes.
var builtinSchemes = map[string]bool{"http": true, "https": true, "ipc": true, "mem": true}

// schemeRegex validates sandbox scheme names.
var schemeRegex = regexp.MustCompile(`^[a-z][a-z0-9+.-]+$`)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Save holds settings for saving files.
	Save SaveConfig `toml:"save"`
	// Temp holds settings for anonymous temporary files.
	Temp TempConfig `toml:"temp"`
	// Read holds read device settings.
	Read ReadConfig `toml:"read"`
	// Serve holds settings for the IPC device server.
	Serve ServeConfig `toml:"serve"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// SaveConfig holds settings for saving files.
type SaveConfig struct {
	// FileMode is the octal permission for newly created files.
	FileMode string `toml:"file_mode"`
	// ReservedNames controls the Windows device-name check: auto, always, never.
	ReservedNames string `toml:"reserved_names"`
	// InPlace lists glob patterns of paths written in place instead of
	// through a temporary file.
	InPlace []string `toml:"in_place"`
}

// TempConfig holds settings for anonymous temporary files.
type TempConfig struct {
	// Dir is where temporary files are created. Empty means the OS default.
	Dir string `toml:"dir,omitempty"`
	// Template is the file name pattern; a trailing run of X is randomized.
	Template string `toml:"template"`
	// Keep disables removal of the temporary file on close.
	Keep bool `toml:"keep"`
}

// ReadConfig holds read device settings.
type ReadConfig struct {
	// HTTPRetryMax is the number of retries for http:// and https:// reads.
	HTTPRetryMax int `toml:"http_retry_max"`
	// HTTPTimeoutSeconds bounds each HTTP attempt.
	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`
	// IPCEndpoint overrides the socket or pipe used for ipc:// reads.
	IPCEndpoint string `toml:"ipc_endpoint,omitempty"`
	// Sandboxes maps extra schemes to read-only directory roots.
	Sandboxes map[string]string `toml:"sandboxes,omitempty"`
}

// ServeConfig holds settings for the IPC device server.
type ServeConfig struct {
	// Root is the directory served to ipc:// readers. Empty means the
	// current directory at startup.
	Root string `toml:"root,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Save: SaveConfig{
			FileMode:      "0644",
			ReservedNames: ReservedAuto,
			InPlace:       []string{},
		},
		Temp: TempConfig{
			Template: "safesave.XXXXXX",
		},
		Read: ReadConfig{
			HTTPRetryMax:       2,
			HTTPTimeoutSeconds: 10,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns the Config written to config.default.toml. Options
// without a useful default are documented as comments by genconfig instead.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parse(path, data)
}

// parse migrates, decodes and validates data read from path. A migrated
// file is backed up to path.bak and rewritten.
func parse(path string, data []byte) (*Config, error) {
	version := PeekVersion(data)

	migrated := migrate.Config.NeedsMigration(version)
	if migrated {
		if backupErr := atomicfile.Write(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
	}
	data, _, err := migrate.Config.Run(data, version)
	if err != nil {
		return nil, fmt.Errorf("migrate config: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := cfg.WriteFile(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// WriteFile writes the config to disk as TOML using atomic file write.
func (c *Config) WriteFile(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if _, err := ParseFileMode(c.Save.FileMode); err != nil {
		return err
	}

	switch c.Save.ReservedNames {
	case ReservedAuto, ReservedAlways, ReservedNever:
	default:
		return fmt.Errorf("invalid save.reserved_names %q: must be auto, always, or never", c.Save.ReservedNames)
	}

	for _, pattern := range c.Save.InPlace {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid save.in_place pattern %q", pattern)
		}
	}

	if strings.ContainsAny(c.Temp.Template, `/\`) {
		return fmt.Errorf("invalid temp.template %q: must be a file name, set temp.dir for the directory", c.Temp.Template)
	}
	if strings.Contains(c.Temp.Template, "*") {
		return fmt.Errorf("invalid temp.template %q: use a run of X for the unique part", c.Temp.Template)
	}

	if c.Read.HTTPRetryMax <= 0 {
		return fmt.Errorf("read.http_retry_max must be > 0, got %d", c.Read.HTTPRetryMax)
	}

	if c.Read.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("read.http_timeout_seconds must be > 0, got %d", c.Read.HTTPTimeoutSeconds)
	}

	for scheme, root := range c.Read.Sandboxes {
		if !schemeRegex.MatchString(scheme) {
			return fmt.Errorf("invalid read.sandboxes scheme %q: must be lowercase, at least two characters, starting with a letter", scheme)
		}
		if builtinSchemes[scheme] {
			return fmt.Errorf("read.sandboxes scheme %q is reserved for a built-in device", scheme)
		}
		if root == "" {
			return fmt.Errorf("read.sandboxes.%s: root must not be empty", scheme)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// ParseFileMode parses an octal permission string such as "0644" or "600".
func ParseFileMode(s string) (fs.FileMode, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("invalid save.file_mode %q: must be an octal permission like \"0644\"", s)
	}
	return fs.FileMode(n), nil
}

// FilePerm returns the configured permission for new files. Call after
// [Config.Validate].
func (c *Config) FilePerm() fs.FileMode {
	perm, err := ParseFileMode(c.Save.FileMode)
	if err != nil {
		return 0o644
	}
	return perm
}

// CheckReservedNames reports whether saves should reject Windows device
// names on this platform.
func (c *Config) CheckReservedNames() bool {
	switch c.Save.ReservedNames {
	case ReservedAlways:
		return true
	case ReservedNever:
		return false
	default:
		return runtime.GOOS == "windows"
	}
}

// IsInPlace reports whether path matches any save.in_place pattern. Paths
// are matched with forward slashes on every platform.
func (c *Config) IsInPlace(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range c.Save.InPlace {
		matched, err := doublestar.Match(pattern, slashed)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// HTTPTimeout returns the per-attempt HTTP timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Read.HTTPTimeoutSeconds) * time.Second
}
