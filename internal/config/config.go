// Package config provides configuration management for comicshare
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the COMICSHARE_ prefix and validation. It manages the
// host binding, cache sizes, the catalog location, logging and the list
// of shares served to peers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/comicshare/internal/share"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Default values applied by Load.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 7612
	DefaultMaxMessageSize     = 100000000
	DefaultShutdownTimeout    = 5 * time.Second
	DefaultProviderCacheSize  = 10
	DefaultPageCacheSize      = 64
	DefaultThumbnailCacheSize = 1024
	DefaultThumbnailHeight    = 512
	DefaultQuality            = 100
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Shares  []ShareConfig `mapstructure:"shares" yaml:"shares"`
}

type ServerConfig struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	Port               int           `mapstructure:"port" yaml:"port"`
	MaxMessageSize     int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	MaxConnections     int           `mapstructure:"max_connections" yaml:"max_connections"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CertFile           string        `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile            string        `mapstructure:"key_file" yaml:"key_file,omitempty"`
	ExternalAddress    string        `mapstructure:"external_address" yaml:"external_address,omitempty"`
	ProviderCacheSize  int           `mapstructure:"provider_cache_size" yaml:"provider_cache_size"`
	PageCacheSize      int           `mapstructure:"page_cache_size" yaml:"page_cache_size"`
	ThumbnailCacheSize int           `mapstructure:"thumbnail_cache_size" yaml:"thumbnail_cache_size"`
	ThumbnailHeight    int           `mapstructure:"thumbnail_height" yaml:"thumbnail_height"`
}

// Address returns the host:port the server binds.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// ShareConfig describes one share served to peers.
type ShareConfig struct {
	Name             string     `mapstructure:"name" yaml:"name"`
	Description      string     `mapstructure:"description" yaml:"description,omitempty"`
	Mode             share.Mode `mapstructure:"mode" yaml:"mode"`
	SharedLists      []string   `mapstructure:"shared_lists" yaml:"shared_lists,omitempty"`
	Password         string     `mapstructure:"password" yaml:"password,omitempty"`
	PageQuality      int        `mapstructure:"page_quality" yaml:"page_quality"`
	ThumbnailQuality int        `mapstructure:"thumbnail_quality" yaml:"thumbnail_quality"`
	Editable         bool       `mapstructure:"editable" yaml:"editable"`
	PrivateOnly      bool       `mapstructure:"private_only" yaml:"private_only"`
	Options          []string   `mapstructure:"options" yaml:"options,omitempty"`
}

// IsValidShare reports whether the share can be served: its name is a
// single URL-safe path segment, its mode is known and both qualities are
// within 0..100.
func (s ShareConfig) IsValidShare() bool {
	return s.Problem() == ""
}

// Problem describes why the share cannot be served, or returns "".
func (s ShareConfig) Problem() string {
	switch {
	case !IsSafeSegment(s.Name):
		return fmt.Sprintf("share name %q is not a single URL-safe path segment", s.Name)
	case !s.Mode.Valid():
		return fmt.Sprintf("share mode %q is not one of none, selected, all", s.Mode)
	case s.PageQuality < 0 || s.PageQuality > 100:
		return fmt.Sprintf("page quality %d is not in range 0-100", s.PageQuality)
	case s.ThumbnailQuality < 0 || s.ThumbnailQuality > 100:
		return fmt.Sprintf("thumbnail quality %d is not in range 0-100", s.ThumbnailQuality)
	default:
		return ""
	}
}

// ListIDs parses the shared list IDs.
func (s ShareConfig) ListIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(s.SharedLists))
	for _, raw := range s.SharedLists {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("share %q: invalid list id %q: %w", s.Name, raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Scope returns the resolver view of the share.
func (s ShareConfig) Scope() (share.Scope, error) {
	lists, err := s.ListIDs()
	if err != nil {
		return share.Scope{}, err
	}
	return share.Scope{
		Name:        s.Name,
		Mode:        s.Mode,
		SharedLists: lists,
		Editable:    s.Editable,
	}, nil
}

// IsSafeSegment reports whether name can be used unescaped as one URL
// path segment.
func IsSafeSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if url.PathEscape(name) != name {
		return false
	}
	return !strings.ContainsAny(name, "/?#%;:@&=+$,")
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	// Validate configuration values
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults fills every setting left unset.
func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.MaxMessageSize == 0 {
		config.Server.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.Server.ProviderCacheSize == 0 {
		config.Server.ProviderCacheSize = DefaultProviderCacheSize
	}
	if config.Server.PageCacheSize == 0 {
		config.Server.PageCacheSize = DefaultPageCacheSize
	}
	if config.Server.ThumbnailCacheSize == 0 {
		config.Server.ThumbnailCacheSize = DefaultThumbnailCacheSize
	}
	if config.Server.ThumbnailHeight == 0 {
		config.Server.ThumbnailHeight = DefaultThumbnailHeight
	}

	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.Format == "" {
		config.Logging.Format = DefaultLogFormat
	}

	for i := range config.Shares {
		s := &config.Shares[i]
		if s.Mode == "" {
			s.Mode = share.ModeAll
		}
		if mode, err := share.ParseMode(string(s.Mode)); err == nil {
			s.Mode = mode
		}
		if s.PageQuality == 0 && !shareKeySet(i, "page_quality") {
			s.PageQuality = DefaultQuality
		}
		if s.ThumbnailQuality == 0 && !shareKeySet(i, "thumbnail_quality") {
			s.ThumbnailQuality = DefaultQuality
		}
	}
}

// shareKeySet reports whether key was given for the share at index, so
// an explicit quality of 0 is kept.
func shareKeySet(index int, key string) bool {
	var entry interface{}
	switch raw := viper.Get("shares").(type) {
	case []interface{}:
		if index < len(raw) {
			entry = raw[index]
		}
	case []map[string]interface{}:
		if index < len(raw) {
			entry = raw[index]
		}
	}

	m, ok := entry.(map[string]interface{})
	if !ok {
		return false
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if config.Catalog.Path != "" {
		if err := validatePath(config.Catalog.Path); err != nil {
			return fmt.Errorf("catalog config: %w", err)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Validate port range (allow 0 for system-assigned ports in testing)
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	if config.MaxMessageSize < 0 {
		return fmt.Errorf("max_message_size must not be negative")
	}
	if config.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if config.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}
	if config.ProviderCacheSize < 0 || config.PageCacheSize < 0 || config.ThumbnailCacheSize < 0 {
		return fmt.Errorf("cache sizes must not be negative")
	}
	if config.ThumbnailHeight < 0 {
		return fmt.Errorf("thumbnail_height must not be negative")
	}

	if (config.CertFile == "") != (config.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}

	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level %q", config.Level)
	}

	switch strings.ToLower(config.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Format)
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\""}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
