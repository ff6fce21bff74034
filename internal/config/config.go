package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/jcdickinson/docref/internal/docerr"
	"github.com/jcdickinson/docref/internal/external"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const appName = "docref"

type OutputConfig struct {
	Extension string `mapstructure:"extension"`
	Module    string `mapstructure:"module"`
	Format    string `mapstructure:"format"`
}

// LinkConfig is one external documentation set. A bare string in the config
// file is taken as its URL.
type LinkConfig struct {
	URL         string `mapstructure:"url"`
	PackageList string `mapstructure:"package_list"`
	JDKVersion  int    `mapstructure:"jdk_version"`
	Format      string `mapstructure:"format"`
}

func (l LinkConfig) Link() external.Link {
	return external.Link{
		URL:         l.URL,
		PackageList: l.PackageList,
		JDKVersion:  l.JDKVersion,
		Format:      l.Format,
	}
}

type ExternalConfig struct {
	Offline         bool         `mapstructure:"offline"`
	TimeoutSeconds  int          `mapstructure:"timeout_seconds"`
	MaxRedirects    int          `mapstructure:"max_redirects"`
	CacheTTLSeconds int          `mapstructure:"cache_ttl_seconds"`
	Links           []LinkConfig `mapstructure:"links"`
}

func (e ExternalConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExternalConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

// ExternalLinks converts the configured links for the loader.
func (e ExternalConfig) ExternalLinks() []external.Link {
	links := make([]external.Link, len(e.Links))
	for i, l := range e.Links {
		links[i] = l.Link()
	}
	return links
}

type DaemonConfig struct {
	ExpirationSeconds int `mapstructure:"expiration_seconds"`
}

type Config struct {
	Output   OutputConfig   `mapstructure:"output"`
	External ExternalConfig `mapstructure:"external"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
}

// cacheBase returns the base cache directory for docref.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/docref as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// DBPath returns the path to the DuckDB database file.
func DBPath() string {
	return filepath.Join(cacheBase(), "db.db")
}

// CASDir returns the path to the manifest body store.
func CASDir() string {
	return filepath.Join(cacheBase(), "cas")
}

// LogPath returns the path to the daemon's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "daemon.log")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName, "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/run/user/%d", os.Getuid()), appName, "daemon.sock")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.extension", ".html")
	v.SetDefault("output.format", "html-v1")
	v.SetDefault("external.offline", false)
	v.SetDefault("external.timeout_seconds", int(external.DefaultTimeout/time.Second))
	v.SetDefault("external.max_redirects", external.DefaultMaxRedirects)
	v.SetDefault("external.cache_ttl_seconds", 24*60*60)
	v.SetDefault("daemon.expiration_seconds", 600)
}

func InitializeViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, appName))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", appName))
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("DOCREF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func stringToLinkConfigHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(LinkConfig{}) {
			return data, nil
		}
		if f.Kind() == reflect.String {
			return LinkConfig{URL: data.(string)}, nil
		}
		return data, nil
	}
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}
	return decode(viper.AllSettings())
}

func decode(settings map[string]interface{}) (*Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToLinkConfigHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects option values the engine cannot honour.
func (c *Config) Validate() error {
	if ext := c.Output.Extension; ext != "" && !strings.HasPrefix(ext, ".") {
		return &docerr.ConfigError{Option: "output.extension", Value: ext, Message: "must start with a dot"}
	}
	if c.Output.Format != "" {
		if _, ok := external.FormatByName(c.Output.Format); !ok {
			return &docerr.ConfigError{Option: "output.format", Value: c.Output.Format, Message: "unknown format"}
		}
	}
	if c.External.TimeoutSeconds < 0 {
		return &docerr.ConfigError{Option: "external.timeout_seconds", Value: c.External.TimeoutSeconds, Message: "must not be negative"}
	}
	if c.External.MaxRedirects < 0 {
		return &docerr.ConfigError{Option: "external.max_redirects", Value: c.External.MaxRedirects, Message: "must not be negative"}
	}
	if c.External.CacheTTLSeconds < 0 {
		return &docerr.ConfigError{Option: "external.cache_ttl_seconds", Value: c.External.CacheTTLSeconds, Message: "must not be negative"}
	}
	for i, l := range c.External.Links {
		opt := fmt.Sprintf("external.links[%d]", i)
		if l.URL == "" {
			return &docerr.ConfigError{Option: opt + ".url", Value: l.URL, Message: "required"}
		}
		if l.Format != "" {
			if _, ok := external.FormatByName(l.Format); !ok {
				return &docerr.ConfigError{Option: opt + ".format", Value: l.Format, Message: "unknown format"}
			}
		}
	}
	if c.Daemon.ExpirationSeconds <= 0 {
		return &docerr.ConfigError{Option: "daemon.expiration_seconds", Value: c.Daemon.ExpirationSeconds, Message: "must be positive"}
	}
	return nil
}
