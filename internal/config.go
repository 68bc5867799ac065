package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Presenter modes accepted in configuration.
const (
	PresenterAuto     = "auto"
	PresenterTerminal = "terminal"
	PresenterInbox    = "inbox"
	PresenterAccept   = "accept"
	PresenterReject   = "reject"
	PresenterNone     = "none"
)

// StoreConfig locates the durable trust store.
type StoreConfig struct {
	Type         string `yaml:"type"`
	Path         string `yaml:"path"`
	PasswordFile string `yaml:"password_file,omitempty"`
}

// DefaultStorePath returns the store file used for storeType when no path is
// configured. The memory store has no file.
func DefaultStorePath(storeType string) string {
	switch strings.ToLower(storeType) {
	case "jks":
		return filepath.Join(ConfigDir(), "truststore.jks")
	case "pkcs12", "p12":
		return filepath.Join(ConfigDir(), "truststore.p12")
	case "sqlite":
		return filepath.Join(ConfigDir(), "truststore.db")
	}
	return ""
}

// ResolvedPath is Path, or the default file for Type when Path is unset.
func (s StoreConfig) ResolvedPath() string {
	if s.Path != "" {
		return s.Path
	}
	return DefaultStorePath(s.Type)
}

// Config is the certtrust configuration file.
type Config struct {
	Store            StoreConfig   `yaml:"store"`
	TrustSystemCerts bool          `yaml:"trust_system_certs"`
	SystemRoots      string        `yaml:"system_roots"`
	Timeout          time.Duration `yaml:"timeout"`
	Listen           string        `yaml:"listen"`
	CoordinatorURL   string        `yaml:"coordinator_url,omitempty"`
	Foreground       bool          `yaml:"foreground"`
	Presenter        string        `yaml:"presenter"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
}

// ConfigDir returns the per-user certtrust directory.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "certtrust")
	}
	return ".certtrust"
}

// DefaultConfigPath is where LoadConfig looks when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfig returns the configuration used for unset keys.
func DefaultConfig() Config {
	return Config{
		Store:            StoreConfig{Type: "jks"},
		TrustSystemCerts: true,
		SystemRoots:      "system",
		Timeout:          60 * time.Second,
		Listen:           "127.0.0.1:8453",
		Presenter:        PresenterAuto,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadConfig reads the YAML file at path over DefaultConfig. An empty path
// reads DefaultConfigPath and tolerates it being absent; an explicit path
// must exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyFlags overrides cfg with every flag in fs that was set on the command
// line. Flags that are not defined on fs are ignored.
func (cfg *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v, err := fs.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("store-type", &cfg.Store.Type)
	str("store", &cfg.Store.Path)
	str("store-password-file", &cfg.Store.PasswordFile)
	boolean("trust-system-certs", &cfg.TrustSystemCerts)
	str("system-roots", &cfg.SystemRoots)
	str("listen", &cfg.Listen)
	str("coordinator", &cfg.CoordinatorURL)
	boolean("foreground", &cfg.Foreground)
	str("presenter", &cfg.Presenter)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	if f := fs.Lookup("timeout"); f != nil && f.Changed {
		v, err := fs.GetDuration("timeout")
		errs = append(errs, err)
		cfg.Timeout = v
	}
	return errors.Join(errs...)
}

// Validate reports configuration values that cannot work.
func (cfg Config) Validate() error {
	var errs []error
	switch strings.ToLower(cfg.Store.Type) {
	case "jks", "pkcs12", "p12", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported store.type %q (use jks, pkcs12, sqlite, or memory)", cfg.Store.Type))
	}
	switch cfg.SystemRoots {
	case "system", "mozilla":
	default:
		errs = append(errs, fmt.Errorf("unsupported system_roots %q (use system or mozilla)", cfg.SystemRoots))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout))
	}
	switch cfg.Presenter {
	case PresenterAuto, PresenterTerminal, PresenterInbox, PresenterAccept, PresenterReject, PresenterNone:
	default:
		errs = append(errs, fmt.Errorf("unsupported presenter %q", cfg.Presenter))
	}
	return errors.Join(errs...)
}
