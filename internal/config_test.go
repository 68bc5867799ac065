package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_OverDefaults(t *testing.T) {
	// WHY: Keys present in the file override defaults; absent keys keep
	// them, including booleans that default to true.
	t.Parallel()
	path := writeConfig(t, `
store:
  type: sqlite
  path: /var/lib/certtrust/trust.db
timeout: 90s
system_roots: mozilla
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Type != "sqlite" || cfg.Store.Path != "/var/lib/certtrust/trust.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("timeout = %s, want 90s", cfg.Timeout)
	}
	if cfg.SystemRoots != "mozilla" {
		t.Errorf("system_roots = %q", cfg.SystemRoots)
	}
	if !cfg.TrustSystemCerts {
		t.Error("trust_system_certs lost its default")
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("listen = %q, want default", cfg.Listen)
	}
}

func TestLoadConfig_ExplicitFalse(t *testing.T) {
	// WHY: An explicit false in the file must win over a true default.
	t.Parallel()
	cfg, err := LoadConfig(writeConfig(t, "trust_system_certs: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TrustSystemCerts {
		t.Error("trust_system_certs = true, want false")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	// WHY: A named config file that is missing or malformed must fail
	// instead of silently running with defaults.
	t.Parallel()
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
	if _, err := LoadConfig(writeConfig(t, "timeout: [not a duration\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestConfig_ApplyFlags(t *testing.T) {
	// WHY: Only flags the user actually set may override the file; flag
	// defaults must not clobber configured values.
	t.Parallel()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("store", "", "")
	fs.String("store-type", "jks", "")
	fs.Bool("trust-system-certs", true, "")
	fs.Duration("timeout", time.Minute, "")
	fs.String("log-level", "info", "")
	if err := fs.Parse([]string{"--store", "/tmp/x.p12", "--trust-system-certs=false", "--timeout", "5s"}); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Store.Type = "pkcs12"
	cfg.LogLevel = "debug"
	if err := cfg.ApplyFlags(fs); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if cfg.Store.Path != "/tmp/x.p12" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
	if cfg.Store.Type != "pkcs12" {
		t.Errorf("store.type = %q, unset flag overrode config", cfg.Store.Type)
	}
	if cfg.TrustSystemCerts {
		t.Error("trust_system_certs not overridden")
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.Timeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, unset flag overrode config", cfg.LogLevel)
	}
}

func TestStoreConfig_DefaultPathFollowsType(t *testing.T) {
	// WHY: A store type chosen without a path must open a file of that
	// type, never the jks default.
	t.Parallel()
	path := writeConfig(t, "store:\n  type: sqlite\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got, want := cfg.Store.ResolvedPath(), filepath.Join(ConfigDir(), "truststore.db"); got != want {
		t.Errorf("sqlite path = %q, want %q", got, want)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("store", "", "")
	fs.String("store-type", "jks", "")
	if err := fs.Parse([]string{"--store-type", "pkcs12"}); err != nil {
		t.Fatal(err)
	}
	flagged := DefaultConfig()
	if err := flagged.ApplyFlags(fs); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if got, want := flagged.Store.ResolvedPath(), filepath.Join(ConfigDir(), "truststore.p12"); got != want {
		t.Errorf("pkcs12 path = %q, want %q", got, want)
	}

	tests := []struct {
		store StoreConfig
		want  string
	}{
		{StoreConfig{Type: "jks"}, filepath.Join(ConfigDir(), "truststore.jks")},
		{StoreConfig{Type: "p12"}, filepath.Join(ConfigDir(), "truststore.p12")},
		{StoreConfig{Type: "sqlite", Path: "/srv/trust.db"}, "/srv/trust.db"},
		{StoreConfig{Type: "memory"}, ""},
	}
	for _, tt := range tests {
		if got := tt.store.ResolvedPath(); got != tt.want {
			t.Errorf("%+v: ResolvedPath() = %q, want %q", tt.store, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	// WHY: Bad values are caught at startup with every problem reported.
	t.Parallel()
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Store.Type = "bks"
	cfg.SystemRoots = "windows"
	cfg.Timeout = 0
	cfg.Presenter = "gui"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"store.type", "system_roots", "timeout", "presenter"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	mem := DefaultConfig()
	mem.Store = StoreConfig{Type: "memory"}
	if err := mem.Validate(); err != nil {
		t.Errorf("memory store without path: %v", err)
	}
}
