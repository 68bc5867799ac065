package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPasswordsFromFile_BlankLines(t *testing.T) {
	// WHY: Blank and whitespace-only lines in password files must be skipped;
	// a trailing newline must not turn into an empty password.
	t.Parallel()
	path := filepath.Join(t.TempDir(), "passwords.txt")
	if err := os.WriteFile(path, []byte("\n  \npass1\npass2\n\n"), 0o600); err != nil {
		t.Fatalf("write password file: %v", err)
	}

	passwords, err := LoadPasswordsFromFile(path)
	if err != nil {
		t.Fatalf("load passwords: %v", err)
	}
	if len(passwords) != 2 || passwords[0] != "pass1" || passwords[1] != "pass2" {
		t.Errorf("expected [pass1, pass2], got %v", passwords)
	}
}

func TestResolveStorePassword_File(t *testing.T) {
	// WHY: The first non-blank line of the password file is the store
	// password and takes precedence over the environment.
	t.Setenv(StorePasswordEnv, "from-env")
	path := filepath.Join(t.TempDir(), "store.pass")
	if err := os.WriteFile(path, []byte("\nfrom-file\nignored\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveStorePassword(path, "changeit")
	if err != nil {
		t.Fatal(err)
	}
	if got != "from-file" {
		t.Errorf("got %q, want from-file", got)
	}
}

func TestResolveStorePassword_Env(t *testing.T) {
	// WHY: Without a password file the environment supplies the password.
	t.Setenv(StorePasswordEnv, "from-env")
	got, err := ResolveStorePassword("", "changeit")
	if err != nil {
		t.Fatal(err)
	}
	if got != "from-env" {
		t.Errorf("got %q, want from-env", got)
	}
}

func TestResolveStorePassword_Fallback(t *testing.T) {
	// WHY: With nothing configured the keystore default applies.
	t.Setenv(StorePasswordEnv, "")
	got, err := ResolveStorePassword("", "changeit")
	if err != nil {
		t.Fatal(err)
	}
	if got != "changeit" {
		t.Errorf("got %q, want changeit", got)
	}
}

func TestResolveStorePassword_Errors(t *testing.T) {
	// WHY: A configured but unusable password file must fail startup rather
	// than fall back to a password that would rewrite the store.
	t.Parallel()
	empty := filepath.Join(t.TempDir(), "empty.pass")
	if err := os.WriteFile(empty, []byte("\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveStorePassword(empty, "changeit"); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("empty file error = %v", err)
	}
	if _, err := ResolveStorePassword("/nonexistent/store.pass", "changeit"); err == nil {
		t.Error("expected error for missing password file")
	}
}
