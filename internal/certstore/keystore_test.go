package certstore

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal/certtest"
)

func TestFileBackends_RoundTrip(t *testing.T) {
	// WHY: Both keystore formats must persist the trusted set across a
	// restart with the configured password.
	t.Parallel()
	tests := []struct {
		name string
		open func(path string) *FileBackend
	}{
		{"jks", func(p string) *FileBackend { return NewJKSBackend(p, "s3cret") }},
		{"pkcs12", func(p string) *FileBackend { return NewPKCS12Backend(p, "s3cret") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "nested", "trust."+tt.name)
			a := certtest.SelfSigned(t, "a.example.com")
			b := certtest.SelfSigned(t, "b.example.com")

			if err := tt.open(path).Save([]*x509.Certificate{a, b}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			certs, err := tt.open(path).Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			got := map[certtrust.ID]bool{}
			for _, c := range certs {
				got[certtrust.IDOf(c)] = true
			}
			if len(certs) != 2 || !got[certtrust.IDOf(a)] || !got[certtrust.IDOf(b)] {
				t.Errorf("round-trip returned %d certs, want a and b", len(certs))
			}
		})
	}
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	// WHY: First run has no store file; that is an empty store, not an error.
	t.Parallel()
	certs, err := NewJKSBackend(filepath.Join(t.TempDir(), "absent.jks"), DefaultPassword).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(certs) != 0 {
		t.Errorf("got %d certs, want 0", len(certs))
	}
}

func TestFileBackend_WrongPassword(t *testing.T) {
	// WHY: A store written with another password must fail to load rather
	// than appear empty and get silently overwritten.
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trust.jks")
	if err := NewJKSBackend(path, "one").Save([]*x509.Certificate{certtest.SelfSigned(t, "pw.example.com")}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJKSBackend(path, "two").Load(); err == nil {
		t.Error("expected error loading with wrong password")
	}
}

func TestFileBackend_SaveReplacesAtomically(t *testing.T) {
	// WHY: Saves overwrite the previous store and leave no temporary files
	// behind in the store directory.
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.jks")
	b := NewJKSBackend(path, DefaultPassword)

	if err := b.Save([]*x509.Certificate{certtest.SelfSigned(t, "first.example.com")}); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(nil); err != nil {
		t.Fatal(err)
	}
	certs, err := b.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 0 {
		t.Errorf("got %d certs after saving empty set, want 0", len(certs))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("store directory has %d entries, want 1", len(entries))
	}
}
