package certstore

import (
	"crypto/x509"
	"slices"
	"sync"
)

// MemoryBackend keeps the trusted set in memory only. It is used for
// ephemeral sessions and tests.
type MemoryBackend struct {
	mu    sync.Mutex
	certs []*x509.Certificate
	saves int
}

// NewMemoryBackend creates a MemoryBackend pre-populated with certs.
func NewMemoryBackend(certs ...*x509.Certificate) *MemoryBackend {
	return &MemoryBackend{certs: slices.Clone(certs)}
}

// Load returns the last saved set.
func (b *MemoryBackend) Load() ([]*x509.Certificate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.certs), nil
}

// Save replaces the stored set.
func (b *MemoryBackend) Save(certs []*x509.Certificate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.certs = slices.Clone(certs)
	b.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
