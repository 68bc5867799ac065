package certstore

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sensiblebit/certtrust"
)

// Store holds trusted and rejected certificates keyed by certificate
// identity. A certificate is never in both sets at once. All methods are
// safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	backend  Backend
	logger   *slog.Logger
	trusted  map[certtrust.ID]*x509.Certificate
	rejected map[certtrust.ID]*x509.Certificate
}

// New creates an empty Store persisting through backend. Call Load to read
// previously saved decisions. A nil logger uses slog.Default().
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		logger:   logger,
		trusted:  make(map[certtrust.ID]*x509.Certificate),
		rejected: make(map[certtrust.ID]*x509.Certificate),
	}
}

// Load replaces the trusted set with the backend's contents. On failure the
// store keeps serving with an empty trusted set and the error is returned
// for the caller to report.
func (s *Store) Load() error {
	certs, err := s.backend.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted = make(map[certtrust.ID]*x509.Certificate, len(certs))
	if err != nil {
		s.logger.Warn("loading trust store failed, continuing with empty store", "error", err)
		return fmt.Errorf("loading trust store: %w", err)
	}
	for _, cert := range certs {
		id := certtrust.IDOf(cert)
		s.trusted[id] = cert
		delete(s.rejected, id)
	}
	s.logger.Debug("loaded trusted certificates", "count", len(s.trusted))
	return nil
}

// Contains reports whether cert is in the durable trusted set.
func (s *Store) Contains(cert *x509.Certificate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trusted[certtrust.IDOf(cert)]
	return ok
}

// IsRejected reports whether cert was rejected during this session.
func (s *Store) IsRejected(cert *x509.Certificate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rejected[certtrust.IDOf(cert)]
	return ok
}

// SetTrusted adds cert to the trusted set, drops it from the rejected set,
// and persists the trusted set. A save error is logged and returned; the
// in-memory change stands either way.
func (s *Store) SetTrusted(cert *x509.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := certtrust.IDOf(cert)
	delete(s.rejected, id)
	s.trusted[id] = cert
	s.logger.Info("trusted by user", "subject", cert.Subject.String(), "tag", certtrust.Tag(cert))
	return s.saveLocked()
}

// SetRejected adds cert to the rejected set. If cert was trusted it is
// removed from the trusted set, which is then persisted.
func (s *Store) SetRejected(cert *x509.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := certtrust.IDOf(cert)
	s.rejected[id] = cert
	s.logger.Info("distrusted by user", "subject", cert.Subject.String())
	if _, ok := s.trusted[id]; !ok {
		return nil
	}
	delete(s.trusted, id)
	return s.saveLocked()
}

// Reset forgets every decision and persists the empty trusted set.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("clearing user-(dis)trusted certificates",
		"trusted", len(s.trusted), "rejected", len(s.rejected))
	s.trusted = make(map[certtrust.ID]*x509.Certificate)
	s.rejected = make(map[certtrust.ID]*x509.Certificate)
	return s.saveLocked()
}

// Trusted returns the trusted certificates sorted by display name, then tag.
func (s *Store) Trusted() []*x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCerts(s.trusted)
}

// Rejected returns the certificates rejected during this session.
func (s *Store) Rejected() []*x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCerts(s.rejected)
}

// Len returns the number of trusted and rejected certificates.
func (s *Store) Len() (trusted, rejected int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trusted), len(s.rejected)
}

func (s *Store) saveLocked() error {
	if err := s.backend.Save(sortedCerts(s.trusted)); err != nil {
		s.logger.Error("couldn't save trust store", "error", err)
		return fmt.Errorf("saving trust store: %w", err)
	}
	return nil
}

func sortedCerts(m map[certtrust.ID]*x509.Certificate) []*x509.Certificate {
	result := make([]*x509.Certificate, 0, len(m))
	for _, cert := range m {
		result = append(result, cert)
	}
	sort.Slice(result, func(i, j int) bool {
		ni, nj := certtrust.FormatCN(result[i]), certtrust.FormatCN(result[j])
		if ni != nj {
			return ni < nj
		}
		return certtrust.Tag(result[i]) < certtrust.Tag(result[j])
	})
	return result
}
