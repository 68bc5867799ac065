// Package certstore keeps the certificates a user has decided on: a durable
// set of trusted certificates persisted through a Backend, and a volatile
// set of rejected certificates that lives only as long as the process.
package certstore

import "crypto/x509"

// Backend persists the trusted set. Implementations address entries by
// certtrust.Tag and must treat a missing store as empty.
type Backend interface {
	Load() ([]*x509.Certificate, error)
	Save(certs []*x509.Certificate) error
}
