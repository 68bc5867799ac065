// Package certtest generates throwaway certificates for tests.
package certtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync/atomic"
	"testing"
	"time"
)

var serial atomic.Int64

// Issued is a certificate together with its private key.
type Issued struct {
	Cert *x509.Certificate
	Key  crypto.Signer
}

// SelfSigned creates a self-signed server certificate for cn, valid from an
// hour ago until a day from now.
func SelfSigned(t testing.TB, cn string) *x509.Certificate {
	t.Helper()
	return SelfSignedKey(t, cn).Cert
}

// SelfSignedKey is SelfSigned but also returns the private key.
func SelfSignedKey(t testing.TB, cn string) Issued {
	t.Helper()
	key := newKey(t)
	tmpl := leafTemplate(cn)
	return Issued{Cert: create(t, tmpl, tmpl, key, key), Key: key}
}

// Expired creates a self-signed server certificate that expired an hour ago.
func Expired(t testing.TB, cn string) *x509.Certificate {
	t.Helper()
	key := newKey(t)
	tmpl := leafTemplate(cn)
	tmpl.NotBefore = time.Now().Add(-48 * time.Hour)
	tmpl.NotAfter = time.Now().Add(-time.Hour)
	return create(t, tmpl, tmpl, key, key)
}

// Root creates a self-signed CA certificate.
func Root(t testing.TB, cn string) Issued {
	t.Helper()
	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"TestOrg"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	return Issued{Cert: create(t, tmpl, tmpl, key, key), Key: key}
}

// Intermediate creates a CA certificate signed by parent.
func Intermediate(t testing.TB, parent Issued, cn string) Issued {
	t.Helper()
	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"TestOrg"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(5 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	return Issued{Cert: create(t, tmpl, parent.Cert, key, parent.Key), Key: key}
}

// Leaf creates a server certificate for cn signed by parent. The names
// become DNS subject alternative names.
func Leaf(t testing.TB, parent Issued, cn string, names ...string) Issued {
	t.Helper()
	key := newKey(t)
	tmpl := leafTemplate(cn)
	if len(names) > 0 {
		tmpl.DNSNames = names
	}
	return Issued{Cert: create(t, tmpl, parent.Cert, key, parent.Key), Key: key}
}

// Chain returns a root, an intermediate, and a leaf for cn signed by the
// intermediate.
func Chain(t testing.TB, cn string) (root, intermediate, leaf Issued) {
	t.Helper()
	root = Root(t, "Test Root CA")
	intermediate = Intermediate(t, root, "Test Intermediate CA")
	leaf = Leaf(t, intermediate, cn)
	return root, intermediate, leaf
}

func leafTemplate(cn string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
}

func nextSerial() *big.Int {
	return big.NewInt(time.Now().UnixNano() + serial.Add(1))
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func create(t testing.TB, tmpl, parent *x509.Certificate, key, parentKey crypto.Signer) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, key.Public(), parentKey)
	if err != nil {
		t.Fatalf("create certificate %q: %v", tmpl.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate %q: %v", tmpl.Subject.CommonName, err)
	}
	return cert
}
