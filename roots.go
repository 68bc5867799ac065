package certtrust

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/breml/rootcerts/embedded"
)

// Root pool names accepted by RootPool.
const (
	RootsSystem  = "system"
	RootsMozilla = "mozilla"
)

// RootPool returns the named system trust root pool: "system" for the
// platform's certificate store, "mozilla" for the embedded Mozilla CA bundle.
func RootPool(name string) (*x509.CertPool, error) {
	switch name {
	case RootsSystem, "":
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("loading system cert pool: %w", err)
		}
		return pool, nil
	case RootsMozilla:
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			return nil, errors.New("parsing embedded Mozilla root certificates")
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown system_roots: %q", name)
	}
}

// VerifyServerChain verifies a presented chain (leaf first, followed by any
// intermediates) against roots for server authentication. The host name is
// not checked.
func VerifyServerChain(chain []*x509.Certificate, roots *x509.CertPool) error {
	if len(chain) == 0 {
		return errors.New("certificate chain is empty")
	}
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return fmt.Errorf("chain verification failed: %w", err)
	}
	return nil
}
