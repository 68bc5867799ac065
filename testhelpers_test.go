package certtrust

import (
	"crypto/x509"
	"fmt"
	"testing"

	"github.com/sensiblebit/certtrust/internal/certtest"
)

// buildChain returns a chain of the given depth: "Chain Root CA", then
// "Intermediate CA 1" and onwards, then the leaf "chain-leaf.example.com".
// depth=2 has no intermediates.
func buildChain(t *testing.T, depth int) (root *x509.Certificate, intermediates []*x509.Certificate, leaf *x509.Certificate) {
	t.Helper()
	if depth < 2 {
		t.Fatalf("buildChain: depth must be >= 2, got %d", depth)
	}
	issuer := certtest.Root(t, "Chain Root CA")
	root = issuer.Cert
	for i := 1; i <= depth-2; i++ {
		issuer = certtest.Intermediate(t, issuer, fmt.Sprintf("Intermediate CA %d", i))
		intermediates = append(intermediates, issuer.Cert)
	}
	return root, intermediates, certtest.Leaf(t, issuer, "chain-leaf.example.com").Cert
}

func selfSigned(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	return certtest.SelfSigned(t, cn)
}
