package certtrust

import (
	"crypto/x509"
	"testing"
)

func TestRootPool_Mozilla(t *testing.T) {
	// WHY: The embedded Mozilla bundle must always load, independent of the
	// host's certificate store.
	t.Parallel()
	pool, err := RootPool(RootsMozilla)
	if err != nil {
		t.Fatalf("RootPool(mozilla): %v", err)
	}
	if pool == nil {
		t.Fatal("expected non-nil pool")
	}
}

func TestRootPool_Unknown(t *testing.T) {
	// WHY: A typo in system_roots must fail loudly instead of trusting an
	// unexpected pool.
	t.Parallel()
	if _, err := RootPool("bogus"); err == nil {
		t.Error("expected error for unknown root pool")
	}
}

func TestVerifyServerChain(t *testing.T) {
	// WHY: System trust is the first gate of every server check; chains
	// rooted in the pool pass (with intermediates taken from the chain) and
	// unrelated chains fail.
	t.Parallel()
	root, intermediates, leaf := buildChain(t, 3)
	pool := x509.NewCertPool()
	pool.AddCert(root)

	chain := append([]*x509.Certificate{leaf}, intermediates...)
	if err := VerifyServerChain(chain, pool); err != nil {
		t.Errorf("expected valid chain, got %v", err)
	}

	if err := VerifyServerChain([]*x509.Certificate{leaf}, pool); err == nil {
		t.Error("expected failure without the intermediate")
	}

	otherRoot, _, _ := buildChain(t, 2)
	otherPool := x509.NewCertPool()
	otherPool.AddCert(otherRoot)
	if err := VerifyServerChain(chain, otherPool); err == nil {
		t.Error("expected failure against an unrelated root")
	}

	if err := VerifyServerChain(nil, pool); err == nil {
		t.Error("expected failure for empty chain")
	}
}
