package trust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// HostnameVerifier checks that leaf is valid for host.
type HostnameVerifier func(ctx context.Context, host string, leaf *x509.Certificate) error

// StrictHostnames is the standard RFC 6125 host name check.
func StrictHostnames(_ context.Context, host string, leaf *x509.Certificate) error {
	return leaf.VerifyHostname(host)
}

// HostnameVerifier wraps delegate so that a certificate the user has
// explicitly trusted is accepted for any host name. System roots are not
// consulted for the fallback.
func (e *Evaluator) HostnameVerifier(delegate HostnameVerifier) HostnameVerifier {
	if delegate == nil {
		delegate = StrictHostnames
	}
	return func(ctx context.Context, host string, leaf *x509.Certificate) error {
		delegateErr := delegate(ctx, host, leaf)
		if delegateErr == nil {
			return nil
		}
		e.logger.Debug("host name not accepted, asking coordinator", "host", host, "subject", leaf.Subject.String(), "error", delegateErr)
		if err := e.CheckCustomTrusted(ctx, leaf); err != nil {
			if !errors.Is(err, ErrNotTrusted) {
				err = fmt.Errorf("%w: %w", ErrNotTrusted, err)
			}
			return fmt.Errorf("host %s: %w: %w", host, delegateErr, err)
		}
		return nil
	}
}

// TLSConfig returns a copy of base whose certificate verification is done by
// the evaluator: the chain with CheckServerTrusted and the host name with
// HostnameVerifier(StrictHostnames). Waits for a user decision during a
// handshake end when ctx is done. base may be nil.
func (e *Evaluator) TLSConfig(ctx context.Context, base *tls.Config) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{}
	}
	verifyHost := e.HostnameVerifier(StrictHostnames)

	// crypto/tls would reject user-trusted certificates before
	// VerifyConnection runs.
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if err := e.CheckServerTrusted(ctx, cs.PeerCertificates, tls.CipherSuiteName(cs.CipherSuite)); err != nil {
			return err
		}
		if cs.ServerName == "" {
			return nil
		}
		return verifyHost(ctx, cs.ServerName, cs.PeerCertificates[0])
	}
	return cfg
}
