// Package trust decides whether TLS server certificates are trusted. Chains
// the system roots accept pass directly; everything else is referred to the
// decision coordinator and the call blocks until the user answers or the
// timeout expires.
package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal/metrics"
	"github.com/sensiblebit/certtrust/internal/registry"
	"github.com/sensiblebit/certtrust/internal/transport"
)

// DefaultTimeout bounds how long a check waits for a user decision.
const DefaultTimeout = 60 * time.Second

// abortTimeout bounds the best-effort abort sent after a timeout.
const abortTimeout = 5 * time.Second

// Options configures an Evaluator.
type Options struct {
	// Registry matches decisions to waiting checks. Required.
	Registry *registry.Registry
	// Client carries checks to the coordinator. Nil means no coordinator is
	// bound and every deferred check fails with ErrServiceUnavailable.
	Client transport.Client
	// TrustSystemCerts enables verification against Roots before asking
	// the coordinator.
	TrustSystemCerts bool
	// Roots is the system root pool. Nil uses the platform pool.
	Roots *x509.CertPool
	// Timeout bounds each wait for a decision. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Foreground reports whether the application is in the foreground,
	// which lets the presenter interrupt the user. Nil means background.
	Foreground func() bool
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Evaluator checks certificate chains against system roots and the user's
// decisions. It is safe for concurrent use.
type Evaluator struct {
	registry         *registry.Registry
	trustSystemCerts bool
	roots            *x509.CertPool
	timeout          time.Duration
	foreground       func() bool
	logger           *slog.Logger
	metrics          *metrics.Metrics

	mu     sync.RWMutex
	client transport.Client
}

// New creates an Evaluator.
func New(opts Options) (*Evaluator, error) {
	if opts.Registry == nil {
		return nil, errors.New("trust: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	roots := opts.Roots
	if roots == nil && opts.TrustSystemCerts {
		pool, err := certtrust.RootPool(certtrust.RootsSystem)
		if err != nil {
			return nil, err
		}
		roots = pool
	}
	foreground := opts.Foreground
	if foreground == nil {
		foreground = func() bool { return false }
	}
	return &Evaluator{
		registry:         opts.Registry,
		client:           opts.Client,
		trustSystemCerts: opts.TrustSystemCerts,
		roots:            roots,
		timeout:          timeout,
		foreground:       foreground,
		logger:           logger,
		metrics:          opts.Metrics,
	}, nil
}

// CheckClientTrusted always fails: client certificate authentication is not
// supported.
func (e *Evaluator) CheckClientTrusted(context.Context, []*x509.Certificate, string) error {
	return fmt.Errorf("checking client certificates: %w", ErrUnsupportedOperation)
}

// CheckServerTrusted checks a server chain, leaf first. With system trust
// enabled a chain that verifies against the roots is accepted without
// contacting the coordinator. Otherwise the leaf is referred to the user.
// Every failure matches ErrNotTrusted; the specific kind (ErrTimeout,
// ErrServiceUnavailable, ErrTransportFailure) stays matchable too.
// authType is informational.
func (e *Evaluator) CheckServerTrusted(ctx context.Context, chain []*x509.Certificate, authType string) error {
	if len(chain) == 0 {
		return fmt.Errorf("checking server certificate: empty chain: %w", ErrNotTrusted)
	}
	if e.trustSystemCerts {
		err := certtrust.VerifyServerChain(chain, e.roots)
		if err == nil {
			e.metrics.IncEvaluation("system")
			return nil
		}
		e.logger.Debug("not trusted by system roots, asking coordinator",
			"subject", chain[0].Subject.String(), "auth_type", authType, "error", err)
	}
	if err := e.CheckCustomTrusted(ctx, chain[0]); err != nil {
		if errors.Is(err, ErrNotTrusted) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNotTrusted, err)
	}
	return nil
}

// CheckCustomTrusted asks the coordinator whether cert is trusted and blocks
// until it answers, the timeout expires, or ctx is done.
func (e *Evaluator) CheckCustomTrusted(ctx context.Context, cert *x509.Certificate) error {
	client := e.boundClient()
	if client == nil {
		e.metrics.IncEvaluation("unavailable")
		return fmt.Errorf("checking %s: %w", cert.Subject.String(), ErrServiceUnavailable)
	}

	id := e.registry.Next()
	e.registry.Register(id)
	msg := transport.CheckTrusted{RequestID: id, Certificate: cert.Raw, Foreground: e.foreground()}
	if err := client.CheckTrusted(ctx, msg); err != nil {
		e.registry.Cancel(id)
		e.metrics.IncEvaluation("transport_error")
		return fmt.Errorf("sending check for %s: %w: %w", cert.Subject.String(), ErrTransportFailure, err)
	}

	start := time.Now()
	trusted, err := e.registry.Await(ctx, id, e.timeout)
	e.metrics.ObserveWait(time.Since(start))
	if err != nil {
		e.abort(client, id, cert)
		if errors.Is(err, registry.ErrTimeout) {
			e.metrics.IncEvaluation("timeout")
			return fmt.Errorf("no decision for %s after %s: %w", cert.Subject.String(), e.timeout, ErrTimeout)
		}
		e.metrics.IncEvaluation("cancelled")
		return fmt.Errorf("waiting for decision on %s: %w", cert.Subject.String(), err)
	}
	if !trusted {
		e.metrics.IncEvaluation("rejected")
		return fmt.Errorf("%s: %w", cert.Subject.String(), ErrNotTrusted)
	}
	e.metrics.IncEvaluation("user")
	return nil
}

// abort withdraws an unanswered check. Failures are logged only.
func (e *Evaluator) abort(client transport.Client, id uint64, cert *x509.Certificate) {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := client.AbortCheck(ctx, transport.AbortCheck{RequestID: id, Certificate: cert.Raw}); err != nil {
		e.logger.Warn("couldn't abort trust check", "request", id, "error", err)
	}
}

// Close releases the coordinator binding. Checks already waiting keep
// waiting for their decision or timeout; new checks fail with
// ErrServiceUnavailable.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (e *Evaluator) boundClient() transport.Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client
}
