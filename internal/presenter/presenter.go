// Package presenter implements the ways a pending certificate reaches the
// user: an interactive terminal prompt, a passive inbox served over HTTP,
// fixed automation policies, and a refusal mode for headless processes.
package presenter

import (
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sensiblebit/certtrust/internal/coordinator"
)

// ErrNoUserInteraction is returned by NonInteractive.Present.
var ErrNoUserInteraction = errors.New("no user interaction available")

// decideTimeout bounds decisions submitted from presenter goroutines.
const decideTimeout = 10 * time.Second

// Decider applies a user decision. *coordinator.Coordinator implements it.
type Decider interface {
	Decide(ctx context.Context, cert *x509.Certificate, trusted bool) error
}

// DeciderFunc adapts a function to Decider. It lets a presenter be built
// before the coordinator it reports to.
type DeciderFunc func(ctx context.Context, cert *x509.Certificate, trusted bool) error

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, cert *x509.Certificate, trusted bool) error {
	return f(ctx, cert, trusted)
}

var (
	_ coordinator.Presenter = (*Terminal)(nil)
	_ coordinator.Presenter = (*Inbox)(nil)
	_ coordinator.Presenter = (*Static)(nil)
	_ coordinator.Presenter = NonInteractive{}
	_ coordinator.Presenter = Multi(nil)
	_ Decider               = (*coordinator.Coordinator)(nil)
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Static answers every certificate with a fixed verdict. It is meant for
// automation and tests.
type Static struct {
	decider Decider
	trusted bool
	logger  *slog.Logger
}

// NewStatic creates a Static presenter that decides trusted for every
// certificate.
func NewStatic(decider Decider, trusted bool, logger *slog.Logger) *Static {
	if logger == nil {
		logger = slog.Default()
	}
	return &Static{decider: decider, trusted: trusted, logger: logger}
}

// Present decides cert asynchronously.
func (s *Static) Present(cert *x509.Certificate, _ bool) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), decideTimeout)
		defer cancel()
		if err := s.decider.Decide(ctx, cert, s.trusted); err != nil {
			s.logger.Warn("applying automatic decision", "subject", cert.Subject.String(), "error", err)
		}
	}()
	return nil
}

// Dismiss does nothing.
func (s *Static) Dismiss(*x509.Certificate) {}

// NonInteractive refuses every presentation, so checks of unknown
// certificates fail immediately.
type NonInteractive struct{}

// Present returns ErrNoUserInteraction.
func (NonInteractive) Present(*x509.Certificate, bool) error {
	return ErrNoUserInteraction
}

// Dismiss does nothing.
func (NonInteractive) Dismiss(*x509.Certificate) {}

// Multi presents to several presenters. Presentation succeeds if any of
// them accepts it.
type Multi []coordinator.Presenter

// Present calls every presenter and joins their errors if none succeeded.
func (m Multi) Present(cert *x509.Certificate, foreground bool) error {
	var errs []error
	for _, p := range m {
		if err := p.Present(cert, foreground); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m) {
		if len(errs) == 0 {
			return ErrNoUserInteraction
		}
		return errors.Join(errs...)
	}
	return nil
}

// Dismiss dismisses cert on every presenter.
func (m Multi) Dismiss(cert *x509.Certificate) {
	for _, p := range m {
		p.Dismiss(cert)
	}
}
