package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal"
	"github.com/sensiblebit/certtrust/internal/certstore"
	"github.com/sensiblebit/certtrust/internal/coordinator"
	"github.com/sensiblebit/certtrust/internal/presenter"
)

// openStore opens the configured trust store and loads it. A load failure
// is reported when strict is set; otherwise the empty store is used.
func openStore(strict bool) (*certstore.Store, error) {
	password, err := internal.ResolveStorePassword(cfg.Store.PasswordFile, certstore.DefaultPassword)
	if err != nil {
		return nil, err
	}
	backend, err := certstore.OpenBackend(cfg.Store.Type, cfg.Store.ResolvedPath(), password)
	if err != nil {
		return nil, err
	}
	store := certstore.New(backend, logger)
	if err := store.Load(); err != nil && strict {
		return nil, err
	}
	return store, nil
}

// rootPool returns the configured system root pool, or nil when system
// trust is disabled.
func rootPool() (*x509.CertPool, error) {
	if !cfg.TrustSystemCerts {
		return nil, nil
	}
	return certtrust.RootPool(cfg.SystemRoots)
}

// presenterSet is the presenter wiring for one coordinator.
type presenterSet struct {
	presenter coordinator.Presenter
	terminal  *presenter.Terminal
	inbox     *presenter.Inbox
}

// buildPresenters creates the presenters for mode. withInbox adds the HTTP
// inbox, which only makes sense when the HTTP surface runs.
func buildPresenters(mode string, decide presenter.DeciderFunc, withInbox bool) (presenterSet, error) {
	var set presenterSet
	if withInbox {
		set.inbox = presenter.NewInbox()
	}
	interactive := presenter.IsTerminal(os.Stdin) && presenter.IsTerminal(os.Stdout)

	switch mode {
	case internal.PresenterAuto:
		if interactive {
			set.terminal = presenter.NewTerminal(os.Stdin, os.Stdout, decide, logger)
		}
	case internal.PresenterTerminal:
		set.terminal = presenter.NewTerminal(os.Stdin, os.Stdout, decide, logger)
	case internal.PresenterInbox:
		if !withInbox {
			return set, fmt.Errorf("presenter %q requires the HTTP surface (use serve)", mode)
		}
	case internal.PresenterAccept:
		set.presenter = presenter.NewStatic(decide, true, logger)
	case internal.PresenterReject:
		set.presenter = presenter.NewStatic(decide, false, logger)
	case internal.PresenterNone:
		set.presenter = presenter.NonInteractive{}
		return set, nil
	default:
		return set, fmt.Errorf("unsupported presenter %q", mode)
	}

	var all presenter.Multi
	if set.presenter != nil {
		all = append(all, set.presenter)
	}
	if set.terminal != nil {
		all = append(all, set.terminal)
	}
	if set.inbox != nil {
		all = append(all, set.inbox)
	}
	switch len(all) {
	case 0:
		set.presenter = presenter.NonInteractive{}
	case 1:
		set.presenter = all[0]
	default:
		set.presenter = all
	}
	return set, nil
}

// deciderFor reports decisions to the coordinator *coord points to. The
// pointer is filled in after the presenters are built.
func deciderFor(coord **coordinator.Coordinator) presenter.DeciderFunc {
	return func(ctx context.Context, cert *x509.Certificate, trusted bool) error {
		return (*coord).Decide(ctx, cert, trusted)
	}
}

// runTerminal starts the terminal prompt loop if one was built.
func (s presenterSet) runTerminal(ctx context.Context) {
	if s.terminal == nil {
		return
	}
	go func() {
		if err := s.terminal.Run(ctx); err != nil {
			logger.Warn("terminal prompt stopped", "error", err)
		}
	}()
}
