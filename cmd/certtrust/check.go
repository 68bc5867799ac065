package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal"
	"github.com/sensiblebit/certtrust/internal/coordinator"
	"github.com/sensiblebit/certtrust/internal/metrics"
	"github.com/sensiblebit/certtrust/internal/presenter"
	"github.com/sensiblebit/certtrust/internal/registry"
	"github.com/sensiblebit/certtrust/internal/transport"
	"github.com/sensiblebit/certtrust/internal/trust"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <host:port>",
	Short: "Connect to a TLS server and decide whether its certificate is trusted",
	Long: "Connect to a TLS server and evaluate its certificate chain. Chains the system roots " +
		"accept pass directly; anything else is referred to the coordinator, either one running " +
		"in this process or a serve instance given with --coordinator.",
	Example: `  certtrust check self-signed.badssl.com:443
  certtrust check --coordinator ws://127.0.0.1:8453/ws internal.example:8443
  certtrust check --presenter reject --trust-system-certs=false example.com:443`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: noCompletion,
	RunE:              runCheck,
}

func init() {
	defaults := internal.DefaultConfig()
	checkCmd.Flags().String("coordinator", "", "WebSocket URL of a running serve instance (default: in-process coordinator)")
	checkCmd.Flags().Duration("timeout", defaults.Timeout, "How long to wait for a decision")
	checkCmd.Flags().Bool("trust-system-certs", defaults.TrustSystemCerts, "Accept chains the system roots verify")
	checkCmd.Flags().String("system-roots", defaults.SystemRoots, "System root pool: system, mozilla")
	checkCmd.Flags().Bool("foreground", false, "Treat the check as user-initiated (default: true when stdin is a terminal)")
	checkCmd.Flags().String("presenter", defaults.Presenter, "How to ask the user: auto, terminal, accept, reject, none")

	registerCompletion(checkCmd, completionInput{"system-roots", fixedCompletion(certtrust.RootsSystem, certtrust.RootsMozilla)})
	registerCompletion(checkCmd, completionInput{"presenter", fixedCompletion("auto", "terminal", "accept", "reject", "none")})
	registerCompletion(checkCmd, completionInput{"coordinator", noCompletion})
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := args[0]
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	roots, err := rootPool()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	defer metrics.LogSummary(promReg, logger)

	reg := registry.New()
	client, m, err := checkClient(ctx, reg, promReg)
	if err != nil {
		return err
	}

	foreground := cfg.Foreground || presenter.IsTerminal(os.Stdin)
	eval, err := trust.New(trust.Options{
		Registry:         reg,
		Client:           client,
		TrustSystemCerts: cfg.TrustSystemCerts,
		Roots:            roots,
		Timeout:          cfg.Timeout,
		Foreground:       func() bool { return foreground },
		Logger:           logger,
		Metrics:          m,
	})
	if err != nil {
		_ = client.Close()
		return err
	}
	defer func() {
		if err := eval.Close(); err != nil {
			logger.Debug("closing evaluator", "error", err)
		}
	}()

	dialer := &tls.Dialer{Config: eval.TLSConfig(ctx, &tls.Config{ServerName: host})}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if errors.Is(err, trust.ErrNotTrusted) {
			return fmt.Errorf("%s: %w", addr, err)
		}
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) > 0 {
		if err := presenter.WriteDetails(os.Stdout, certtrust.NewDetails(state.PeerCertificates[0])); err != nil {
			return err
		}
	}
	fmt.Printf("%s: trusted (%s)\n", addr, tls.VersionName(state.Version))
	return nil
}

// checkClient connects to the configured coordinator, or starts one in this
// process bound to the local store and presenters. The coordinator stops
// when ctx is done. The returned metrics are registered on promReg and
// cover whichever components run in this process.
func checkClient(ctx context.Context, reg *registry.Registry, promReg prometheus.Registerer) (transport.Client, *metrics.Metrics, error) {
	if cfg.CoordinatorURL != "" {
		client, err := transport.DialWS(ctx, cfg.CoordinatorURL, reg, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, metrics.NewEvaluator(promReg), nil
	}

	store, err := openStore(false)
	if err != nil {
		return nil, nil, err
	}
	var coord *coordinator.Coordinator
	presenters, err := buildPresenters(cfg.Presenter, deciderFor(&coord), false)
	if err != nil {
		return nil, nil, err
	}
	m := metrics.New(promReg)
	coord = coordinator.New(coordinator.Options{
		Store:     store,
		Presenter: presenters.presenter,
		Logger:    logger,
		Metrics:   m,
	})
	go func() {
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("coordinator stopped", "error", err)
		}
	}()
	presenters.runTerminal(ctx)
	return transport.NewLocal(coord, reg, logger), m, nil
}
