package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sensiblebit/certtrust/internal"
	"github.com/sensiblebit/certtrust/internal/coordinator"
	"github.com/sensiblebit/certtrust/internal/metrics"
	"github.com/sensiblebit/certtrust/internal/server"
	"github.com/sensiblebit/certtrust/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision coordinator and its HTTP surface",
	Long: "Run the process-wide decision coordinator. Evaluators connect over WebSocket at /ws; " +
		"pending certificates are listed at /pending and decided with POST /decisions.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	defaults := internal.DefaultConfig()
	serveCmd.Flags().String("listen", defaults.Listen, "HTTP listen address")
	serveCmd.Flags().String("presenter", defaults.Presenter, "How to ask the user: auto, terminal, inbox, accept, reject, none")
	registerCompletion(serveCmd, completionInput{"presenter", fixedCompletion("auto", "terminal", "inbox", "accept", "reject", "none")})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(false)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCoordinator(reg)

	var coord *coordinator.Coordinator
	presenters, err := buildPresenters(cfg.Presenter, deciderFor(&coord), true)
	if err != nil {
		return err
	}
	coord = coordinator.New(coordinator.Options{
		Store:     store,
		Presenter: presenters.presenter,
		Logger:    logger,
		Metrics:   m,
	})

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: server.NewRouter(server.Options{
			Coordinator: coord,
			Store:       store,
			WebSocket:   transport.NewWSHandler(coord, logger),
			Inbox:       presenters.inbox,
			Gatherer:    reg,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	presenters.runTerminal(gctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen, "store", cfg.Store.ResolvedPath(), "store_type", cfg.Store.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
