package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	donorhandler "donorlink/internal/donor/handler"
	donormetrics "donorlink/internal/donor/metrics"
	donorservice "donorlink/internal/donor/service"
	httpapi "donorlink/internal/http"
	"donorlink/internal/outbox/relay"
	"donorlink/internal/platform/config"
	"donorlink/internal/platform/httpserver"
	"donorlink/internal/request/matching"
	requesthandler "donorlink/internal/request/handler"
	requestmetrics "donorlink/internal/request/metrics"
	requestservice "donorlink/internal/request/service"
	"donorlink/pkg/platform/httputil"
)

// writeTimeoutSlack lets a handler that hit its deadline still write the error.
const writeTimeoutSlack = 5 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE:  serveRun,
	}
}

func serveRun(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	httputil.SetDiagnosticMode(cfg.DiagnosticMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	directory := donorservice.New(b.donors,
		donorservice.WithLogger(log),
		donorservice.WithMetrics(donormetrics.New()),
	)
	engine := matching.New(directory,
		matching.WithCap(cfg.Matching.Cap),
		matching.WithLogger(log),
	)
	requestOpts := []requestservice.Option{
		requestservice.WithLocker(b.locker),
		requestservice.WithLogger(log),
		requestservice.WithMetrics(requestmetrics.New()),
	}
	if b.tx != nil {
		requestOpts = append(requestOpts, requestservice.WithTx(b.tx))
	}
	requests := requestservice.New(b.requests, directory, engine, b.events, requestOpts...)

	router := httpapi.NewRouter(httpapi.Options{
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		Checks:         b.checks,
	},
		donorhandler.New(directory, log),
		requesthandler.New(requests, log),
	)
	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout+writeTimeoutSlack)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	if b.producer != nil {
		r := newRelay(b, cfg.Kafka, log)
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

func newRelay(b *backends, cfg config.KafkaConfig, log *slog.Logger) *relay.Relay {
	opts := []relay.Option{
		relay.WithInterval(cfg.RelayInterval),
		relay.WithBatchSize(cfg.RelayBatch),
		relay.WithLogger(log),
		relay.WithMetrics(relay.NewMetrics()),
	}
	if b.tx != nil {
		opts = append(opts, relay.WithTx(b.tx))
	}
	return relay.New(b.events, b.producer, cfg.Topic, opts...)
}
