package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/franco-bianco/solanatrade-go/config"
	"github.com/franco-bianco/solanatrade-go/metrics"
	"github.com/franco-bianco/solanatrade-go/relay"
	"github.com/franco-bianco/solanatrade-go/rpcpool"
	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
	"github.com/franco-bianco/solanatrade-go/spltoken/price"
	"github.com/franco-bianco/solanatrade-go/stream"
	"github.com/franco-bianco/solanatrade-go/txbuilder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("exited")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	transport, err := rpcpool.New(cfg.RPCURLs, cfg.PerformanceRPCURLs, rpcpool.WithLogger(log), rpcpool.WithMetrics(m))
	if err != nil {
		return err
	}
	if transport.Performance().Len() == 0 {
		log.Warn("no performance nodes: /parse and plain submission will fail")
	}

	pools, err := price.NewPoolCache(0, 10*time.Minute)
	if err != nil {
		return err
	}
	defer pools.Close()

	mux := stream.New(stream.Config{
		ConfirmationTimeout:     cfg.ConfirmationTimeout,
		SlotConfirmationTimeout: cfg.SlotConfirmationTimeout,
		CacheRetention:          cfg.CacheRetention,
		CachedWallets:           cfg.CachedWallets,
	}, stream.WithLogger(log), stream.WithMetrics(m), stream.WithTransactionObserver(func(tx *solanaswapgo.RawTransaction) {
		pools.PutTransaction(tx)
	}))
	if cfg.StreamEnabled {
		src, err := stream.Dial(cfg.GRPCURL, cfg.GRPCToken)
		if err != nil {
			return err
		}
		defer src.Close()
		go func() {
			if err := mux.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("stream stopped")
			}
		}()
	} else {
		log.Warn("stream disabled, confirmations will time out")
	}
	defer mux.Close()

	blockhashes := txbuilder.NewBlockhashCache(transport, log)
	go blockhashes.Run(ctx)

	opts := []txbuilder.SubmitterOption{txbuilder.WithLogger(log), txbuilder.WithMetrics(m)}
	relayOpts := []relay.Option{relay.WithLogger(log), relay.WithMetrics(m), relay.WithRequestsPerEndpoint(cfg.RelayRequestsPerEndpoint)}
	if len(cfg.JitoURLs) > 0 {
		jito, err := relay.NewJito(cfg.JitoURLs, relayOpts...)
		if err != nil {
			return err
		}
		opts = append(opts, txbuilder.WithJito(jito))
	}
	if len(cfg.NozomiURLs) > 0 {
		nozomi, err := relay.NewNozomi(cfg.NozomiURLs, relayOpts...)
		if err != nil {
			return err
		}
		opts = append(opts, txbuilder.WithNozomi(nozomi))
	}
	submitter := txbuilder.NewSubmitter(transport, mux, opts...)

	srv := &server{
		log:         log,
		fetcher:     transport,
		transport:   transport,
		mux:         mux,
		pools:       pools,
		blockhashes: blockhashes,
		gatherer:    reg,
	}
	wallet, err := cfg.Wallet()
	if err != nil {
		return err
	}
	if wallet != nil {
		srv.executor = txbuilder.NewExecutor(txbuilder.NewBuilder(blockhashes), submitter, wallet, log)
		log.WithField("wallet", wallet.PublicKey()).Info("order execution enabled")
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// orders wait for confirmation
		WriteTimeout: cfg.ConfirmationTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":        cfg.HTTPAddr,
			"basic":       transport.Basic().Len(),
			"performance": transport.Performance().Len(),
			"stream":      cfg.StreamEnabled,
		}).Info("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
