package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pyropy/rnfs/core/admission"
	"github.com/pyropy/rnfs/core/coordinator"
	"github.com/pyropy/rnfs/core/ledger"
	corePeer "github.com/pyropy/rnfs/core/peer"
	"github.com/pyropy/rnfs/core/store"
	"github.com/pyropy/rnfs/lib/logger"
)

var log, _ = logger.New("rnfsd")

func main() {
	if err := run(); err != nil {
		log.Fatalln("startup", "ERROR", err)
	}
}

func run() error {
	cfg, err := GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	advertiseAddr := cfg.Node.AdvertiseAddr
	if advertiseAddr == "" {
		advertiseAddr = listenAddr
	}

	chunkStore, err := store.New(cfg.Store.Path, cfg.Store.CapacityBytes, log)
	if err != nil {
		log.Errorw("startup", "error", "failed to open chunk store", "path", cfg.Store.Path)
		return err
	}
	defer chunkStore.Close()

	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.RetryCeiling = cfg.Ledger.RetryCeiling
	ledgerCfg.Timeout = cfg.Ledger.Timeout
	ledgerCfg.BackoffBase = cfg.Ledger.BackoffBase
	ledgerCfg.BackoffMax = cfg.Ledger.BackoffMax
	requestLedger := ledger.New(ledgerCfg, log)

	admissionCfg := admission.DefaultConfig()
	admissionCfg.HighWaterMark = cfg.Store.HighWaterMark
	policy := admission.New(admissionCfg, chunkStore, requestLedger)

	peers, err := cfg.PeerTable()
	if err != nil {
		return err
	}

	router := corePeer.NewStaticRouter(peers)
	transport := corePeer.NewTransport(advertiseAddr, log)

	coordCfg := coordinator.DefaultConfig()
	coordCfg.ChunkSize = cfg.Node.ChunkSize
	coordCfg.Publisher = cfg.Node.Name
	coordCfg.AutoFetch = cfg.Node.AutoFetch
	coordCfg.Relay = cfg.Node.Relay

	coord := coordinator.New(
		coordCfg,
		chunkStore,
		requestLedger,
		policy,
		transport,
		router,
		coordinator.StoreResolver{Store: chunkStore},
		logNotifier{},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coord.Run(ctx)

	announcer := corePeer.NewAnnouncer(transport, router, chunkStore.Subscribe(), cfg.Announce.Interval, log)
	go announcer.Start(ctx)

	if cfg.Metrics.Addr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(chunkStore.Metrics()...)
		registry.MustRegister(requestLedger.Metrics()...)

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Errorw("startup", "error", "metrics server failed", "addr", cfg.Metrics.Addr)
			}
		}()
	}

	rpc.Register(NewNodeAPI(coord, chunkStore))
	rpc.Register(NewPeerAPI(coord, router))
	rpc.HandleHTTP()

	l, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	log.Infow("startup", "status", "rnfs daemon started", "address", listenAddr, "advertise", advertiseAddr, "peers", len(peers))
	defer log.Infow("shutdown", "status", "rnfs daemon stopped", "address", listenAddr)
	go http.Serve(l, nil)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Infow("shutdown", "status", "rnfs daemon stopping", "address", listenAddr)

	return nil
}
