// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command ddsbridge runs the DDS/Security-System bridge as a standalone
// daemon: load configuration, wire up logging, construct the Security-
// System Adapter and the orchestrator, run until signaled, shut down.
package main

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jrick/logrotate/rotator"

	"github.com/otisdds/ddsbridge/bridge"
	"github.com/otisdds/ddsbridge/ddsnet"
	"github.com/otisdds/ddsbridge/heartbeat"
	"github.com/otisdds/ddsbridge/internal/adminws"
	"github.com/otisdds/ddsbridge/internal/config"
	"github.com/otisdds/ddsbridge/internal/ddslog"
	"github.com/otisdds/ddsbridge/internal/statestore"
	"github.com/otisdds/ddsbridge/reactor"
	"github.com/otisdds/ddsbridge/ssadapter"
)

var log = ddslog.Logger("BRDG")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logRotator, err := rotator.New(filepath.Join(cfg.LogDir, "ddsbridge.log"), 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("open log rotator: %w", err)
	}
	defer logRotator.Close()
	ddslog.InitBackend(io.MultiWriter(os.Stdout, logRotator))
	log = ddslog.Logger("BRDG")
	ddslog.SetLogLevel("all", cfg.DebugLevel)

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return fmt.Errorf("build security-system adapter: %w", err)
	}

	params := bridge.Params{
		Sockets: ddsnet.Params{
			LocalIP:                   net.ParseIP(cfg.LocalIP),
			HeartbeatReceiveMcGroup:   net.ParseIP(cfg.HeartbeatReceiveMcGroup),
			HeartbeatReceivePort:      cfg.HeartbeatReceivePort,
			HeartbeatSendMcGroup:      net.ParseIP(cfg.HeartbeatSendMcGroup),
			HeartbeatSendPort:         cfg.HeartbeatSendPort,
			HeartbeatSendTTL:          cfg.HeartbeatSendTTL,
			InteractiveReceivePortDes: cfg.InteractiveReceivePortDes,
			InteractiveReceivePortDec: cfg.InteractiveReceivePortDec,
			InteractiveSendPortDes:    cfg.InteractiveSendPortDes,
			InteractiveSendPortDec:    cfg.InteractiveSendPortDec,
		},
		Heartbeat: heartbeat.Params{
			SendInterval:   secondsToDuration(cfg.HeartbeatSendInterval),
			ReceiveTimeout: secondsToDuration(cfg.HeartbeatReceiveTimeout),
		},
		Reactor: reactor.Params{
			DuplicatesCacheSize: cfg.InteractiveDuplicatesSize,
			SendRetryInterval:   secondsToDuration(cfg.InteractiveRetryInterval),
			SendMaxRetries:      cfg.InteractiveMaxRetries,
			DecOperationMode:    cfg.DecOperationMode,
		},
	}

	b := bridge.New(params, adapter, log, nil)
	if err := b.Start(); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	stopAdmin := startAdminServer(b, cfg)
	defer stopAdmin()

	stopStateStore, err := startStateStore(b, cfg)
	if err != nil {
		b.Stop()
		return fmt.Errorf("start state store: %w", err)
	}
	defer stopStateStore()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutdown signal received")
	b.Stop()
	return nil
}

func buildAdapter(cfg *config.Config) (ssadapter.Adapter, error) {
	switch cfg.SSAdapterKind {
	case "http":
		timeout := secondsToDuration(cfg.SSAdapterTimeout)
		return ssadapter.NewHTTPAdapter(cfg.SSAdapterBaseURL, timeout, nil, nil), nil
	case "static":
		return &ssadapter.StaticAdapter{}, nil
	default:
		return nil, fmt.Errorf("unknown ssadapterkind %q", cfg.SSAdapterKind)
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// startAdminServer launches the optional read-only status websocket. It is
// best-effort: a bind failure is logged, not fatal, since the admin surface
// is not part of the protocol core. An empty AdminListenAddr disables it.
func startAdminServer(b *bridge.Bridge, cfg *config.Config) func() {
	if cfg.AdminListenAddr == "" {
		return func() {}
	}
	handler := &adminws.Handler{Source: b, PushInterval: 5 * time.Second}
	mux := http.NewServeMux()
	mux.Handle("/status", handler)

	server := &http.Server{Addr: cfg.AdminListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("admin server: %v", err)
		}
	}()
	return func() {
		_ = server.Close()
	}
}

// startStateStore opens the diagnostic leveldb state mirror and begins
// periodically snapshotting reactor state into it. An empty StateStoreDir
// disables the mirror entirely; it exists for operator tooling, never for
// protocol decisions.
func startStateStore(b *bridge.Bridge, cfg *config.Config) (func(), error) {
	if cfg.StateStoreDir == "" {
		return func() {}, nil
	}
	store, err := statestore.Open(cfg.StateStoreDir)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(secondsToDuration(cfg.StateStoreInterval))
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := store.Mirror(b.Snapshot(), time.Now()); err != nil {
					log.Warnf("state store mirror: %v", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		ticker.Stop()
		if err := store.Close(); err != nil {
			log.Warnf("close state store: %v", err)
		}
	}, nil
}
