// cmd/lnoded is the daemon entrypoint: it loads configuration, opens the
// two persistence backends (spec §4.8), wires a lnode.NodeWorker
// (component C10), and accepts inbound peer connections, handing each
// one to the Noise_XK handshake (package brontide) and the per-peer
// actor (package peer).
//
// Adapted from the teacher's root lnd.go: lndMain's defer-friendly
// nested-main shape and the config-then-log-then-wire ordering are kept;
// the concrete btcd/neutrino/lnwallet wiring lndMain performed is
// replaced with this tree's own collaborator boundary (spec §6), since
// the chain backend and on-chain wallet remain external non-goals.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slacerda85/ihodl-sub007/brontide"
	"github.com/slacerda85/ihodl-sub007/lnode"
	"github.com/slacerda85/ihodl-sub007/peer"
)

func main() {
	if err := lndMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// lndMain is the true entry point; kept separate from main so its
// deferred cleanup has run by the time main calls os.Exit.
func lndMain() error {
	cfg, nodeCfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if err := initLogRotator(cfg.LogDir); err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	ltndLog.Infof("starting on network %s, listening on %s", nodeCfg.Network.Name, nodeCfg.ListenAddr)

	nodePriv, err := loadOrCreateNodeKey(nodeKeyPath(cfg))
	if err != nil {
		return fmt.Errorf("node identity key: %w", err)
	}
	ltndLog.Infof("node id %x", nodePriv.PubKey().SerializeCompressed())

	persist, err := lnode.Open(nodeCfg)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer persist.Close()

	backend := noopChainBackend{}
	worker := lnode.New(nodeCfg, nodePriv, persist, backend, backend, backend)

	if err := worker.Resume(); err != nil {
		return fmt.Errorf("resume channels: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	listener, err := net.Listen("tcp", nodeCfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", nodeCfg.ListenAddr, err)
	}
	defer listener.Close()

	ltndLog.Info("ready to accept inbound peer connections")
	return acceptLoop(listener, nodePriv, worker)
}

// serveMetrics exposes the breaker/rate-limiter gauges wired in package
// lnode on addr, in the Prometheus client_golang exposition format.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		ltndLog.Errorf("metrics server stopped: %v", err)
	}
}

// acceptLoop accepts inbound TCP connections, runs the Noise_XK
// responder handshake (spec §4.1), and wraps each authenticated
// connection as a peer.Peer dispatching into worker (spec §2's
// "peer socket -> C2 decryption -> C9 dispatch" data flow).
func acceptLoop(listener net.Listener, nodePriv *btcec.PrivateKey, worker *lnode.NodeWorker) error {
	for {
		netConn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}

		go func() {
			conn, err := brontide.Accept(netConn, nodePriv)
			if err != nil {
				ltndLog.Warnf("handshake failed from %s: %v", netConn.RemoteAddr(), err)
				netConn.Close()
				return
			}

			p, err := peer.New(conn, worker)
			if err != nil {
				ltndLog.Errorf("peer init failed for %x: %v", conn.RemoteStatic().SerializeCompressed(), err)
				conn.Close()
				return
			}
			ltndLog.Infof("peer connected: %x", conn.RemoteStatic().SerializeCompressed())
			p.Start()
		}()
	}
}

// loadOrCreateNodeKey reads the node's static identity key from path,
// generating and persisting a fresh one on first run.
func loadOrCreateNodeKey(path string) (*btcec.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return nil, fmt.Errorf("identity key file %s is malformed", path)
		}
		return btcec.PrivKeyFromBytes(raw), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, priv.Serialize(), 0600); err != nil {
		return nil, err
	}
	return priv, nil
}
