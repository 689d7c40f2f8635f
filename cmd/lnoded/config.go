package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/slacerda85/ihodl-sub007/lnode"
)

const (
	defaultConfigFilename = "lnoded.conf"
	defaultDataDirname    = "data"
	defaultLogFilename    = "lnoded.log"
)

// config is the daemon's command-line/config-file surface (spec §6's
// network-selection table plus the storage/listen parameters lnode.Config
// needs). Adapted from the teacher's daemon config struct: the
// mutually-exclusive network boolean flags and go-flags struct tags are
// the same shape, trimmed to the networks and storage backends this tree
// actually wires.
type config struct {
	DataDir string `long:"datadir" description:"directory to store channel/gossip databases and the node identity key"`
	LogDir  string `long:"logdir" description:"directory to write the daemon log file"`

	ListenAddr  string `long:"listen" description:"host:port to listen for inbound peer connections"`
	MetricsAddr string `long:"metricsaddr" description:"host:port to serve Prometheus metrics on (empty disables)"`

	MainNet bool `long:"mainnet" description:"use the mainnet network"`
	TestNet bool `long:"testnet" description:"use the testnet network"`
	RegTest bool `long:"regtest" description:"use the regtest network"`

	RateLimitBurst         int     `long:"ratelimit.burst" description:"token bucket burst size for outbound operations"`
	RateLimitPerSec        float64 `long:"ratelimit.persec" description:"token bucket refill rate per second"`
	BreakerThreshold       int     `long:"breaker.threshold" description:"consecutive failures before a circuit breaker opens"`
	BreakerCooldownSeconds int     `long:"breaker.cooldown" description:"seconds a breaker stays open before half-opening"`
}

func defaultConfig() config {
	return config{
		DataDir:                defaultDataDirname,
		LogDir:                 ".",
		ListenAddr:             "0.0.0.0:9735",
		MetricsAddr:            "127.0.0.1:9736",
		RateLimitBurst:         100,
		RateLimitPerSec:        10,
		BreakerThreshold:       5,
		BreakerCooldownSeconds: 60,
	}
}

// loadConfig parses args over defaultConfig and resolves the network
// selection (at most one flag; regtest when none is given) into a
// lnode.Config (spec §6's per-network profile
// table), mirroring the teacher's loadConfig's network-flag arbitration.
func loadConfig(args []string) (*config, lnode.Config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, lnode.Config{}, err
	}

	numNets := 0
	var profile lnode.NetworkProfile
	if cfg.MainNet {
		numNets++
		profile = lnode.MainNetProfile
	}
	if cfg.TestNet {
		numNets++
		profile = lnode.TestNetProfile
	}
	if cfg.RegTest {
		numNets++
		profile = lnode.RegtestProfile
	}
	if numNets > 1 {
		return nil, lnode.Config{}, fmt.Errorf("at most one of --mainnet, --testnet, --regtest may be set")
	}
	if numNets == 0 {
		profile = lnode.RegtestProfile
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, lnode.Config{}, fmt.Errorf("create data dir: %w", err)
	}

	nodeCfg := lnode.Config{
		Network:                profile,
		ListenAddr:             cfg.ListenAddr,
		ChannelDBPath:          filepath.Join(cfg.DataDir, "channel.db"),
		GraphDBPath:            filepath.Join(cfg.DataDir, "graph.db"),
		MinChannelReserveBips:  100,
		RateLimitBurst:         cfg.RateLimitBurst,
		RateLimitPerSec:        cfg.RateLimitPerSec,
		BreakerThreshold:       cfg.BreakerThreshold,
		BreakerCooldownSeconds: cfg.BreakerCooldownSeconds,
	}
	return &cfg, nodeCfg, nil
}

func nodeKeyPath(cfg *config) string {
	return filepath.Join(cfg.DataDir, "identity.key")
}
